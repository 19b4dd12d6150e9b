package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veridian-data/veridian/internal/platform/httpx"
	"github.com/veridian-data/veridian/internal/rbac"
	"github.com/veridian-data/veridian/internal/shared"
)

// Handler exposes the registry HTTP API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the registry routes. Collection routes need a
// global grant; per-instance routes also accept resource-scoped grants
// for the addressed source.
func (h *Handler) MountRoutes(r chi.Router, guard rbac.Middleware) {
	r.With(guard.Require("view", ResourceType)).Get("/", h.list)
	r.With(guard.Require("edit", ResourceType)).Post("/", h.register)
	r.With(guard.RequireResource("view", ResourceType, "sourceID")).Get("/{sourceID}", h.get)
	r.With(guard.RequireResource("edit", ResourceType, "sourceID")).Put("/{sourceID}", h.update)
	r.With(guard.RequireResource("delete", ResourceType, "sourceID")).Delete("/{sourceID}", h.remove)
}

type sourceDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	OwnerID     int64    `json:"owner_id"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags"`
	Active      bool     `json:"active"`
	CreatedAt   string   `json:"created_at"`
}

func toDTO(src DataSource) sourceDTO {
	tags := src.Tags
	if tags == nil {
		tags = []string{}
	}
	return sourceDTO{
		ID:          src.ID,
		Name:        src.Name,
		Kind:        src.Kind,
		OwnerID:     src.OwnerID,
		Description: src.Description,
		Tags:        tags,
		Active:      src.Active,
		CreatedAt:   src.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	activeOnly := r.URL.Query().Get("active") == "true"
	list, err := h.service.List(r.Context(), kind, activeOnly)
	if err != nil {
		h.respondError(w, "list sources", err)
		return
	}
	dtos := make([]sourceDTO, 0, len(list))
	for _, src := range list {
		dtos = append(dtos, toDTO(src))
	}
	httpx.JSON(w, http.StatusOK, dtos)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string   `json:"name"`
		Kind        string   `json:"kind"`
		OwnerID     int64    `json:"owner_id"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	src, err := h.service.Register(r.Context(), RegisterInput{
		Name:        req.Name,
		Kind:        req.Kind,
		OwnerID:     req.OwnerID,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		h.respondError(w, "register source", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDTO(src))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	src, err := h.service.Get(r.Context(), chi.URLParam(r, "sourceID"))
	if err != nil {
		h.respondError(w, "get source", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(src))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
		Active      *bool    `json:"active"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	src, err := h.service.Update(r.Context(), chi.URLParam(r, "sourceID"), UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		Active:      req.Active,
	})
	if err != nil {
		h.respondError(w, "update source", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(src))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "sourceID")); err != nil {
		h.respondError(w, "delete source", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrConflict) {
		httpx.Problem(w, http.StatusConflict, "Conflict", "source name already registered")
		return
	}
	if !httpx.IsDomainError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
