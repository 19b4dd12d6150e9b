package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veridian-data/veridian/internal/platform/httpx"
	"github.com/veridian-data/veridian/internal/rbac"
	"github.com/veridian-data/veridian/internal/shared"
)

// Handler exposes the directory HTTP API.
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

// MountRoutes registers the directory routes. Reads need users.view,
// mutations need users.edit.
func (h *Handler) MountRoutes(r chi.Router, guard rbac.Middleware) {
	r.With(guard.Require("view", "users")).Get("/", h.list)
	r.With(guard.Require("edit", "users")).Post("/", h.register)
	r.With(guard.Require("view", "users")).Get("/{userID}", h.get)
	r.With(guard.Require("edit", "users")).Put("/{userID}/legacy-role", h.setLegacyRole)
	r.With(guard.Require("edit", "users")).Put("/{userID}/attributes", h.setAttributes)
	r.With(guard.Require("edit", "users")).Delete("/{userID}", h.deactivate)
}

type userDTO struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	LegacyRole string `json:"legacy_role,omitempty"`
	Department string `json:"department,omitempty"`
	Region     string `json:"region,omitempty"`
	Active     bool   `json:"active"`
	CreatedAt  string `json:"created_at"`
}

func toDTO(u User) userDTO {
	return userDTO{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		LegacyRole: u.LegacyRole,
		Department: u.Department,
		Region:     u.Region,
		Active:     u.Active,
		CreatedAt:  u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	list, paging, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		h.respondError(w, "list users", err)
		return
	}
	dtos := make([]userDTO, 0, len(list))
	for _, u := range list {
		dtos = append(dtos, toDTO(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": dtos,
		"pagination": map[string]any{
			"page":        paging.Page,
			"per_page":    paging.PerPage,
			"total":       paging.Total,
			"total_pages": paging.TotalPages,
			"has_next":    paging.HasNext(),
		},
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		FullName   string `json:"full_name"`
		LegacyRole string `json:"legacy_role"`
		Department string `json:"department"`
		Region     string `json:"region"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	user, err := h.service.Register(r.Context(), RegisterInput{
		Email:      req.Email,
		FullName:   req.FullName,
		LegacyRole: req.LegacyRole,
		Department: req.Department,
		Region:     req.Region,
	})
	if err != nil {
		h.respondError(w, "register user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDTO(user))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(user))
}

func (h *Handler) setLegacyRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.service.SetLegacyRole(r.Context(), id, req.Role); err != nil {
		h.respondError(w, "set legacy role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setAttributes(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Department string `json:"department"`
		Region     string `json:"region"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.service.SetAttributes(r.Context(), id, req.Department, req.Region); err != nil {
		h.respondError(w, "set attributes", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.respondError(w, "deactivate user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id < 1 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Path", "userID must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrConflict) {
		httpx.Problem(w, http.StatusConflict, "Conflict", "email already registered")
		return
	}
	if !httpx.IsDomainError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
