// Package audithttp exposes the decision ledger over HTTP.
package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/veridian-data/veridian/internal/audit"
	"github.com/veridian-data/veridian/internal/platform/httpx"
)

const maxExportRange = 90 * 24 * time.Hour

// LedgerService defines the business contract for ledger queries.
type LedgerService interface {
	Query(ctx context.Context, filters audit.Filters) (audit.Result, error)
	Export(ctx context.Context, filters audit.Filters) ([]audit.Entry, error)
}

// Handler serves ledger queries and compliance exports.
type Handler struct {
	logger  *slog.Logger
	service LedgerService
	now     func() time.Time
}

// NewHandler builds a ledger handler.
func NewHandler(logger *slog.Logger, service LedgerService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

type entryDTO struct {
	ID           int64          `json:"id"`
	DecisionID   string         `json:"decision_id"`
	ActorID      int64          `json:"actor_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Decision     string         `json:"decision"`
	Reason       string         `json:"reason"`
	Source       string         `json:"source"`
	Context      map[string]any `json:"context,omitempty"`
	At           time.Time      `json:"occurred_at"`
}

type pageDTO struct {
	Rows     []entryDTO `json:"rows"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	HasNext  bool       `json:"has_next"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	result, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.logger.Error("query audit ledger", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	page := pageDTO{
		Rows:     make([]entryDTO, 0, len(result.Rows)),
		Page:     result.Paging.Page,
		PageSize: result.Paging.PageSize,
		HasNext:  result.Paging.HasNext,
	}
	for _, row := range result.Rows {
		page.Rows = append(page.Rows, toDTO(row))
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	filters = clampExportRange(filters, h.now())

	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit ledger", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	payload, err := audit.WriteCSV(rows)
	if err != nil {
		h.logger.Error("render audit csv", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	filename := fmt.Sprintf("audit-%s.csv", h.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	var filters audit.Filters

	if raw := strings.TrimSpace(q.Get("actor_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return audit.Filters{}, fmt.Errorf("actor_id must be an integer")
		}
		filters.ActorID = id
	}
	filters.ResourceType = strings.TrimSpace(q.Get("resource_type"))
	filters.ResourceID = strings.TrimSpace(q.Get("resource_id"))

	for name, dst := range map[string]*time.Time{"from": &filters.From, "to": &filters.To} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filters{}, fmt.Errorf("%s must be RFC3339", name)
		}
		*dst = ts
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Before(filters.From) {
		return audit.Filters{}, fmt.Errorf("to must not precede from")
	}

	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return audit.Filters{}, fmt.Errorf("page must be a positive integer")
		}
		filters.Page = page
	}
	if raw := strings.TrimSpace(q.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return audit.Filters{}, fmt.Errorf("page_size must be a positive integer")
		}
		filters.PageSize = size
	}
	return filters, nil
}

// clampExportRange keeps unbounded exports from scanning the whole
// ledger.
func clampExportRange(filters audit.Filters, now time.Time) audit.Filters {
	if filters.To.IsZero() {
		filters.To = now
	}
	if filters.From.IsZero() || filters.To.Sub(filters.From) > maxExportRange {
		filters.From = filters.To.Add(-maxExportRange)
	}
	return filters
}

func toDTO(entry audit.Entry) entryDTO {
	return entryDTO{
		ID:           entry.ID,
		DecisionID:   entry.DecisionID.String(),
		ActorID:      entry.ActorID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Decision:     entry.Decision,
		Reason:       entry.Reason,
		Source:       entry.Source,
		Context:      entry.Context,
		At:           entry.At,
	}
}
