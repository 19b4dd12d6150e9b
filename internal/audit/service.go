package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridian-data/veridian/internal/engine"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Repository provides ledger persistence.
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error)
	All(ctx context.Context, filters Filters) ([]Entry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service coordinates ledger writes and compliance queries.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds a ledger service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// RecordDecision appends one entry for an engine decision. It
// implements engine.Recorder; the engine swallows any error returned
// here so a ledger outage never blocks a decision.
func (s *Service) RecordDecision(ctx context.Context, rec engine.DecisionRecord) error {
	decision := DecisionDenied
	if rec.Allowed {
		decision = DecisionGranted
	}
	entry := Entry{
		DecisionID:   rec.DecisionID,
		ActorID:      rec.ActorID,
		Action:       rec.Action,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		Decision:     decision,
		Reason:       rec.Reason,
		Source:       rec.Source,
		Context:      rec.Context,
		At:           rec.At,
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("audit: record decision: %w", err)
	}
	return nil
}

// Query returns one page of ledger entries matching the filters,
// newest first.
func (s *Service) Query(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Window(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every entry matching the filters without paging.
func (s *Service) Export(ctx context.Context, filters Filters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.All(ctx, filters)
}

// PurgeBefore removes entries older than cutoff. Retention is an
// operational concern; callers decide the window.
func (s *Service) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	removed, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	if removed > 0 {
		s.logger.Info("audit retention sweep",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff))
	}
	return removed, nil
}
