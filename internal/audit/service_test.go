package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/veridian-data/veridian/internal/engine"
)

type stubRepo struct {
	entries []Entry

	lastLimit  int
	lastOffset int
	lastCutoff time.Time
	deleted    int64
}

func (s *stubRepo) Insert(ctx context.Context, entry Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubRepo) Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	s.lastLimit = limit
	s.lastOffset = offset
	if offset >= len(s.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.entries) {
		end = len(s.entries)
	}
	return s.entries[offset:end], nil
}

func (s *stubRepo) All(ctx context.Context, filters Filters) ([]Entry, error) {
	return s.entries, nil
}

func (s *stubRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.lastCutoff = cutoff
	return s.deleted, nil
}

func TestRecordDecisionMapsFields(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)

	id := uuid.New()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	err := svc.RecordDecision(context.Background(), engine.DecisionRecord{
		DecisionID:   id,
		ActorID:      42,
		Action:       "view",
		ResourceType: "datasource",
		ResourceID:   "7",
		Allowed:      true,
		Reason:       "role:viewer",
		Source:       engine.SourceLegacyRole,
		Context:      map[string]any{"user_id": 42},
		At:           at,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.Decision != DecisionGranted {
		t.Fatalf("expected decision %q, got %q", DecisionGranted, entry.Decision)
	}
	if entry.DecisionID != id || entry.ActorID != 42 || entry.Reason != "role:viewer" {
		t.Fatalf("entry fields not mapped: %+v", entry)
	}
	if !entry.At.Equal(at) {
		t.Fatalf("expected timestamp preserved, got %v", entry.At)
	}
}

func TestRecordDecisionDenied(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)

	err := svc.RecordDecision(context.Background(), engine.DecisionRecord{
		DecisionID: uuid.New(),
		Allowed:    false,
		Reason:     "explicit deny",
		Source:     engine.SourceDeny,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if repo.entries[0].Decision != DecisionDenied {
		t.Fatalf("expected decision %q, got %q", DecisionDenied, repo.entries[0].Decision)
	}
}

func TestQueryPaging(t *testing.T) {
	repo := &stubRepo{}
	for i := 0; i < 5; i++ {
		repo.entries = append(repo.entries, Entry{ID: int64(i + 1), Decision: DecisionGranted})
	}
	svc := NewService(repo, nil)

	result, err := svc.Query(context.Background(), Filters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext {
		t.Fatal("expected hasNext true")
	}
	if repo.lastLimit != 3 {
		t.Fatalf("expected window limit 3, got %d", repo.lastLimit)
	}
	if repo.lastOffset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastOffset)
	}

	result, err = svc.Query(context.Background(), Filters{Page: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 row on last page, got %d", len(result.Rows))
	}
	if result.Paging.HasNext {
		t.Fatal("expected hasNext false on last page")
	}
	if result.Paging.PrevPage != 2 {
		t.Fatalf("expected prev page 2, got %d", result.Paging.PrevPage)
	}
}

func TestQueryClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)

	if _, err := svc.Query(context.Background(), Filters{PageSize: 10_000}); err != nil {
		t.Fatalf("query: %v", err)
	}
	if repo.lastLimit != maxPageSize+1 {
		t.Fatalf("expected clamped limit %d, got %d", maxPageSize+1, repo.lastLimit)
	}
}

func TestPurgeBefore(t *testing.T) {
	repo := &stubRepo{deleted: 12}
	svc := NewService(repo, nil)

	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	removed, err := svc.PurgeBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 12 {
		t.Fatalf("expected 12 removed, got %d", removed)
	}
	if !repo.lastCutoff.Equal(cutoff) {
		t.Fatalf("expected cutoff passed through, got %v", repo.lastCutoff)
	}
}
