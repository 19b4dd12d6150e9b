package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

type stubPruner struct {
	cutoff  time.Time
	removed int64
	err     error
}

func (s *stubPruner) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.removed, s.err
}

type stubWarmer struct {
	requested []int64
	failOn int64
}

func (s *stubWarmer) RequestWarm(_ context.Context, userID int64) error {
	if userID == s.failOn {
		return errors.New("store unavailable")
	}
	s.requested = append(s.requested, userID)
	return nil
}

func TestAuditRetentionHandler(t *testing.T) {
	pruner := &stubPruner{removed: 12}
	handler := NewAuditRetentionHandler(pruner, slog.Default())

	task, err := NewAuditRetentionTask(AuditRetentionPayload{Retention: 30 * 24 * time.Hour})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handler: %v", err)
	}

	wantCutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	if diff := pruner.cutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff = %v, want about %v", pruner.cutoff, wantCutoff)
	}
}

func TestAuditRetentionHandlerSkipsBadPayload(t *testing.T) {
	handler := NewAuditRetentionHandler(&stubPruner{}, slog.Default())

	err := handler(context.Background(), asynq.NewTask(TaskAuditRetention, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestAuditRetentionHandlerSkipsZeroRetention(t *testing.T) {
	handler := NewAuditRetentionHandler(&stubPruner{}, slog.Default())

	task, _ := NewAuditRetentionTask(AuditRetentionPayload{})
	if err := handler(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestCacheWarmupHandlerContinuesPastFailures(t *testing.T) {
	warmer := &stubWarmer{failOn: 2}
	handler := NewCacheWarmupHandler(warmer, slog.Default())

	task, err := NewCacheWarmupTask(CacheWarmupPayload{UserIDs: []int64{1, 2, 3}})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(warmer.requested) != 2 || warmer.requested[0] != 1 || warmer.requested[1] != 3 {
		t.Fatalf("requested = %v", warmer.requested)
	}
}
