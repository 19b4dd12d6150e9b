// Package jobs holds the Asynq task definitions and the background
// worker runtime.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskAuditRetention trims audit ledger entries past the retention
	// window.
	TaskAuditRetention = "audit:retention"

	// TaskCacheWarmup pre-resolves hierarchical grant sets for a batch
	// of users.
	TaskCacheWarmup = "cache:warmup"
)

// AuditRetentionPayload carries the retention window for the prune run.
type AuditRetentionPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditRetentionTask constructs an Asynq task.
func NewAuditRetentionTask(payload AuditRetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, data), nil
}

// CacheWarmupPayload lists the users to warm.
type CacheWarmupPayload struct {
	UserIDs []int64 `json:"user_ids"`
}

// NewCacheWarmupTask constructs an Asynq task.
func NewCacheWarmupTask(payload CacheWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheWarmup, data), nil
}

// LedgerPruner trims old audit entries.
type LedgerPruner interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CacheWarmer fans a warmup request out to the serving instances,
// whose caches answer interactive traffic. The worker process holds no
// cache worth filling.
type CacheWarmer interface {
	RequestWarm(ctx context.Context, userID int64) error
}

// NewAuditRetentionHandler returns the handler for TaskAuditRetention.
func NewAuditRetentionHandler(pruner LedgerPruner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditRetentionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			return asynq.SkipRetry
		}
		cutoff := time.Now().UTC().Add(-payload.Retention)
		removed, err := pruner.PurgeBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		logger.Info("audit retention run",
			slog.Time("cutoff", cutoff),
			slog.Int64("removed", removed))
		return nil
	}
}

// NewCacheWarmupHandler returns the handler for TaskCacheWarmup. A
// failing user does not abort the batch.
func NewCacheWarmupHandler(warmer CacheWarmer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload CacheWarmupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		requested := 0
		for _, userID := range payload.UserIDs {
			if err := warmer.RequestWarm(ctx, userID); err != nil {
				logger.Warn("cache warmup",
					slog.Int64("user_id", userID),
					slog.Any("error", err))
				continue
			}
			requested++
		}
		logger.Info("cache warmup run", slog.Int("requested", requested))
		return nil
	}
}
