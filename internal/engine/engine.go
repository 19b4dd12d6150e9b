package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veridian-data/veridian/internal/shared"
)

// Recorder persists decision audit entries. Implementations must treat
// the ledger as append-only.
type Recorder interface {
	RecordDecision(ctx context.Context, rec DecisionRecord) error
}

// Metrics receives engine counters. A nil-safe no-op implementation is
// substituted when none is injected.
type Metrics interface {
	DecisionRecorded(source string, allowed bool)
	PermissionCacheHit()
	PermissionCacheMiss()
}

type noopMetrics struct{}

func (noopMetrics) DecisionRecorded(string, bool) {}
func (noopMetrics) PermissionCacheHit()           {}
func (noopMetrics) PermissionCacheMiss()          {}

// Options groups Engine dependencies.
type Options struct {
	Store    Store
	Recorder Recorder
	Cache    PermissionCache
	Metrics  Metrics
	Logger   *slog.Logger

	// Now overrides the clock, used by time_range conditions. Tests only.
	Now func() time.Time
}

// Engine evaluates permission requests with deny-overrides semantics.
// It is stateless per call apart from the injected cache and safe for
// concurrent use.
type Engine struct {
	store    Store
	recorder Recorder
	cache    PermissionCache
	metrics  Metrics
	logger   *slog.Logger
	sources  []grantSource
	now      func() time.Time
}

// New constructs an Engine. Store is required; every other dependency
// has a safe default.
func New(opts Options) *Engine {
	if opts.Store == nil {
		panic("engine: store is required")
	}
	e := &Engine{
		store:    opts.Store,
		recorder: opts.Recorder,
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if e.cache == nil {
		e.cache = noopCache{}
	}
	if e.metrics == nil {
		e.metrics = noopMetrics{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.sources = []grantSource{
		legacyRoleSource{},
		staticMapSource{},
		abacSource{now: e.now},
		hierarchySource{cache: e.cache, metrics: e.metrics, now: e.now},
		resourceScopeSource{now: e.now},
	}
	return e
}

// Evaluate runs the full decision pipeline for req. It returns an error
// only for caller contract violations (shared.ErrInvalidInput); every
// internal failure is converted into a fail-closed deny. Each call,
// whatever its outcome, appends exactly one audit record.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Decision, error) {
	if strings.TrimSpace(req.Action) == "" {
		return Decision{}, fmt.Errorf("%w: action is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(req.ResourceType) == "" {
		return Decision{}, fmt.Errorf("%w: resource type is required", shared.ErrInvalidInput)
	}

	decision := Decision{ID: uuid.New()}
	err := e.store.Snapshot(ctx, func(st Store) error {
		decision = e.decide(ctx, st, req, decision.ID)
		return nil
	})
	if err != nil {
		// Snapshot setup failed before any source ran. Fail closed.
		e.logger.Error("evaluation snapshot failed", slog.Any("error", err))
		decision.Allowed = false
		decision.Reason = "evaluation error"
		decision.Source = SourceNone
	}

	e.metrics.DecisionRecorded(decision.Source, decision.Allowed)
	e.audit(ctx, req, decision)
	return decision, nil
}

// CheckPermission is the convenience wrapper used pervasively by route
// handlers; the reason is discarded, the audit side effect is identical.
func (e *Engine) CheckPermission(ctx context.Context, userID int64, action, resource string) bool {
	decision, err := e.Evaluate(ctx, Request{UserID: userID, Action: action, ResourceType: resource})
	if err != nil {
		return false
	}
	return decision.Allowed
}

// InvalidateUser drops the cached grant set for one user. userID 0
// purges the whole cache.
func (e *Engine) InvalidateUser(userID int64) {
	if userID == 0 {
		e.cache.Purge()
		return
	}
	e.cache.Invalidate(userID)
}

// WarmUser pre-resolves the hierarchical grant set for one user into
// the cache. No decision is made and nothing is audited; unknown users
// are skipped silently since warmup lists can go stale.
func (e *Engine) WarmUser(ctx context.Context, userID int64) error {
	return e.store.Snapshot(ctx, func(st Store) error {
		user, err := st.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return nil
			}
			return fmt.Errorf("engine: warm user %d: %w", userID, err)
		}
		if !user.Active {
			return nil
		}
		groupIDs, err := st.GroupIDs(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("engine: warm user %d: %w", userID, err)
		}
		grants, err := resolveHierarchy(ctx, st, user, groupIDs)
		if err != nil {
			return fmt.Errorf("engine: warm user %d: %w", userID, err)
		}
		e.cache.Set(user.ID, grants)
		return nil
	})
}

func (e *Engine) decide(ctx context.Context, st Store, req Request, id uuid.UUID) Decision {
	deny := func(reason, source string) Decision {
		return Decision{ID: id, Allowed: false, Reason: reason, Source: source}
	}

	user, err := st.GetUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return deny("user not found", SourceNone)
		}
		e.logger.Error("load user", slog.Int64("user_id", req.UserID), slog.Any("error", err))
		return deny("evaluation error", SourceNone)
	}
	if !user.Active {
		return deny("user inactive", SourceNone)
	}

	groupIDs, err := st.GroupIDs(ctx, user.ID)
	if err != nil {
		e.logger.Error("load groups", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return deny("evaluation error", SourceNone)
	}

	// Deny assignments gate everything; no allow path may outrank them.
	blocked, err := checkDeny(ctx, st, user, groupIDs, req, e.now(), e.logger)
	if err != nil {
		e.logger.Error("deny check", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return deny("evaluation error", SourceNone)
	}
	if blocked {
		return deny("explicit deny", SourceDeny)
	}

	for _, src := range e.sources {
		v, matched, err := src.evaluate(ctx, st, user, req)
		if err != nil {
			e.logger.Error("grant source failed",
				slog.String("source", src.name()),
				slog.Int64("user_id", user.ID),
				slog.Any("error", err))
			continue
		}
		if matched {
			return Decision{ID: id, Allowed: v.allowed, Reason: v.reason, Source: src.name()}
		}
	}

	return deny("no matching permission", SourceNone)
}

// audit appends the decision record. A write failure is logged and
// swallowed; the decision already computed is returned regardless.
func (e *Engine) audit(ctx context.Context, req Request, decision Decision) {
	if e.recorder == nil {
		return
	}
	rec := DecisionRecord{
		DecisionID:   decision.ID,
		ActorID:      req.UserID,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Allowed:      decision.Allowed,
		Reason:       decision.Reason,
		Source:       decision.Source,
		Context:      req.Context,
		At:           e.now().UTC(),
	}
	if err := e.recorder.RecordDecision(ctx, rec); err != nil {
		e.logger.Error("audit write failed",
			slog.String("decision_id", decision.ID.String()),
			slog.Any("error", err))
	}
}
