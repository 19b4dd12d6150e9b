package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// InvalidationChannel carries cache invalidation broadcasts between
// instances. The payload is a user ID, or "*" to purge everything.
const InvalidationChannel = "veridian:permission-cache:invalidate"

// WarmChannel carries warmup requests. Background jobs publish user
// IDs here; every serving instance pre-resolves the grant set into its
// own cache.
const WarmChannel = "veridian:permission-cache:warm"

const purgeAllPayload = "*"

// Warmer pre-resolves one user's grant set into the local cache.
type Warmer interface {
	WarmUser(ctx context.Context, userID int64) error
}

// Invalidator fans permission-cache invalidations and warmup requests
// out over redis pub/sub so every instance keeps its local cache
// current.
type Invalidator struct {
	rdb    *redis.Client
	cache  PermissionCache
	warmer Warmer
	logger *slog.Logger
}

// NewInvalidator wires an invalidator for the given cache. warmer may
// be nil on instances that only publish.
func NewInvalidator(rdb *redis.Client, cache PermissionCache, warmer Warmer, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{rdb: rdb, cache: cache, warmer: warmer, logger: logger}
}

// Publish broadcasts an invalidation for one user, or for every user
// when userID is 0. The local cache is invalidated immediately so the
// publishing instance never serves the stale entry while the broadcast
// is in flight.
func (i *Invalidator) Publish(ctx context.Context, userID int64) error {
	i.apply(userID)
	payload := purgeAllPayload
	if userID != 0 {
		payload = strconv.FormatInt(userID, 10)
	}
	if err := i.rdb.Publish(ctx, InvalidationChannel, payload).Err(); err != nil {
		return fmt.Errorf("engine: publish invalidation: %w", err)
	}
	return nil
}

// RequestWarm asks every subscribed instance to pre-resolve the user's
// grant set. Nothing is warmed in the publishing process.
func (i *Invalidator) RequestWarm(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("engine: warm request needs a user id, got %d", userID)
	}
	payload := strconv.FormatInt(userID, 10)
	if err := i.rdb.Publish(ctx, WarmChannel, payload).Err(); err != nil {
		return fmt.Errorf("engine: publish warm request: %w", err)
	}
	return nil
}

// Run subscribes to both channels and applies broadcasts to the local
// cache until ctx is cancelled.
func (i *Invalidator) Run(ctx context.Context) error {
	sub := i.rdb.Subscribe(ctx, InvalidationChannel, WarmChannel)
	defer func() {
		_ = sub.Close()
	}()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			i.dispatch(ctx, msg)
		}
	}
}

func (i *Invalidator) dispatch(ctx context.Context, msg *redis.Message) {
	if msg.Channel == InvalidationChannel && msg.Payload == purgeAllPayload {
		i.apply(0)
		return
	}
	userID, err := strconv.ParseInt(msg.Payload, 10, 64)
	if err != nil {
		i.logger.Warn("unparseable cache broadcast",
			slog.String("channel", msg.Channel),
			slog.String("payload", msg.Payload))
		return
	}
	switch msg.Channel {
	case InvalidationChannel:
		i.apply(userID)
	case WarmChannel:
		if i.warmer == nil {
			return
		}
		if err := i.warmer.WarmUser(ctx, userID); err != nil {
			i.logger.Warn("cache warmup",
				slog.Int64("user_id", userID),
				slog.Any("error", err))
		}
	}
}

func (i *Invalidator) apply(userID int64) {
	if i.cache == nil {
		return
	}
	if userID == 0 {
		i.cache.Purge()
		return
	}
	i.cache.Invalidate(userID)
}
