package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"eldercare-rules/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PrealertStateStore keeps the last pre-alert send time of each room in
// redis, so a restarted engine honours the anti-spam interval.
type PrealertStateStore struct {
	config      *config.CacheConfig
	interval    time.Duration
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewPrealertStateStore creates the store. interval is the anti-spam interval
// and doubles as the key TTL.
func NewPrealertStateStore(cfg *config.CacheConfig, interval time.Duration, redisClient *redis.Client, logger *zap.Logger) *PrealertStateStore {
	return &PrealertStateStore{
		config:      cfg,
		interval:    interval,
		redisClient: redisClient,
		logger:      logger,
	}
}

// GetStateKey builds the key of room.
func (s *PrealertStateStore) GetStateKey(room string) string {
	return s.config.StateKeyPrefix + room
}

// Allow reports whether a start command may be sent to room at now.
func (s *PrealertStateStore) Allow(ctx context.Context, room string, now time.Time) (bool, error) {
	val, err := s.redisClient.Get(ctx, s.GetStateKey(room)).Result()
	if err != nil {
		if err == redis.Nil {
			return true, nil
		}
		return false, fmt.Errorf("failed to get pre-alert state: %w", err)
	}

	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		s.logger.Warn("Ignoring unreadable pre-alert state",
			zap.String("room", room),
			zap.String("value", val),
		)
		return true, nil
	}

	return now.Sub(time.Unix(0, nanos)) >= s.interval, nil
}

// Record stores now as the last send time of room.
func (s *PrealertStateStore) Record(ctx context.Context, room string, now time.Time) error {
	err := s.redisClient.Set(ctx, s.GetStateKey(room), strconv.FormatInt(now.UnixNano(), 10), s.interval).Err()
	if err != nil {
		return fmt.Errorf("failed to set pre-alert state: %w", err)
	}
	return nil
}
