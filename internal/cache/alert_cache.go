package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"eldercare-rules/internal/config"
	"eldercare-rules/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AlertCache publishes the open alerts of every scope for dashboards.
type AlertCache struct {
	config      *config.CacheConfig
	redisClient *redis.Client
	logger      *zap.Logger

	// keys written by the previous snapshot, so closed scopes are cleared
	written map[string]struct{}
}

// NewAlertCache creates an alert cache.
func NewAlertCache(cfg *config.CacheConfig, redisClient *redis.Client, logger *zap.Logger) *AlertCache {
	return &AlertCache{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
		written:     make(map[string]struct{}),
	}
}

// Key returns the cache key of an alert scope.
func (c *AlertCache) Key(kind models.ScopeKind, scope string) string {
	return fmt.Sprintf("%s%s:%s:alerts", c.config.AlertKeyPrefix, kind, scope)
}

// UpdateAlertCache replaces the snapshot with alerts. Each scope key gets the
// configured TTL; scopes that no longer have open alerts are deleted.
func (c *AlertCache) UpdateAlertCache(ctx context.Context, alerts []*models.Alert) error {
	grouped := make(map[string][]*models.Alert)
	for _, a := range alerts {
		key := c.Key(a.ScopeKind(), a.Scope)
		grouped[key] = append(grouped[key], a)
	}

	pipe := c.redisClient.TxPipeline()
	for key, scoped := range grouped {
		jsonData, err := json.Marshal(scoped)
		if err != nil {
			return fmt.Errorf("failed to marshal alert cache: %w", err)
		}
		pipe.Set(ctx, key, jsonData, c.config.AlertTTL)
	}
	var stale []string
	for key := range c.written {
		if _, ok := grouped[key]; !ok {
			stale = append(stale, key)
		}
	}
	if len(stale) > 0 {
		pipe.Del(ctx, stale...)
	}

	if len(grouped) == 0 && len(stale) == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set alert cache: %w", err)
	}

	c.written = make(map[string]struct{}, len(grouped))
	for key := range grouped {
		c.written[key] = struct{}{}
	}

	c.logger.Debug("Updated alert cache",
		zap.Int("scope_count", len(grouped)),
		zap.Int("alert_count", len(alerts)),
		zap.Int("cleared", len(stale)),
	)

	return nil
}

// GetAlerts reads the cached open alerts of one scope.
func (c *AlertCache) GetAlerts(ctx context.Context, kind models.ScopeKind, scope string) ([]models.Alert, error) {
	val, err := c.redisClient.Get(ctx, c.Key(kind, scope)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert cache: %w", err)
	}

	var alerts []models.Alert
	if err := json.Unmarshal([]byte(val), &alerts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert cache: %w", err)
	}
	return alerts, nil
}
