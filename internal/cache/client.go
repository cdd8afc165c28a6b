// Package cache holds the optional redis-backed components: the open alert
// snapshot, shared pre-alert anti-spam state and the alert event stream.
package cache

import (
	"context"
	"fmt"

	"eldercare-rules/internal/config"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient creates a client and checks the connection.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
