package service

import (
	"context"

	"eldercare-rules/internal/cache"
	"eldercare-rules/internal/config"
	"eldercare-rules/internal/escalation"
	"eldercare-rules/internal/evaluator"
	"eldercare-rules/internal/models"
	"eldercare-rules/internal/repository"

	"go.uber.org/zap"
)

// OpenAlertService connects to the store (and redis, when configured) for
// one-shot operator commands. The returned func releases the connections.
func OpenAlertService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*AlertService, func(), error) {
	db, dialect, err := repository.Open(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){func() { db.Close() }}

	var listeners []evaluator.AlertListener
	if cfg.Redis.Enabled() {
		redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			// The stream is best effort; operator actions still go through.
			logger.Warn("Redis unavailable, alert stream disabled", zap.Error(err))
		} else {
			closers = append(closers, func() { redisClient.Close() })
			listeners = append(listeners, cache.NewAlertStream(redisClient, cfg.Cache.AlertStream, logger))
		}
	}

	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	alertsRepo := repository.NewAlertsRepository(db, dialect, logger)
	return NewAlertService(alertsRepo, listeners, nil, logger), release, nil
}

// StopPrealert sends a manual stop command to room.
func StopPrealert(ctx context.Context, cfg *config.Config, room string, logger *zap.Logger) error {
	client, err := escalation.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	publisher := escalation.NewPublisher(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, logger)
	return publisher.Stop(ctx, room, models.ReasonManual)
}
