package cache

import (
	"context"
	"fmt"
	"time"

	"eldercare-rules/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stream event actions.
const (
	StreamActionOpened = "opened"
	StreamActionClosed = "closed"
)

const defaultStreamMaxLen = 10000

// AlertStream appends alert lifecycle events to a redis stream consumed by
// the notifier.
type AlertStream struct {
	redisClient *redis.Client
	stream      string
	logger      *zap.Logger
}

// NewAlertStream creates an alert stream writer.
func NewAlertStream(redisClient *redis.Client, stream string, logger *zap.Logger) *AlertStream {
	return &AlertStream{
		redisClient: redisClient,
		stream:      stream,
		logger:      logger,
	}
}

// AlertOpened records an opened alert.
func (s *AlertStream) AlertOpened(ctx context.Context, alert *models.Alert) error {
	_, err := s.publish(ctx, map[string]interface{}{
		"action":   StreamActionOpened,
		"alert_id": alert.ID,
		"rule":     alert.Rule,
		"scope":    alert.Scope,
		"severity": alert.Severity,
		"details":  alert.Details,
		"ts":       alert.TsUTC,
	})
	return err
}

// AlertClosed records a closed alert.
func (s *AlertStream) AlertClosed(ctx context.Context, rule, scope string, at time.Time) error {
	_, err := s.publish(ctx, map[string]interface{}{
		"action": StreamActionClosed,
		"rule":   rule,
		"scope":  scope,
		"ts":     at,
	})
	return err
}

func (s *AlertStream) publish(ctx context.Context, values map[string]interface{}) (string, error) {
	eventID := uuid.New().String()
	streamValues := map[string]interface{}{"event_id": eventID}
	for k, v := range values {
		switch val := v.(type) {
		case string:
			streamValues[k] = val
		case int64:
			streamValues[k] = fmt.Sprintf("%d", val)
		case time.Time:
			streamValues[k] = val.UTC().Format(time.RFC3339)
		default:
			streamValues[k] = fmt.Sprintf("%v", val)
		}
	}

	id, err := s.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: defaultStreamMaxLen,
		Values: streamValues,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish alert event: %w", err)
	}

	s.logger.Debug("Alert event published",
		zap.String("stream", s.stream),
		zap.String("id", id),
		zap.String("event_id", eventID),
		zap.Any("action", values["action"]),
	)
	return id, nil
}
