// Package escalation publishes pre-alert commands to room actuators.
package escalation

import (
	"context"
	"encoding/json"
	"fmt"

	"eldercare-rules/internal/models"

	"go.uber.org/zap"
)

// Transport is the subset of the MQTT client used by the publisher.
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Publisher emits pre-alert start/stop commands. Commands are fire and
// forget: no acknowledgement is awaited and nothing is retained.
type Publisher struct {
	transport   Transport
	topicPrefix string
	qos         byte
	logger      *zap.Logger
}

// NewPublisher creates a publisher writing under topicPrefix.
func NewPublisher(transport Transport, topicPrefix string, qos byte, logger *zap.Logger) *Publisher {
	return &Publisher{
		transport:   transport,
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
	}
}

// Topic returns the pre-alert command topic of room.
func (p *Publisher) Topic(room string) string {
	return fmt.Sprintf("%s/%s/cmd/prealert", p.topicPrefix, room)
}

// Start asks the room's actuator to warn for ttlSec seconds.
func (p *Publisher) Start(ctx context.Context, room string, ttlSec int) error {
	return p.publish(ctx, room, models.NewStartCommand(models.ReasonInactivity, ttlSec))
}

// Stop cancels any active warning in room.
func (p *Publisher) Stop(ctx context.Context, room, reason string) error {
	return p.publish(ctx, room, models.NewStopCommand(reason))
}

func (p *Publisher) publish(ctx context.Context, room string, cmd models.EscalationCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation command: %w", err)
	}

	topic := p.Topic(room)
	if err := p.transport.Publish(topic, p.qos, false, payload); err != nil {
		p.logger.Warn("Dropped escalation command",
			zap.String("topic", topic),
			zap.String("action", cmd.Action),
			zap.Error(err),
		)
		return err
	}

	p.logger.Info("Escalation command published",
		zap.String("topic", topic),
		zap.ByteString("payload", payload),
	)
	return nil
}
