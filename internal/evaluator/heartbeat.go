package evaluator

import (
	"context"
	"fmt"

	"eldercare-rules/internal/models"

	"go.uber.org/zap"
)

// evaluateHeartbeats applies the heartbeat rule to every device that has
// ever sent a heartbeat.
func (e *Engine) evaluateHeartbeats(ctx context.Context, ts *tickState) {
	devices, err := e.telemetry.HeartbeatDevices(ctx)
	if err != nil {
		e.logger.Error("Failed to list heartbeat devices", zap.Error(err))
		return
	}

	for _, device := range devices {
		if ctx.Err() != nil {
			return
		}
		if err := e.evaluateHeartbeat(ctx, ts, device); err != nil {
			e.logger.Error("Failed to evaluate heartbeat",
				zap.String("device_id", device),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) evaluateHeartbeat(ctx context.Context, ts *tickState, device string) error {
	last, ok, err := e.telemetry.LastHeartbeat(ctx, device)
	if err != nil {
		return fmt.Errorf("failed to read last heartbeat: %w", err)
	}
	if !ok {
		return nil
	}

	delta := ts.now.Sub(last)
	if delta > e.opts.HeartbeatTimeout {
		details := fmt.Sprintf("No heartbeat for %ds", int(delta.Seconds()))
		_, err = e.ensureOpen(ctx, NewAlert(models.RuleNoHeartbeat, device, models.SeverityHigh, details, ts.now))
		return err
	}

	_, err = e.ensureClosed(ctx, ts, models.RuleNoHeartbeat, device)
	return err
}
