package evaluator

import (
	"context"
	"fmt"

	"eldercare-rules/internal/models"
	"eldercare-rules/internal/roomconfig"

	"go.uber.org/zap"
)

// evaluateInactivity opens or closes the room's INACTIVITY alert. It returns
// the resolved config and elapsed seconds so the pre-alert step can reuse
// them; hasData is false when the room has never reported motion.
func (e *Engine) evaluateInactivity(ctx context.Context, ts *tickState, room string) (cfg models.RoomConfig, elapsed float64, hasData bool, err error) {
	cfg = roomconfig.Resolve(ts.doc, room)

	last, ok, err := e.telemetry.LastMotion(ctx, room)
	if err != nil {
		return cfg, 0, false, fmt.Errorf("failed to read last motion: %w", err)
	}
	if !ok {
		e.logger.Debug("No motion record, skipping inactivity", zap.String("room", room))
		return cfg, 0, false, nil
	}

	elapsed = ts.now.Sub(last).Seconds()
	inactivity := float64(cfg.InactivitySec)

	e.logger.Debug("Inactivity check",
		zap.String("room", room),
		zap.Float64("elapsed_sec", elapsed),
		zap.Int("inactivity_sec", cfg.InactivitySec),
		zap.Int("prealert_offset_sec", cfg.PrealertOffsetSec),
	)

	switch {
	case elapsed >= inactivity:
		if !cfg.Enabled {
			break
		}
		details := fmt.Sprintf("No motion for %.1f min", elapsed/60.0)
		opened, err := e.ensureOpen(ctx, NewAlert(models.RuleInactivity, room, models.SeverityHigh, details, ts.now))
		if err != nil {
			return cfg, elapsed, true, err
		}
		if opened {
			e.stopPrealert(ctx, room)
		}
	case inactivityResolved(cfg, elapsed):
		closed, err := e.ensureClosed(ctx, ts, models.RuleInactivity, room)
		if err != nil {
			return cfg, elapsed, true, err
		}
		if closed {
			e.stopPrealert(ctx, room)
		}
	}

	return cfg, elapsed, true, nil
}

// inactivityResolved reports whether an open INACTIVITY alert should close.
// Normally that is once elapsed is back at or below the start of the
// pre-alert window. Without a usable window, any elapsed below the
// threshold resolves it.
func inactivityResolved(cfg models.RoomConfig, elapsed float64) bool {
	if !cfg.PrealertWindowValid() {
		return elapsed < float64(cfg.InactivitySec)
	}
	return elapsed <= float64(cfg.StartWindow())
}
