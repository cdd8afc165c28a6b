package evaluator

import (
	"context"
	"fmt"
	"time"

	"eldercare-rules/internal/models"

	"go.uber.org/zap"
)

// evaluateDwell applies the dwell rule to a critical room. Counts between 1
// and min_dwell inclusive leave the alert state unchanged.
func (e *Engine) evaluateDwell(ctx context.Context, ts *tickState, room string) error {
	if !ts.settings.IsCritical(room) {
		return nil
	}

	minDwell := ts.settings.MinDwell(room)
	since := ts.now.Add(-time.Duration(minDwell * float64(time.Minute)))

	count, err := e.telemetry.CountMotionSince(ctx, room, since)
	if err != nil {
		return fmt.Errorf("failed to count motion: %w", err)
	}

	e.logger.Debug("Dwell check",
		zap.String("room", room),
		zap.Int("count", count),
		zap.Float64("min_dwell", minDwell),
	)

	switch {
	case float64(count) > minDwell:
		details := fmt.Sprintf("High activity for %d min", int(minDwell))
		_, err = e.ensureOpen(ctx, NewAlert(models.RuleDwellCritical, room, models.SeverityMedium, details, ts.now))
	case count < 1:
		_, err = e.ensureClosed(ctx, ts, models.RuleDwellCritical, room)
	}
	return err
}
