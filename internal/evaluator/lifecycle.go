package evaluator

import (
	"context"
	"errors"
	"fmt"

	"eldercare-rules/internal/models"
	"eldercare-rules/internal/repository"

	"go.uber.org/zap"
)

// ensureOpen opens an alert unless one is already open for its (rule, scope).
// It reports whether a new row was written.
func (e *Engine) ensureOpen(ctx context.Context, alert *models.Alert) (bool, error) {
	open, err := e.alerts.HasOpen(ctx, alert.Rule, alert.Scope)
	if err != nil {
		return false, err
	}
	if open {
		return false, nil
	}

	id, err := e.alerts.Open(ctx, alert)
	if errors.Is(err, repository.ErrAlertAlreadyOpen) {
		// Another writer opened it between the check and the insert.
		e.logger.Info("Alert already open",
			zap.String("rule", alert.Rule),
			zap.String("scope", alert.Scope),
		)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to open %s alert for %s: %w", alert.Rule, alert.Scope, err)
	}

	e.logger.Info("Alert opened",
		zap.Int64("alert_id", id),
		zap.String("rule", alert.Rule),
		zap.String("scope", alert.Scope),
		zap.String("severity", alert.Severity),
		zap.String("details", alert.Details),
	)

	for _, l := range e.listeners {
		if err := l.AlertOpened(ctx, alert); err != nil {
			e.logger.Warn("Alert listener failed",
				zap.Int64("alert_id", id),
				zap.Error(err),
			)
		}
	}
	return true, nil
}

// ensureClosed closes the open alert of (rule, scope), if any.
func (e *Engine) ensureClosed(ctx context.Context, ts *tickState, rule, scope string) (bool, error) {
	open, err := e.alerts.HasOpen(ctx, rule, scope)
	if err != nil {
		return false, err
	}
	if !open {
		return false, nil
	}

	closed, err := e.alerts.Close(ctx, rule, scope, ts.now.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to close %s alert for %s: %w", rule, scope, err)
	}
	if !closed {
		return false, nil
	}

	e.logger.Info("Alert closed",
		zap.String("rule", rule),
		zap.String("scope", scope),
	)

	for _, l := range e.listeners {
		if err := l.AlertClosed(ctx, rule, scope, ts.now.UTC()); err != nil {
			e.logger.Warn("Alert listener failed",
				zap.String("rule", rule),
				zap.String("scope", scope),
				zap.Error(err),
			)
		}
	}
	return true, nil
}

// stopPrealert publishes a stop command. Bus failures are logged by the
// publisher and otherwise ignored; the next tick recomputes the decision.
func (e *Engine) stopPrealert(ctx context.Context, room string) {
	_ = e.publisher.Stop(ctx, room, models.ReasonInactivity)
}
