package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eldercare-rules/internal/evaluator"
	"eldercare-rules/internal/models"
	"eldercare-rules/internal/repository"

	"go.uber.org/zap"
)

// OperatorTimeout bounds a single operator action.
const OperatorTimeout = 10 * time.Second

// ErrAlertNotOpen is returned when an operator action targets a closed alert.
var ErrAlertNotOpen = errors.New("alert is not open")

// ErrAlreadyAcknowledged is returned when acknowledging twice.
var ErrAlreadyAcknowledged = errors.New("alert already acknowledged")

// AlertService carries out operator actions on alerts.
// Rule-driven opening and closing stays with the engine.
type AlertService struct {
	alertsRepo *repository.AlertsRepository
	listeners  []evaluator.AlertListener
	clock      evaluator.Clock
	logger     *zap.Logger
}

// NewAlertService creates an alert service.
func NewAlertService(
	alertsRepo *repository.AlertsRepository,
	listeners []evaluator.AlertListener,
	clock evaluator.Clock,
	logger *zap.Logger,
) *AlertService {
	if clock == nil {
		clock = evaluator.SystemClock{}
	}
	return &AlertService{
		alertsRepo: alertsRepo,
		listeners:  listeners,
		clock:      clock,
		logger:     logger,
	}
}

// GetAlert returns one alert.
func (s *AlertService) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	if id <= 0 {
		return nil, fmt.Errorf("alert id must be positive")
	}
	return s.alertsRepo.Get(ctx, id)
}

// ListOpenAlerts returns every open alert.
func (s *AlertService) ListOpenAlerts(ctx context.Context) ([]*models.Alert, error) {
	alerts, err := s.alertsRepo.ListOpen(ctx)
	if err != nil {
		s.logger.Error("Failed to list open alerts", zap.Error(err))
		return nil, fmt.Errorf("failed to list open alerts: %w", err)
	}
	return alerts, nil
}

// AcknowledgeAlert marks an open alert as seen by handler. The alert stays open.
func (s *AlertService) AcknowledgeAlert(ctx context.Context, id int64, handler string) (*models.Alert, error) {
	if handler == "" {
		return nil, fmt.Errorf("handler is required")
	}

	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if !alert.IsOpen() {
		return nil, fmt.Errorf("%w: id=%d", ErrAlertNotOpen, id)
	}
	if alert.IsAcknowledged() {
		return nil, fmt.Errorf("%w: id=%d", ErrAlreadyAcknowledged, id)
	}

	ok, err := s.alertsRepo.Ack(ctx, id, handler, s.clock.Now().UTC())
	if err != nil {
		s.logger.Error("Failed to acknowledge alert",
			zap.Int64("alert_id", id),
			zap.Error(err),
		)
		return nil, err
	}
	if !ok {
		// Closed or acknowledged by someone else in the meantime.
		return nil, fmt.Errorf("%w: id=%d", ErrAlertNotOpen, id)
	}

	s.logger.Info("Alert acknowledged",
		zap.Int64("alert_id", id),
		zap.String("handler", handler),
	)
	return s.alertsRepo.Get(ctx, id)
}

// CloseAlert closes an open alert on behalf of an operator. If the rule
// condition still holds, the engine opens a new alert on a later tick.
func (s *AlertService) CloseAlert(ctx context.Context, id int64) (*models.Alert, error) {
	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if !alert.IsOpen() {
		return nil, fmt.Errorf("%w: id=%d", ErrAlertNotOpen, id)
	}

	now := s.clock.Now().UTC()
	ok, err := s.alertsRepo.CloseByID(ctx, id, now)
	if err != nil {
		s.logger.Error("Failed to close alert",
			zap.Int64("alert_id", id),
			zap.Error(err),
		)
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id=%d", ErrAlertNotOpen, id)
	}

	for _, l := range s.listeners {
		if err := l.AlertClosed(ctx, alert.Rule, alert.Scope, now); err != nil {
			s.logger.Warn("Alert listener failed",
				zap.Int64("alert_id", id),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Alert closed by operator",
		zap.Int64("alert_id", id),
		zap.String("rule", alert.Rule),
		zap.String("scope", alert.Scope),
	)

	return s.alertsRepo.Get(ctx, id)
}
