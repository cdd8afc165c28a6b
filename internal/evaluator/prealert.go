package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eldercare-rules/internal/models"
	"eldercare-rules/internal/roomconfig"

	"go.uber.org/zap"
)

// PrealertLimiter rate limits pre-alert start commands per room.
type PrealertLimiter interface {
	Allow(ctx context.Context, room string, now time.Time) (bool, error)
	Record(ctx context.Context, room string, now time.Time) error
}

// MemoryLimiter keeps the last send time of each room in process memory.
// State is lost on restart.
type MemoryLimiter struct {
	interval time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewMemoryLimiter creates a limiter allowing one send per interval.
func NewMemoryLimiter(interval time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		interval: interval,
		lastSent: make(map[string]time.Time),
	}
}

// Allow implements PrealertLimiter.
func (l *MemoryLimiter) Allow(_ context.Context, room string, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.lastSent[room]
	if !ok {
		return true, nil
	}
	return now.Sub(last) >= l.interval, nil
}

// Record implements PrealertLimiter.
func (l *MemoryLimiter) Record(_ context.Context, room string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSent[room] = now
	return nil
}

// PrealertMachine decides when a room gets a pre-alert start command.
//
// A room is Idle until elapsed enters [start_window, inactivity); it is
// then Armed and a start is sent, repeated at most once per anti-spam
// interval while the window holds. Leaving the window returns it to Idle;
// the matching stop is sent by the inactivity rule.
type PrealertMachine struct {
	limiter   PrealertLimiter
	publisher EscalationPublisher
	location  *time.Location
	logger    *zap.Logger
}

// NewPrealertMachine creates the state machine.
func NewPrealertMachine(limiter PrealertLimiter, publisher EscalationPublisher, location *time.Location, logger *zap.Logger) *PrealertMachine {
	return &PrealertMachine{
		limiter:   limiter,
		publisher: publisher,
		location:  location,
		logger:    logger,
	}
}

// InPrealertWindow reports whether elapsed lies in [start_window, inactivity).
// An invalid window is empty.
func InPrealertWindow(cfg models.RoomConfig, elapsed float64) bool {
	if !cfg.PrealertWindowValid() {
		return false
	}
	return float64(cfg.StartWindow()) <= elapsed && elapsed < float64(cfg.InactivitySec)
}

// PrealertTTL is the remaining time to the hard threshold, at least 1s.
func PrealertTTL(cfg models.RoomConfig, elapsed float64) int {
	ttl := int(float64(cfg.InactivitySec) - elapsed)
	if ttl < 1 {
		return 1
	}
	return ttl
}

// Evaluate sends a start command when every guard holds and reports whether
// one was sent. The send time is recorded only after a successful publish,
// so a dropped command is retried on the next tick. Limiter failures are
// logged and never block a start.
func (m *PrealertMachine) Evaluate(ctx context.Context, room string, cfg models.RoomConfig, elapsed float64, now time.Time) (bool, error) {
	if !cfg.Enabled || !InPrealertWindow(cfg, elapsed) {
		return false, nil
	}

	night, err := roomconfig.InNightWindow(cfg, now.In(m.location))
	if err != nil {
		m.logger.Warn("Invalid night window, treating as inactive",
			zap.String("room", room),
			zap.String("from", cfg.NightWindow.From),
			zap.String("to", cfg.NightWindow.To),
			zap.Error(err),
		)
	}
	if night {
		m.logger.Debug("Pre-alert suppressed by night window", zap.String("room", room))
		return false, nil
	}

	// The limiter only throttles; when its state cannot be read the start is sent.
	allowed, err := m.limiter.Allow(ctx, room, now)
	if err != nil {
		m.logger.Warn("Failed to check pre-alert anti-spam, sending anyway",
			zap.String("room", room),
			zap.Error(err),
		)
		allowed = true
	}
	if !allowed {
		return false, nil
	}

	ttl := PrealertTTL(cfg, elapsed)
	if err := m.publisher.Start(ctx, room, ttl); err != nil {
		return false, fmt.Errorf("failed to publish pre-alert start: %w", err)
	}

	if err := m.limiter.Record(ctx, room, now); err != nil {
		m.logger.Warn("Failed to record pre-alert send",
			zap.String("room", room),
			zap.Error(err),
		)
	}

	m.logger.Info("Pre-alert started",
		zap.String("room", room),
		zap.Int("ttl_sec", ttl),
		zap.Float64("elapsed_sec", elapsed),
	)
	return true, nil
}
