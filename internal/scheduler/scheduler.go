package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// Runner performs one evaluation pass.
type Runner interface {
	Tick(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

// Tick implements Runner.
func (f RunnerFunc) Tick(ctx context.Context) error { return f(ctx) }

// Scheduler drives a Runner at a fixed interval.
type Scheduler struct {
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		logger:   logger,
	}
}

// Start runs one pass immediately and then one per interval until ctx is
// done. A failing or panicking pass is logged and the loop carries on.
func (s *Scheduler) Start(ctx context.Context, runner Runner) error {
	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx, runner)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			s.runOnce(ctx, runner)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, runner Runner) {
	start := time.Now()
	if err := s.safeTick(ctx, runner); err != nil {
		s.logger.Error("Tick failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("Tick finished", zap.Duration("duration", time.Since(start)))
}

func (s *Scheduler) safeTick(ctx context.Context, runner Runner) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Tick panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return runner.Tick(ctx)
}
