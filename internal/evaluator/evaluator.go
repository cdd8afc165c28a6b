// Package evaluator runs the alert rules and the pre-alert state machine.
//
// One Engine is built at startup and owns every piece of evaluation state
// (clock, anti-spam limiter, bus publisher, stores). Tick performs one full
// pass: settings, rooms, per-room rules, then the heartbeat rule.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eldercare-rules/internal/models"

	"go.uber.org/zap"
)

// TelemetryReader is the read side of the ingestion store.
type TelemetryReader interface {
	LastMotion(ctx context.Context, room string) (time.Time, bool, error)
	CountMotionSince(ctx context.Context, room string, since time.Time) (int, error)
	HeartbeatDevices(ctx context.Context) ([]string, error)
	LastHeartbeat(ctx context.Context, deviceID string) (time.Time, bool, error)
}

// AlertStore opens and closes rule-driven alerts.
type AlertStore interface {
	HasOpen(ctx context.Context, rule, scope string) (bool, error)
	Open(ctx context.Context, alert *models.Alert) (int64, error)
	Close(ctx context.Context, rule, scope string, at time.Time) (bool, error)
}

// RoomLister lists the rooms to evaluate.
type RoomLister interface {
	ListRooms(ctx context.Context) ([]string, error)
}

// SettingsReader returns the flat rule_settings mapping.
type SettingsReader interface {
	GetRuleSettings(ctx context.Context) (map[string]string, error)
}

// RoomConfigSource returns the current room config document.
type RoomConfigSource interface {
	Document() (models.RoomConfigDocument, error)
}

// EscalationPublisher sends pre-alert commands to a room.
type EscalationPublisher interface {
	Start(ctx context.Context, room string, ttlSec int) error
	Stop(ctx context.Context, room, reason string) error
}

// AlertListener is notified after alerts open or close. Listener errors are
// logged and never affect evaluation.
type AlertListener interface {
	AlertOpened(ctx context.Context, alert *models.Alert) error
	AlertClosed(ctx context.Context, rule, scope string, at time.Time) error
}

// Dependencies are the collaborators of an Engine.
type Dependencies struct {
	Telemetry   TelemetryReader
	Alerts      AlertStore
	Rooms       RoomLister
	Settings    SettingsReader
	RoomConfigs RoomConfigSource
	Publisher   EscalationPublisher
	Limiter     PrealertLimiter
	Listeners   []AlertListener
	Clock       Clock
}

// Options tune the rules.
type Options struct {
	HeartbeatTimeout    time.Duration
	DefaultDwellMinutes float64
	// TickTimeout bounds each phase of a tick: the rooms, then the heartbeats.
	TickTimeout time.Duration
	// Location is the zone night windows are read in.
	Location *time.Location
}

// Engine is the evaluation context threaded through every rule.
type Engine struct {
	telemetry   TelemetryReader
	alerts      AlertStore
	rooms       RoomLister
	settings    SettingsReader
	roomConfigs RoomConfigSource
	publisher   EscalationPublisher
	listeners   []AlertListener
	clock       Clock
	prealert    *PrealertMachine
	opts        Options
	logger      *zap.Logger

	// settings problems already reported, keyed by message
	reported map[string]struct{}
}

// NewEngine creates an engine. A nil Clock uses the system clock and a nil
// Limiter keeps anti-spam state in memory.
func NewEngine(deps Dependencies, opts Options, antiSpam time.Duration, logger *zap.Logger) *Engine {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Limiter == nil {
		deps.Limiter = NewMemoryLimiter(antiSpam)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	return &Engine{
		telemetry:   deps.Telemetry,
		alerts:      deps.Alerts,
		rooms:       deps.Rooms,
		settings:    deps.Settings,
		roomConfigs: deps.RoomConfigs,
		publisher:   deps.Publisher,
		listeners:   deps.Listeners,
		clock:       deps.Clock,
		prealert:    NewPrealertMachine(deps.Limiter, deps.Publisher, opts.Location, logger),
		opts:        opts,
		logger:      logger,
		reported:    make(map[string]struct{}),
	}
}

// tickState is what one tick reads once and shares across rooms.
type tickState struct {
	now        time.Time
	settings   models.RuleSettings
	settingsOK bool
	doc        models.RoomConfigDocument
	docOK      bool
}

// Tick runs one evaluation pass. Failures of a single room or rule are
// logged and skipped; the returned error only reports tick-wide reads that
// failed. The room phase and the heartbeat phase each get TickTimeout, so
// slow rooms cannot starve the heartbeat rule.
func (e *Engine) Tick(ctx context.Context) error {
	ts := &tickState{now: e.clock.Now()}
	var errs []error

	roomCtx, cancel := e.phaseContext(ctx)
	defer cancel()

	raw, err := e.settings.GetRuleSettings(roomCtx)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to read rule settings: %w", err))
	} else {
		ts.settings, ts.settingsOK = e.parseSettings(raw), true
	}

	ts.doc, err = e.roomConfigs.Document()
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to load room config: %w", err))
	} else {
		ts.docOK = true
	}

	rooms, err := e.rooms.ListRooms(roomCtx)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list rooms: %w", err))
	}

	evaluated := 0
	for _, room := range rooms {
		if roomCtx.Err() != nil {
			break
		}
		e.evaluateRoom(roomCtx, ts, room)
		evaluated++
	}
	if err := roomCtx.Err(); err != nil && ctx.Err() == nil {
		errs = append(errs, fmt.Errorf("room evaluation interrupted after %d of %d rooms: %w", evaluated, len(rooms), err))
	}

	if ctx.Err() == nil {
		heartbeatCtx, cancelHeartbeat := e.phaseContext(ctx)
		e.evaluateHeartbeats(heartbeatCtx, ts)
		if err := heartbeatCtx.Err(); err != nil && ctx.Err() == nil {
			errs = append(errs, fmt.Errorf("heartbeat evaluation interrupted: %w", err))
		}
		cancelHeartbeat()
	}

	if err := ctx.Err(); err != nil {
		errs = append(errs, fmt.Errorf("tick interrupted: %w", err))
	}

	e.logger.Debug("Tick completed",
		zap.Int("room_count", len(rooms)),
		zap.Int("rooms_evaluated", evaluated),
		zap.Time("now", ts.now),
	)

	return errors.Join(errs...)
}

// phaseContext bounds one phase of a tick by TickTimeout.
func (e *Engine) phaseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.TickTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.opts.TickTimeout)
}

// evaluateRoom runs inactivity, dwell, then pre-alert for one room.
func (e *Engine) evaluateRoom(ctx context.Context, ts *tickState, room string) {
	var (
		cfg     models.RoomConfig
		elapsed float64
		hasData bool
	)

	if ts.docOK {
		var err error
		cfg, elapsed, hasData, err = e.evaluateInactivity(ctx, ts, room)
		if err != nil {
			e.logger.Error("Failed to evaluate inactivity",
				zap.String("room", room),
				zap.Error(err),
			)
			hasData = false
		}
	}

	if ts.settingsOK {
		if err := e.evaluateDwell(ctx, ts, room); err != nil {
			e.logger.Error("Failed to evaluate dwell",
				zap.String("room", room),
				zap.Error(err),
			)
		}
	}

	if hasData {
		if _, err := e.prealert.Evaluate(ctx, room, cfg, elapsed, ts.now); err != nil {
			e.logger.Warn("Failed to evaluate pre-alert",
				zap.String("room", room),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) parseSettings(raw map[string]string) models.RuleSettings {
	settings, problems := models.ParseRuleSettings(raw, e.opts.DefaultDwellMinutes)
	for _, p := range problems {
		e.reportOnce(p.Error(), "Invalid rule setting, using default", zap.Error(p))
	}
	if settings.HasLegacyThresholds() {
		e.reportOnce("legacy", "Ignoring deprecated inactive.threshold_* settings; per-room config applies")
	}
	return settings
}

func (e *Engine) reportOnce(key, msg string, fields ...zap.Field) {
	if _, done := e.reported[key]; done {
		return
	}
	e.reported[key] = struct{}{}
	e.logger.Warn(msg, fields...)
}
