package evaluator

import (
	"context"
	"sort"
	"sync"
	"time"

	"eldercare-rules/internal/models"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTelemetry struct {
	motion     map[string][]time.Time
	heartbeats map[string][]time.Time
	err        error
}

func newFakeTelemetry() *fakeTelemetry {
	return &fakeTelemetry{
		motion:     make(map[string][]time.Time),
		heartbeats: make(map[string][]time.Time),
	}
}

func (f *fakeTelemetry) addMotion(room string, ts time.Time) {
	f.motion[room] = append(f.motion[room], ts)
}

func (f *fakeTelemetry) addHeartbeat(device string, ts time.Time) {
	f.heartbeats[device] = append(f.heartbeats[device], ts)
}

func latestOf(ts []time.Time) (time.Time, bool) {
	if len(ts) == 0 {
		return time.Time{}, false
	}
	latest := ts[0]
	for _, t := range ts[1:] {
		if t.After(latest) {
			latest = t
		}
	}
	return latest, true
}

func (f *fakeTelemetry) LastMotion(_ context.Context, room string) (time.Time, bool, error) {
	if f.err != nil {
		return time.Time{}, false, f.err
	}
	t, ok := latestOf(f.motion[room])
	return t, ok, nil
}

func (f *fakeTelemetry) CountMotionSince(_ context.Context, room string, since time.Time) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for _, t := range f.motion[room] {
		if !t.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeTelemetry) HeartbeatDevices(_ context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var devices []string
	for d := range f.heartbeats {
		devices = append(devices, d)
	}
	sort.Strings(devices)
	return devices, nil
}

func (f *fakeTelemetry) LastHeartbeat(_ context.Context, device string) (time.Time, bool, error) {
	if f.err != nil {
		return time.Time{}, false, f.err
	}
	t, ok := latestOf(f.heartbeats[device])
	return t, ok, nil
}

// fakeAlertStore does not enforce uniqueness, so tests observe the
// evaluator's own check-before-insert.
type fakeAlertStore struct {
	rows    []*models.Alert
	nextID  int64
	openErr error
}

func (s *fakeAlertStore) HasOpen(_ context.Context, rule, scope string) (bool, error) {
	return s.openCount(rule, scope) > 0, nil
}

func (s *fakeAlertStore) Open(_ context.Context, alert *models.Alert) (int64, error) {
	if s.openErr != nil {
		return 0, s.openErr
	}
	s.nextID++
	row := *alert
	row.ID = s.nextID
	row.Status = models.AlertStatusOpen
	s.rows = append(s.rows, &row)
	alert.ID = row.ID
	return row.ID, nil
}

func (s *fakeAlertStore) Close(_ context.Context, rule, scope string, at time.Time) (bool, error) {
	for i := len(s.rows) - 1; i >= 0; i-- {
		r := s.rows[i]
		if r.Rule == rule && r.Scope == scope && r.Status == models.AlertStatusOpen {
			r.Status = models.AlertStatusClosed
			closedAt := at
			r.ClosedAt = &closedAt
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeAlertStore) openCount(rule, scope string) int {
	n := 0
	for _, r := range s.rows {
		if r.Rule == rule && r.Scope == scope && r.Status == models.AlertStatusOpen {
			n++
		}
	}
	return n
}

func (s *fakeAlertStore) rowsFor(rule, scope string) []*models.Alert {
	var out []*models.Alert
	for _, r := range s.rows {
		if r.Rule == rule && r.Scope == scope {
			out = append(out, r)
		}
	}
	return out
}

type fakeRooms struct {
	rooms []string
	err   error
}

func (f *fakeRooms) ListRooms(context.Context) ([]string, error) { return f.rooms, f.err }

type fakeSettings struct {
	values map[string]string
	err    error
}

func (f *fakeSettings) GetRuleSettings(context.Context) (map[string]string, error) {
	return f.values, f.err
}

type fakeConfigSource struct {
	doc models.RoomConfigDocument
	err error
}

func (f *fakeConfigSource) Document() (models.RoomConfigDocument, error) { return f.doc, f.err }

type command struct {
	room   string
	action string
	reason string
	ttl    int
}

type fakePublisher struct {
	commands []command
	err      error
}

func (p *fakePublisher) Start(_ context.Context, room string, ttlSec int) error {
	if p.err != nil {
		return p.err
	}
	p.commands = append(p.commands, command{room: room, action: models.EscalationStart, reason: models.ReasonInactivity, ttl: ttlSec})
	return nil
}

func (p *fakePublisher) Stop(_ context.Context, room, reason string) error {
	if p.err != nil {
		return p.err
	}
	p.commands = append(p.commands, command{room: room, action: models.EscalationStop, reason: reason})
	return nil
}

func (p *fakePublisher) actions(action string) []command {
	var out []command
	for _, c := range p.commands {
		if c.action == action {
			out = append(out, c)
		}
	}
	return out
}

type listenerEvent struct {
	action string
	rule   string
	scope  string
}

type fakeListener struct {
	events []listenerEvent
}

func (l *fakeListener) AlertOpened(_ context.Context, a *models.Alert) error {
	l.events = append(l.events, listenerEvent{"opened", a.Rule, a.Scope})
	return nil
}

func (l *fakeListener) AlertClosed(_ context.Context, rule, scope string, _ time.Time) error {
	l.events = append(l.events, listenerEvent{"closed", rule, scope})
	return nil
}

func intPtr(n int) *models.FlexInt {
	v := models.FlexInt(n)
	return &v
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }
