package models

import (
	"time"
)

// Rule names. The rule name doubles as the alert type column.
const (
	RuleInactivity    = "INACTIVITY"
	RuleDwellCritical = "DWELL_CRITICAL"
	RuleNoHeartbeat   = "NO_HEARTBEAT"
)

// Severity levels used by the rules.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// AlertStatus values.
const (
	AlertStatusOpen   = "open"
	AlertStatusClosed = "closed"
)

// ScopeKind tells whether an alert scope is a room name or a device identifier.
type ScopeKind int

const (
	ScopeRoom ScopeKind = iota
	ScopeDevice
)

func (k ScopeKind) String() string {
	if k == ScopeDevice {
		return "device"
	}
	return "room"
}

// ScopeKindFor returns the scope kind used by a rule.
func ScopeKindFor(rule string) ScopeKind {
	if rule == RuleNoHeartbeat {
		return ScopeDevice
	}
	return ScopeRoom
}

// Alert is one row of the alerts table. Identity for the open-uniqueness
// invariant is (Rule, Scope).
type Alert struct {
	ID         int64      `json:"id" db:"id"`
	TsUTC      time.Time  `json:"ts_utc" db:"ts_utc"`
	Rule       string     `json:"rule" db:"rule"`
	Scope      string     `json:"scope" db:"scope"`
	Room       *string    `json:"room,omitempty" db:"room"`
	DeviceID   *string    `json:"device_id,omitempty" db:"device_id"`
	Severity   string     `json:"severity" db:"severity"`
	Details    string     `json:"details" db:"details"`
	Status     string     `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	AckAt      *time.Time `json:"ack_at,omitempty" db:"ack_at"`
	AckBy      *string    `json:"ack_by,omitempty" db:"ack_by"`
	NotifiedAt *time.Time `json:"notified_at,omitempty" db:"notified_at"`
}

// ScopeKind derives the scope kind from the rule.
func (a *Alert) ScopeKind() ScopeKind {
	return ScopeKindFor(a.Rule)
}

// IsOpen reports whether the alert has not been closed.
func (a *Alert) IsOpen() bool {
	return a.Status == AlertStatusOpen
}

// IsAcknowledged reports whether someone acknowledged the alert.
func (a *Alert) IsAcknowledged() bool {
	return a.AckAt != nil
}
