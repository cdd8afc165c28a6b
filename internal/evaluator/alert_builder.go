package evaluator

import (
	"time"

	"eldercare-rules/internal/models"
)

// NewAlert builds an open alert for (rule, scope). Room-scoped rules fill
// Room and device-scoped rules fill DeviceID.
func NewAlert(rule, scope, severity, details string, now time.Time) *models.Alert {
	now = now.UTC()
	s := scope

	alert := &models.Alert{
		TsUTC:     now,
		Rule:      rule,
		Scope:     scope,
		Severity:  severity,
		Details:   details,
		Status:    models.AlertStatusOpen,
		CreatedAt: now,
	}

	switch models.ScopeKindFor(rule) {
	case models.ScopeDevice:
		alert.DeviceID = &s
	default:
		alert.Room = &s
	}

	return alert
}
