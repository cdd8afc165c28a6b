package models

// Escalation command actions and reasons.
const (
	EscalationStart = "start"
	EscalationStop  = "stop"

	ReasonInactivity = "INACTIVITY"
	ReasonManual     = "MANUAL"
)

// EscalationCommand is the payload published to a room's pre-alert topic.
type EscalationCommand struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
	TTLSec *int   `json:"ttl_sec,omitempty"`
}

// NewStartCommand builds a "start" command with a time-to-live.
func NewStartCommand(reason string, ttlSec int) EscalationCommand {
	return EscalationCommand{Action: EscalationStart, Reason: reason, TTLSec: &ttlSec}
}

// NewStopCommand builds a "stop" command.
func NewStopCommand(reason string) EscalationCommand {
	return EscalationCommand{Action: EscalationStop, Reason: reason}
}
