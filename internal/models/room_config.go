package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultRoomKey is the reserved document key holding the global defaults.
const DefaultRoomKey = "default"

// Built-in defaults used when the document has no "default" entry.
const (
	DefaultInactivitySec     = 30 * 60
	DefaultPrealertOffsetSec = 5 * 60
	DefaultNightFrom         = "23:00"
	DefaultNightTo           = "07:00"
)

// NightWindow is a time-of-day range in HH:MM form.
type NightWindow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RoomConfig is the fully resolved configuration of one room.
type RoomConfig struct {
	InactivitySec     int         `json:"inactivity_sec"`
	PrealertOffsetSec int         `json:"prealert_offset_sec"`
	Enabled           bool        `json:"enabled"`
	NightBlock        bool        `json:"night_block"`
	NightWindow       NightWindow `json:"night_window"`
}

// BuiltinRoomConfig returns the fixed defaults.
func BuiltinRoomConfig() RoomConfig {
	return RoomConfig{
		InactivitySec:     DefaultInactivitySec,
		PrealertOffsetSec: DefaultPrealertOffsetSec,
		Enabled:           true,
		NightBlock:        false,
		NightWindow:       NightWindow{From: DefaultNightFrom, To: DefaultNightTo},
	}
}

// StartWindow is the elapsed second at which the pre-alert window opens.
func (c RoomConfig) StartWindow() int {
	return c.InactivitySec - c.PrealertOffsetSec
}

// PrealertWindowValid reports whether 0 <= prealert_offset_sec < inactivity_sec.
// An invalid window never arms.
func (c RoomConfig) PrealertWindowValid() bool {
	return c.PrealertOffsetSec >= 0 && c.PrealertOffsetSec < c.InactivitySec
}

// PartialNightWindow is a night window overlay; nil fields are inherited.
type PartialNightWindow struct {
	From *string `json:"from,omitempty"`
	To   *string `json:"to,omitempty"`
}

// PartialRoomConfig is one entry of the room config document.
type PartialRoomConfig struct {
	InactivitySec     *FlexInt            `json:"inactivity_sec,omitempty"`
	PrealertOffsetSec *FlexInt            `json:"prealert_offset_sec,omitempty"`
	Enabled           *bool               `json:"enabled,omitempty"`
	NightBlock        *bool               `json:"night_block,omitempty"`
	NightWindow       *PartialNightWindow `json:"night_window,omitempty"`
}

// Overlay applies the present fields of p onto base.
func (p PartialRoomConfig) Overlay(base RoomConfig) RoomConfig {
	if p.InactivitySec != nil {
		base.InactivitySec = int(*p.InactivitySec)
	}
	if p.PrealertOffsetSec != nil {
		base.PrealertOffsetSec = int(*p.PrealertOffsetSec)
	}
	if p.Enabled != nil {
		base.Enabled = *p.Enabled
	}
	if p.NightBlock != nil {
		base.NightBlock = *p.NightBlock
	}
	if p.NightWindow != nil {
		if p.NightWindow.From != nil {
			base.NightWindow.From = *p.NightWindow.From
		}
		if p.NightWindow.To != nil {
			base.NightWindow.To = *p.NightWindow.To
		}
	}
	return base
}

// RoomConfigDocument maps room names (plus "default") to partial configs.
type RoomConfigDocument map[string]PartialRoomConfig

// DefaultRoomConfigDocument is what gets written when no document exists.
func DefaultRoomConfigDocument() RoomConfigDocument {
	builtin := BuiltinRoomConfig()
	inactivity := FlexInt(builtin.InactivitySec)
	offset := FlexInt(builtin.PrealertOffsetSec)
	from, to := builtin.NightWindow.From, builtin.NightWindow.To
	return RoomConfigDocument{
		DefaultRoomKey: {
			InactivitySec:     &inactivity,
			PrealertOffsetSec: &offset,
			Enabled:           &builtin.Enabled,
			NightBlock:        &builtin.NightBlock,
			NightWindow:       &PartialNightWindow{From: &from, To: &to},
		},
	}
}

// FlexInt accepts JSON numbers (fractions truncated) and numeric strings.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		raw = strings.TrimSpace(s)
	}

	if n, err := strconv.Atoi(raw); err == nil {
		*f = FlexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid integer value %s", string(data))
	}
	*f = FlexInt(int(v))
	return nil
}
