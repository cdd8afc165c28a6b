package roomconfig

import (
	"fmt"
	"time"

	"eldercare-rules/internal/models"
)

const clockLayout = "15:04"

// ParseClock parses an HH:MM string into seconds since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour()*3600 + t.Minute()*60, nil
}

// InNightWindow reports whether now falls inside the room's night window.
// It is always false unless night_block is set. A window whose from is not
// before to wraps midnight.
func InNightWindow(cfg models.RoomConfig, now time.Time) (bool, error) {
	if !cfg.NightBlock {
		return false, nil
	}
	return InWindow(cfg.NightWindow, now)
}

// InWindow tests the time of day of now against a window.
func InWindow(w models.NightWindow, now time.Time) (bool, error) {
	from, err := ParseClock(w.From)
	if err != nil {
		return false, err
	}
	to, err := ParseClock(w.To)
	if err != nil {
		return false, err
	}

	tod := now.Hour()*3600 + now.Minute()*60 + now.Second()
	if from < to {
		return from <= tod && tod < to, nil
	}
	return tod >= from || tod < to, nil
}
