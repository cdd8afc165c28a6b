package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Flat rule_settings keys.
const (
	SettingCriticalRooms          = "dwell.critical_rooms"
	SettingInactiveThresholdDay   = "inactive.threshold_day_min"
	SettingInactiveThresholdNight = "inactive.threshold_night_min"
	settingDwellPrefix            = "dwell."
	settingDwellSuffix            = "_min"
)

// RuleSettings is the typed view of the rule_settings key/value table.
type RuleSettings struct {
	CriticalRooms       []string
	DwellMinutes        map[string]float64 // keyed by lower-cased room name
	DefaultDwellMinutes float64

	// Superseded by the per-room config document; kept only to report them.
	LegacyThresholdDayMin   *float64
	LegacyThresholdNightMin *float64
}

// ParseRuleSettings validates the raw settings once. Problems are returned
// alongside a usable result in which bad values fall back to defaults.
func ParseRuleSettings(raw map[string]string, defaultDwellMinutes float64) (RuleSettings, []error) {
	settings := RuleSettings{
		DwellMinutes:        make(map[string]float64),
		DefaultDwellMinutes: defaultDwellMinutes,
	}
	var problems []error

	for _, room := range strings.Split(raw[SettingCriticalRooms], ",") {
		if room = strings.TrimSpace(room); room != "" {
			settings.CriticalRooms = append(settings.CriticalRooms, room)
		}
	}

	for key, value := range raw {
		switch {
		case key == SettingInactiveThresholdDay:
			if v, err := parsePositive(key, value); err != nil {
				problems = append(problems, err)
			} else {
				settings.LegacyThresholdDayMin = &v
			}
		case key == SettingInactiveThresholdNight:
			if v, err := parsePositive(key, value); err != nil {
				problems = append(problems, err)
			} else {
				settings.LegacyThresholdNightMin = &v
			}
		case key != SettingCriticalRooms &&
			strings.HasPrefix(key, settingDwellPrefix) && strings.HasSuffix(key, settingDwellSuffix):
			room := strings.TrimSuffix(strings.TrimPrefix(key, settingDwellPrefix), settingDwellSuffix)
			if room == "" {
				continue
			}
			v, err := parsePositive(key, value)
			if err != nil {
				problems = append(problems, err)
				continue
			}
			settings.DwellMinutes[strings.ToLower(room)] = v
		}
	}

	return settings, problems
}

// IsCritical reports whether the dwell rule applies to room.
func (s RuleSettings) IsCritical(room string) bool {
	for _, r := range s.CriticalRooms {
		if r == room {
			return true
		}
	}
	return false
}

// MinDwell returns the dwell setting of room in minutes.
func (s RuleSettings) MinDwell(room string) float64 {
	if v, ok := s.DwellMinutes[strings.ToLower(room)]; ok {
		return v
	}
	return s.DefaultDwellMinutes
}

// HasLegacyThresholds reports whether deprecated flat thresholds are present.
func (s RuleSettings) HasLegacyThresholds() bool {
	return s.LegacyThresholdDayMin != nil || s.LegacyThresholdNightMin != nil
}

func parsePositive(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("setting %s: invalid number %q", key, value)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("setting %s: must be finite, got %q", key, value)
	}
	if v <= 0 {
		return 0, fmt.Errorf("setting %s: must be positive, got %v", key, v)
	}
	return v, nil
}
