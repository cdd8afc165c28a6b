// Package roomconfig resolves per-room inactivity and pre-alert settings
// from the shared room config document.
package roomconfig

import (
	"eldercare-rules/internal/models"
)

// Resolve merges built-in defaults, the document's "default" entry and the
// room's own entry, field by field. Values are not range checked.
func Resolve(doc models.RoomConfigDocument, room string) models.RoomConfig {
	cfg := models.BuiltinRoomConfig()
	if base, ok := doc[models.DefaultRoomKey]; ok {
		cfg = base.Overlay(cfg)
	}
	if room == models.DefaultRoomKey {
		return cfg
	}
	if own, ok := doc[room]; ok {
		cfg = own.Overlay(cfg)
	}
	return cfg
}
