package roomconfig

import (
	"encoding/json"
	"testing"

	"eldercare-rules/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, s string) models.RoomConfigDocument {
	t.Helper()
	var doc models.RoomConfigDocument
	require.NoError(t, json.Unmarshal([]byte(s), &doc))
	return doc
}

func TestResolve_BuiltinWhenNoDefault(t *testing.T) {
	cfg := Resolve(models.RoomConfigDocument{}, "kitchen")
	assert.Equal(t, models.BuiltinRoomConfig(), cfg)
}

func TestResolve_DefaultThenRoomOverlay(t *testing.T) {
	doc := parseDoc(t, `{
		"default": {"inactivity_sec": 2400, "prealert_offset_sec": 600, "night_block": true},
		"kitchen": {"inactivity_sec": 1800, "enabled": false},
		"bedroom": {"night_window": {"from": "22:00"}}
	}`)

	kitchen := Resolve(doc, "kitchen")
	assert.Equal(t, 1800, kitchen.InactivitySec)
	assert.Equal(t, 600, kitchen.PrealertOffsetSec)
	assert.False(t, kitchen.Enabled)
	assert.True(t, kitchen.NightBlock)

	bedroom := Resolve(doc, "bedroom")
	assert.Equal(t, 2400, bedroom.InactivitySec)
	assert.True(t, bedroom.Enabled)
	assert.Equal(t, models.NightWindow{From: "22:00", To: "07:00"}, bedroom.NightWindow)

	hall := Resolve(doc, "hall")
	assert.Equal(t, 2400, hall.InactivitySec)
}

func TestResolve_OutOfRangeAccepted(t *testing.T) {
	doc := parseDoc(t, `{"kitchen": {"inactivity_sec": -5, "prealert_offset_sec": 9000}}`)

	cfg := Resolve(doc, "kitchen")
	assert.Equal(t, -5, cfg.InactivitySec)
	assert.Equal(t, 9000, cfg.PrealertOffsetSec)
	assert.False(t, cfg.PrealertWindowValid())
}
