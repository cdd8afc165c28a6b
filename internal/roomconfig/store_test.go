package roomconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"eldercare-rules/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileStore_MissingDocumentIsInitialised(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "prealert_config.json")
	store := NewFileStore(path, zap.NewNop())

	doc, err := store.Document()
	require.NoError(t, err)
	assert.Contains(t, doc, models.DefaultRoomKey)

	_, err = os.Stat(path)
	require.NoError(t, err)

	cfg, err := store.Resolve("kitchen")
	require.NoError(t, err)
	assert.Equal(t, models.BuiltinRoomConfig(), cfg)
}

func TestFileStore_CorruptWithoutCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prealert_config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewFileStore(path, zap.NewNop())
	_, err := store.Document()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestFileStore_ReloadKeepsLastKnownGood(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prealert_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"kitchen": {"inactivity_sec": 900}}`), 0o644))

	store := NewFileStore(path, zap.NewNop())
	cfg, err := store.Resolve("kitchen")
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.InactivitySec)

	// valid edit is picked up
	require.NoError(t, os.WriteFile(path, []byte(`{"kitchen": {"inactivity_sec": 1200}}`), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	cfg, err = store.Resolve("kitchen")
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.InactivitySec)

	// corrupt edit falls back to the cached copy
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o644))
	later := future.Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	cfg, err = store.Resolve("kitchen")
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.InactivitySec)
}

func TestFileStore_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prealert_config.json")
	store := NewFileStore(path, zap.NewNop())

	inactivity := models.FlexInt(600)
	require.NoError(t, store.Save(models.RoomConfigDocument{
		"bathroom": {InactivitySec: &inactivity},
	}))

	reopened := NewFileStore(path, zap.NewNop())
	cfg, err := reopened.Resolve("bathroom")
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.InactivitySec)
}
