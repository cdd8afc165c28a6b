package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupSQLiteDB opens a migrated in-memory database.
func setupSQLiteDB(t *testing.T) (*sql.DB, Dialect) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	dialect := &SQLiteDialect{}
	require.NoError(t, Migrate(context.Background(), db, dialect))
	return db, dialect
}

func addRoom(t *testing.T, db *sql.DB, name string, devices ...string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO rooms (name) VALUES (?)`, name)
	require.NoError(t, err)
	for _, d := range devices {
		_, err := db.Exec(`INSERT INTO devices (device_id, room) VALUES (?, ?)`, d, name)
		require.NoError(t, err)
	}
}

func addMotion(t *testing.T, db *sql.DB, deviceID, ts string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO motion_events (ts_utc, device_id, value) VALUES (?, ?, 1)`, ts, deviceID)
	require.NoError(t, err)
}

func addHeartbeat(t *testing.T, db *sql.DB, deviceID, ts string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO heartbeats (ts_utc, device_id, ip, uptime_ms) VALUES (?, ?, '10.0.0.2', 1000)`, ts, deviceID)
	require.NoError(t, err)
}

func nopLogger() *zap.Logger { return zap.NewNop() }
