package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// timestampPageSize is how many timestamps latest reads per query. Only
// malformed rows push it past the first page.
var timestampPageSize = 50

// TelemetryRepository reads motion and heartbeat data written by the
// ingestion side. It never writes.
type TelemetryRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewTelemetryRepository creates a telemetry repository.
func NewTelemetryRepository(db *sql.DB, dialect Dialect, logger *zap.Logger) *TelemetryRepository {
	return &TelemetryRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// LastMotion returns the most recent motion timestamp of any device in room.
// ok is false when the room has no readable motion record.
func (r *TelemetryRepository) LastMotion(ctx context.Context, room string) (time.Time, bool, error) {
	query := r.dialect.Rebind(fmt.Sprintf(`
		SELECT m.ts_utc
		FROM motion_events m
		JOIN devices d ON m.device_id = d.device_id
		WHERE d.room = ?
		ORDER BY %s DESC
		LIMIT ? OFFSET ?
	`, r.dialect.SortableTime("m.ts_utc")))

	return r.latest(ctx, query, room, zap.String("room", room))
}

// CountMotionSince counts motion events of room's devices at or after since.
func (r *TelemetryRepository) CountMotionSince(ctx context.Context, room string, since time.Time) (int, error) {
	query := r.dialect.Rebind(fmt.Sprintf(`
		SELECT COUNT(*)
		FROM motion_events m
		JOIN devices d ON m.device_id = d.device_id
		WHERE d.room = ? AND %s
	`, r.dialect.TimeAtLeast("m.ts_utc")))

	var n int
	if err := r.db.QueryRowContext(ctx, query, room, r.dialect.TimeArg(since)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count motion events: %w", err)
	}
	return n, nil
}

// HeartbeatDevices lists every device with at least one heartbeat.
func (r *TelemetryRepository) HeartbeatDevices(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT device_id FROM heartbeats ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query heartbeat devices: %w", err)
	}
	defer rows.Close()

	var devices []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan device id: %w", err)
		}
		devices = append(devices, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate heartbeat devices: %w", err)
	}
	return devices, nil
}

// LastHeartbeat returns the most recent heartbeat timestamp of device.
func (r *TelemetryRepository) LastHeartbeat(ctx context.Context, deviceID string) (time.Time, bool, error) {
	query := r.dialect.Rebind(fmt.Sprintf(`
		SELECT ts_utc
		FROM heartbeats
		WHERE device_id = ?
		ORDER BY %s DESC
		LIMIT ? OFFSET ?
	`, r.dialect.SortableTime("ts_utc")))

	return r.latest(ctx, query, deviceID, zap.String("device_id", deviceID))
}

// latest walks timestamps newest first, one page at a time, and returns the
// first parseable one. Malformed rows are logged and skipped.
func (r *TelemetryRepository) latest(ctx context.Context, query string, arg string, field zap.Field) (time.Time, bool, error) {
	for offset := 0; ; offset += timestampPageSize {
		ts, found, n, err := r.latestInPage(ctx, query, arg, offset, field)
		if err != nil || found {
			return ts, found, err
		}
		if n < timestampPageSize {
			return time.Time{}, false, nil
		}
	}
}

// latestInPage scans one page and reports how many rows it held.
func (r *TelemetryRepository) latestInPage(ctx context.Context, query, arg string, offset int, field zap.Field) (time.Time, bool, int, error) {
	rows, err := r.db.QueryContext(ctx, query, arg, timestampPageSize, offset)
	if err != nil {
		return time.Time{}, false, 0, fmt.Errorf("failed to query timestamps: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return time.Time{}, false, n, fmt.Errorf("failed to scan timestamp: %w", err)
		}
		if !raw.Valid {
			continue
		}
		ts, err := ParseTimestamp(raw.String)
		if err != nil {
			r.logger.Warn("Skipping malformed telemetry timestamp",
				field,
				zap.String("ts_utc", raw.String),
			)
			continue
		}
		return ts, true, n, nil
	}
	if err := rows.Err(); err != nil {
		return time.Time{}, false, n, fmt.Errorf("failed to iterate timestamps: %w", err)
	}
	return time.Time{}, false, n, nil
}
