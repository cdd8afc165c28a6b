package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"eldercare-rules/internal/models"
)

// schemaStatements returns the DDL for dialect. Every statement is
// idempotent, so Migrate can run on each start against a store that the
// ingestion side may already have created.
func schemaStatements(d Dialect) []string {
	ts := d.TimestampType()
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rooms (
			id %s,
			name TEXT NOT NULL UNIQUE
		)`, d.AutoIncrement()),
		`CREATE TABLE IF NOT EXISTS devices (
			device_id TEXT PRIMARY KEY,
			room TEXT
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS motion_events (
			id %s,
			ts_utc %s NOT NULL,
			device_id TEXT NOT NULL,
			value INTEGER NOT NULL DEFAULT 1
		)`, d.AutoIncrement(), ts),
		`CREATE INDEX IF NOT EXISTS idx_motion_events_device_ts ON motion_events(device_id, ts_utc)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS heartbeats (
			id %s,
			ts_utc %s NOT NULL,
			device_id TEXT NOT NULL,
			ip TEXT,
			uptime_ms BIGINT
		)`, d.AutoIncrement(), ts),
		`CREATE INDEX IF NOT EXISTS idx_heartbeats_device_ts ON heartbeats(device_id, ts_utc)`,
		`CREATE TABLE IF NOT EXISTS rule_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS alerts (
			id %[1]s,
			ts_utc %[2]s NOT NULL,
			rule TEXT NOT NULL,
			scope TEXT NOT NULL,
			room TEXT,
			device_id TEXT,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			details TEXT,
			status TEXT NOT NULL DEFAULT 'open',
			created_at %[2]s NOT NULL,
			closed_at %[2]s,
			ack_at %[2]s,
			ack_by TEXT,
			notified_at %[2]s
		)`, d.AutoIncrement(), ts),
	}
}

// alertIndexStatements run after the alerts table has a scope column.
var alertIndexStatements = []string{
	// At most one open alert per (rule, scope).
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_alerts_open_rule_scope ON alerts(rule, scope) WHERE status = 'open'`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status)`,
}

// Migrate creates the tables and indexes the engine relies on. An alerts
// table created without a scope column is upgraded in place.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range schemaStatements(d) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	if err := ensureAlertScope(ctx, db, d); err != nil {
		return err
	}

	for _, stmt := range alertIndexStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// ensureAlertScope adds and backfills alerts.scope when it is missing, then
// closes all but the newest open alert of each (rule, scope) so the unique
// index can be built.
func ensureAlertScope(ctx context.Context, db *sql.DB, d Dialect) error {
	var n int
	if err := db.QueryRowContext(ctx, d.ColumnCountQuery(), "alerts", "scope").Scan(&n); err != nil {
		return fmt.Errorf("failed to inspect alerts table: %w", err)
	}

	if n == 0 {
		if _, err := db.ExecContext(ctx, `ALTER TABLE alerts ADD COLUMN scope TEXT`); err != nil {
			return fmt.Errorf("failed to add alerts.scope: %w", err)
		}
		backfill := d.Rebind(`
			UPDATE alerts SET scope = CASE
				WHEN rule = ? THEN COALESCE(device_id, room, '')
				ELSE COALESCE(room, device_id, '')
			END
			WHERE scope IS NULL
		`)
		if _, err := db.ExecContext(ctx, backfill, models.RuleNoHeartbeat); err != nil {
			return fmt.Errorf("failed to backfill alerts.scope: %w", err)
		}
	}

	dedupe := d.Rebind(`
		UPDATE alerts SET status = 'closed', closed_at = ?
		WHERE status = 'open' AND id NOT IN (
			SELECT MAX(id) FROM alerts WHERE status = 'open' GROUP BY rule, scope
		)
	`)
	if _, err := db.ExecContext(ctx, dedupe, d.TimeArg(time.Now())); err != nil {
		return fmt.Errorf("failed to close duplicate open alerts: %w", err)
	}
	return nil
}
