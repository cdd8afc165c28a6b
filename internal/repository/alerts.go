package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eldercare-rules/internal/models"

	"go.uber.org/zap"
)

var (
	// ErrAlertAlreadyOpen is returned by Open when the (rule, scope) pair
	// already has an open row.
	ErrAlertAlreadyOpen = errors.New("alert already open")
	// ErrAlertNotFound is returned for unknown alert ids.
	ErrAlertNotFound = errors.New("alert not found")
)

const alertColumns = `id, ts_utc, rule, scope, room, device_id, severity, details,
	status, created_at, closed_at, ack_at, ack_by, notified_at`

// AlertsRepository reads and mutates the alerts table.
type AlertsRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewAlertsRepository creates an alerts repository.
func NewAlertsRepository(db *sql.DB, dialect Dialect, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// HasOpen reports whether an open alert exists for (rule, scope).
func (r *AlertsRepository) HasOpen(ctx context.Context, rule, scope string) (bool, error) {
	query := r.dialect.Rebind(`
		SELECT COUNT(*) FROM alerts
		WHERE rule = ? AND scope = ? AND status = 'open'
	`)

	var n int
	if err := r.db.QueryRowContext(ctx, query, rule, scope).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check open alert: %w", err)
	}
	return n > 0, nil
}

// Open inserts a new open alert and returns its id. The partial unique index
// on open alerts turns a lost race into ErrAlertAlreadyOpen.
func (r *AlertsRepository) Open(ctx context.Context, alert *models.Alert) (int64, error) {
	if alert == nil {
		return 0, fmt.Errorf("alert is required")
	}
	if alert.Rule == "" || alert.Scope == "" {
		return 0, fmt.Errorf("alert rule and scope are required")
	}

	query := r.dialect.Rebind(`
		INSERT INTO alerts (ts_utc, rule, scope, room, device_id, type, severity, details, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'open', ?)
		ON CONFLICT (rule, scope) WHERE status = 'open' DO NOTHING
		RETURNING id
	`)

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		r.dialect.TimeArg(alert.TsUTC),
		alert.Rule,
		alert.Scope,
		alert.Room,
		alert.DeviceID,
		alert.Rule,
		alert.Severity,
		alert.Details,
		r.dialect.TimeArg(alert.CreatedAt),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAlertAlreadyOpen
		}
		return 0, fmt.Errorf("failed to open alert: %w", err)
	}

	alert.ID = id
	alert.Status = models.AlertStatusOpen
	return id, nil
}

// Close closes the most recent open alert for (rule, scope) and reports
// whether a row changed.
func (r *AlertsRepository) Close(ctx context.Context, rule, scope string, at time.Time) (bool, error) {
	query := r.dialect.Rebind(`
		UPDATE alerts SET status = 'closed', closed_at = ?
		WHERE id = (
			SELECT id FROM alerts
			WHERE rule = ? AND scope = ? AND status = 'open'
			ORDER BY id DESC
			LIMIT 1
		)
	`)

	result, err := r.db.ExecContext(ctx, query, r.dialect.TimeArg(at), rule, scope)
	if err != nil {
		return false, fmt.Errorf("failed to close alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Ack acknowledges an open, not yet acknowledged alert.
func (r *AlertsRepository) Ack(ctx context.Context, id int64, by string, at time.Time) (bool, error) {
	if by == "" {
		return false, fmt.Errorf("ack_by is required")
	}

	query := r.dialect.Rebind(`
		UPDATE alerts SET ack_at = ?, ack_by = ?
		WHERE id = ? AND status = 'open' AND ack_at IS NULL
	`)

	result, err := r.db.ExecContext(ctx, query, r.dialect.TimeArg(at), by, id)
	if err != nil {
		return false, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// CloseByID closes an open alert by id. Used for operator closes.
func (r *AlertsRepository) CloseByID(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := r.dialect.Rebind(`
		UPDATE alerts SET status = 'closed', closed_at = ?
		WHERE id = ? AND status = 'open'
	`)

	result, err := r.db.ExecContext(ctx, query, r.dialect.TimeArg(at), id)
	if err != nil {
		return false, fmt.Errorf("failed to close alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Get returns one alert by id.
func (r *AlertsRepository) Get(ctx context.Context, id int64) (*models.Alert, error) {
	query := r.dialect.Rebind(`SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`)

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id=%d", ErrAlertNotFound, id)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// ListOpen returns all open alerts, oldest first.
func (r *AlertsRepository) ListOpen(ctx context.Context) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE status = 'open' ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query open alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var tsUTC, createdAt sql.NullString
	var closedAt, ackAt, notifiedAt sql.NullString
	var room, deviceID, details, ackBy sql.NullString

	if err := row.Scan(
		&alert.ID,
		&tsUTC,
		&alert.Rule,
		&alert.Scope,
		&room,
		&deviceID,
		&alert.Severity,
		&details,
		&alert.Status,
		&createdAt,
		&closedAt,
		&ackAt,
		&ackBy,
		&notifiedAt,
	); err != nil {
		return nil, err
	}

	alert.Room = nullString(room)
	alert.DeviceID = nullString(deviceID)
	alert.Details = details.String
	alert.AckBy = nullString(ackBy)

	ts, err := requiredTime(tsUTC)
	if err != nil {
		return nil, err
	}
	alert.TsUTC = ts
	if alert.CreatedAt, err = requiredTime(createdAt); err != nil {
		return nil, err
	}
	if alert.ClosedAt, err = nullTime(closedAt); err != nil {
		return nil, err
	}
	if alert.AckAt, err = nullTime(ackAt); err != nil {
		return nil, err
	}
	if alert.NotifiedAt, err = nullTime(notifiedAt); err != nil {
		return nil, err
	}

	return &alert, nil
}

func requiredTime(ns sql.NullString) (time.Time, error) {
	t, err := nullTime(ns)
	if err != nil || t == nil {
		return time.Time{}, err
	}
	return *t, nil
}
