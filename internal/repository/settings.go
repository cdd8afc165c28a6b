package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// SettingsRepository reads the flat rule_settings table.
type SettingsRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewSettingsRepository creates a settings repository.
func NewSettingsRepository(db *sql.DB, dialect Dialect, logger *zap.Logger) *SettingsRepository {
	return &SettingsRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// GetRuleSettings returns every key/value pair.
func (r *SettingsRepository) GetRuleSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM rule_settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan rule setting: %w", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule settings: %w", err)
	}
	return settings, nil
}

// SetRuleSetting inserts or replaces one setting.
func (r *SettingsRepository) SetRuleSetting(ctx context.Context, key, value string) error {
	query := r.dialect.Rebind(`
		INSERT INTO rule_settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`)
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set rule setting %s: %w", key, err)
	}
	return nil
}
