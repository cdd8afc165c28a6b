package repository

import (
	"fmt"
	"strings"
	"time"
)

// sqliteTimeLayout matches the text timestamps written by the ingestion side.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// Dialect hides the SQL differences between SQLite and PostgreSQL.
// Queries are written with ? placeholders and passed through Rebind.
type Dialect interface {
	// Name returns "sqlite" or "postgres".
	Name() string
	// Rebind converts ? placeholders to the dialect's style.
	Rebind(query string) string
	// AutoIncrement is the column definition of a surrogate primary key.
	AutoIncrement() string
	// TimestampType is the column type used for timestamps.
	TimestampType() string
	// TimeArg encodes a timestamp query parameter.
	TimeArg(t time.Time) interface{}
	// TimeAtLeast renders "column >= ?" comparing instants, not text.
	TimeAtLeast(column string) string
	// SortableTime renders an expression ordering column chronologically.
	SortableTime(column string) string
	// ColumnCountQuery counts matching columns; its arguments are table, column.
	ColumnCountQuery() string
}

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

var _ Dialect = (*SQLiteDialect)(nil)

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) Rebind(query string) string { return query }

func (d *SQLiteDialect) AutoIncrement() string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// TimestampType is TEXT so rows written by other processes in any ISO-like
// format are stored untouched.
func (d *SQLiteDialect) TimestampType() string { return "TEXT" }

func (d *SQLiteDialect) TimeArg(t time.Time) interface{} {
	return t.UTC().Format(sqliteTimeLayout)
}

func (d *SQLiteDialect) TimeAtLeast(column string) string {
	return fmt.Sprintf("datetime(%s) >= datetime(?)", column)
}

func (d *SQLiteDialect) SortableTime(column string) string {
	return fmt.Sprintf("datetime(%s)", column)
}

func (d *SQLiteDialect) ColumnCountQuery() string {
	return `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`
}

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

var _ Dialect = (*PostgresDialect)(nil)

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) Rebind(query string) string { return ConvertPlaceholders(query) }

func (d *PostgresDialect) AutoIncrement() string { return "BIGSERIAL PRIMARY KEY" }

func (d *PostgresDialect) TimestampType() string { return "TIMESTAMPTZ" }

func (d *PostgresDialect) TimeArg(t time.Time) interface{} { return t.UTC() }

func (d *PostgresDialect) TimeAtLeast(column string) string {
	return fmt.Sprintf("%s >= ?", column)
}

func (d *PostgresDialect) SortableTime(column string) string { return column }

func (d *PostgresDialect) ColumnCountQuery() string {
	return `SELECT COUNT(*) FROM information_schema.columns WHERE table_name = $1 AND column_name = $2`
}

// DialectFor returns the dialect of a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}, nil
	case "postgres":
		return &PostgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// ConvertPlaceholders converts ? placeholders to $n placeholders.
func ConvertPlaceholders(query string) string {
	var result strings.Builder
	result.Grow(len(query) + 10)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&result, "$%d", n)
			n++
		} else {
			result.WriteByte(query[i])
		}
	}
	return result.String()
}
