package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"eldercare-rules/internal/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	initialPingBackoff = 500 * time.Millisecond
	maxPingBackoff     = 30 * time.Second
)

// Open connects to the configured store, waits until it answers and applies
// the schema. It only gives up when ctx is done.
func Open(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}

	dsn := cfg.GetDSN()
	if dialect.Name() == config.DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect.Name() == config.DriverSQLite {
		// One connection: in-memory databases are per connection and file
		// databases serialise writers anyway.
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		}
		if cfg.MaxIdle > 0 {
			db.SetMaxIdleConns(cfg.MaxIdle)
		}
	}

	if err := PingWithRetry(ctx, db, logger); err != nil {
		db.Close()
		return nil, nil, err
	}

	if err := Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, nil, err
	}

	logger.Info("Database ready",
		zap.String("driver", dialect.Name()),
	)

	return db, dialect, nil
}

// PingWithRetry pings db with exponential backoff until it succeeds or ctx
// is cancelled.
func PingWithRetry(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	backoff := initialPingBackoff
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}

		logger.Warn("Database unreachable, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to connect to database: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxPingBackoff {
			backoff = maxPingBackoff
		}
	}
}

func sqliteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)"
}
