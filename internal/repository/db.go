package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/goopick/madstamp/internal/common"
)

//go:embed schema.sql
var schemaSQL string

// Config mirrors common.DatabaseConfig for the repository layer.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// Open connects to the store behind DSN. A postgres:// DSN builds a pgx pool
// and wraps it as *sql.DB; anything else is treated as a sqlite path for
// local mode. The schema is applied idempotently on open.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var db *sql.DB
	var closer func()

	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		logger.Info("connecting to database", "driver", "pgx")
		SetPostgresPlaceholders(true)
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, nil, common.WrapError(err, "parse dsn")
		}
		pc.MaxConns = cfg.MaxConns
		pc.MinConns = cfg.MinConns
		pc.MaxConnLifetime = cfg.MaxConnLifetime
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
		pc.ConnConfig.RuntimeParams["application_name"] = "madstamp"

		dialCtx := ctx
		if cfg.DialTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
		}
		pool, err := pgxpool.NewWithConfig(dialCtx, pc)
		if err != nil {
			return nil, nil, common.WrapError(err, "connect database")
		}
		db = stdlib.OpenDBFromPool(pool)
		closer = func() {
			_ = db.Close()
			pool.Close()
		}
	} else {
		logger.Info("connecting to database", "driver", "sqlite", "path", cfg.DSN)
		var err error
		db, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, nil, common.WrapError(err, "open sqlite")
		}
		// modernc sqlite serializes writes; one writer avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		closer = func() { _ = db.Close() }
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		closer()
		return nil, nil, common.WrapError(err, "apply schema")
	}

	logger.Info("successfully connected to database")
	return db, closer, nil
}

// HealthCheck pings the store to catch DSN issues early.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return db.PingContext(ctx)
}
