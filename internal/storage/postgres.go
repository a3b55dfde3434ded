package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"rkata-ai/tg-ingest/internal/config"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/lib/pq"                 // PostgreSQL driver
)

func init() {
	Register("postgres", func(ctx context.Context, cfg config.DatabaseConfig) (Storage, error) {
		return NewPostgresStorage(ctx, cfg, "postgres")
	})
	Register("pgx", func(ctx context.Context, cfg config.DatabaseConfig) (Storage, error) {
		return NewPostgresStorage(ctx, cfg, "pgx")
	})
}

func postgresDialect(driver string) dialect {
	return dialect{
		name:        "postgres",
		driver:      driver,
		schemas:     true,
		jsonType:    "JSONB",
		jsonCast:    "::jsonb",
		timeType:    "TIMESTAMPTZ",
		timeDefault: "now()",
		bind:        func(n int) string { return "$" + strconv.Itoa(n) },
		encodeTime:  func(t time.Time) any { return t },
		decodeTime: func(v any) (time.Time, error) {
			return decodeAnyTime(v, func(s string) (time.Time, error) {
				return time.Parse(time.RFC3339Nano, s)
			})
		},
		errorCode: postgresErrorCode,
	}
}

// postgresErrorCode достаёт SQLSTATE из ошибок обоих драйверов.
func postgresErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// NewPostgresStorage создает новое хранилище PostgreSQL. driver — "postgres"
// (lib/pq) или "pgx" (pgx/v5 stdlib).
func NewPostgresStorage(ctx context.Context, cfg config.DatabaseConfig, driver string) (Storage, error) {
	db, err := sql.Open(driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &sqlStorage{db: db, d: postgresDialect(driver), t: tableFromConfig(cfg)}, nil
}
