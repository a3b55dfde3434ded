package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rkata-ai/tg-ingest/internal/config"

	"modernc.org/sqlite"
)

func init() {
	Register("sqlite", NewSQLiteStorage)
}

// SQLite не знает схем и TIMESTAMPTZ: таблица лежит в основной базе,
// время хранится строкой RFC3339Nano, JSON — TEXT с проверкой json_valid.
var sqliteDialect = dialect{
	name:        "sqlite",
	driver:      "sqlite",
	jsonType:    "TEXT",
	jsonCheck:   true,
	timeType:    "TEXT",
	timeDefault: "(strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))",
	bind:        func(int) string { return "?" },
	encodeTime:  func(t time.Time) any { return formatSQLiteTime(t) },
	decodeTime:  func(v any) (time.Time, error) { return decodeAnyTime(v, parseSQLiteTime) },
	errorCode:   sqliteErrorCode,
}

func sqliteErrorCode(err error) string {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return strconv.Itoa(sqErr.Code())
	}
	return ""
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseSQLiteTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized sqlite time %q", s)
}

// NewSQLiteStorage открывает файл базы (или ":memory:") на modernc.org/sqlite.
func NewSQLiteStorage(ctx context.Context, cfg config.DatabaseConfig) (Storage, error) {
	dsn := cfg.DSN()
	if dsn == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Один писатель: вся загрузка идёт в одной транзакции на одном соединении.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &sqlStorage{db: db, d: sqliteDialect, t: tableFromConfig(cfg)}, nil
}
