package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"rkata-ai/tg-ingest/internal/config"
)

// dialect описывает различия между backend'ами на database/sql.
type dialect struct {
	name    string
	driver  string
	schemas bool // поддерживает CREATE SCHEMA

	jsonType    string
	jsonCast    string
	jsonCheck   bool
	timeType    string
	timeDefault string

	bind       func(n int) string
	encodeTime func(t time.Time) any
	decodeTime func(v any) (time.Time, error)
	errorCode  func(err error) string
}

// table — адрес целевой таблицы и режим ключа.
type table struct {
	schema       string
	name         string
	compositeKey bool
}

func tableFromConfig(cfg config.DatabaseConfig) table {
	return table{schema: cfg.Schema, name: cfg.Table, compositeKey: cfg.CompositeKey}
}

// sqlStorage реализует Storage поверх database/sql.
type sqlStorage struct {
	db *sql.DB
	d  dialect
	t  table
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func qualifiedName(d dialect, t table) string {
	if d.schemas && t.schema != "" {
		return quoteIdent(t.schema) + "." + quoteIdent(t.name)
	}
	return quoteIdent(t.name)
}

func conflictTarget(t table) string {
	if t.compositeKey {
		return "channel_name, id"
	}
	return "id"
}

// buildCreateSQL возвращает DDL схемы (может быть пустым) и таблицы.
// Оба выражения идемпотентны: IF NOT EXISTS, без ALTER и DROP.
func buildCreateSQL(d dialect, t table) (schemaSQL, tableSQL string) {
	if d.schemas && t.schema != "" {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + quoteIdent(t.schema)
	}

	dataCol := "message_data " + d.jsonType + " NOT NULL"
	if d.jsonCheck {
		dataCol += " CHECK (json_valid(message_data))"
	}
	timeCol := "scraped_at " + d.timeType + " DEFAULT " + d.timeDefault

	var cols []string
	if t.compositeKey {
		cols = []string{
			"id INTEGER NOT NULL",
			"channel_name TEXT NOT NULL",
			dataCol,
			timeCol,
			"PRIMARY KEY (channel_name, id)",
		}
	} else {
		cols = []string{
			"id INTEGER PRIMARY KEY",
			"channel_name TEXT",
			dataCol,
			timeCol,
		}
	}

	tableSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		qualifiedName(d, t), strings.Join(cols, ",\n\t"))
	return schemaSQL, tableSQL
}

// buildUpsertSQL: при конфликте ключа обновляются только payload и время
// загрузки, как и раньше в скрипте загрузки.
func buildUpsertSQL(d dialect, t table) string {
	return fmt.Sprintf(
		"INSERT INTO %s (id, channel_name, message_data, scraped_at) VALUES (%s, %s, %s%s, %s) "+
			"ON CONFLICT (%s) DO UPDATE SET message_data = EXCLUDED.message_data, scraped_at = EXCLUDED.scraped_at",
		qualifiedName(d, t), d.bind(1), d.bind(2), d.bind(3), d.jsonCast, d.bind(4), conflictTarget(t),
	)
}

func buildSelectSQL(d dialect, t table) string {
	return "SELECT id, channel_name, message_data, scraped_at FROM " + qualifiedName(d, t) + " ORDER BY channel_name, id"
}

func (s *sqlStorage) Close() error {
	return s.db.Close()
}

func (s *sqlStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStorage) EnsureSchema(ctx context.Context) error {
	schemaSQL, tableSQL := buildCreateSQL(s.d, s.t)
	if schemaSQL != "" {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", s.t.schema, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, tableSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", qualifiedName(s.d, s.t), err)
	}
	return nil
}

func (s *sqlStorage) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, buildUpsertSQL(s.d, s.t))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	return &sqlTx{tx: tx, stmt: stmt, d: s.d}, nil
}

func (s *sqlStorage) CountRawMessages(ctx context.Context) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + qualifiedName(s.d, s.t)
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count raw messages: %w", err)
	}
	return n, nil
}

func (s *sqlStorage) ListRawMessages(ctx context.Context) ([]RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, buildSelectSQL(s.d, s.t))
	if err != nil {
		return nil, fmt.Errorf("failed to list raw messages: %w", err)
	}
	defer rows.Close()

	messages := []RawMessage{}
	for rows.Next() {
		var (
			msg       RawMessage
			channel   sql.NullString
			scrapedAt any
		)
		if err := rows.Scan(&msg.ID, &channel, &msg.MessageData, &scrapedAt); err != nil {
			return nil, fmt.Errorf("failed to scan raw message row: %w", err)
		}
		msg.ChannelName = channel.String
		if msg.ScrapedAt, err = s.d.decodeTime(scrapedAt); err != nil {
			return nil, fmt.Errorf("failed to decode scraped_at for message %d: %w", msg.ID, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return messages, nil
}

type sqlTx struct {
	tx   *sql.Tx
	stmt *sql.Stmt
	d    dialect
}

func (t *sqlTx) UpsertRawMessage(ctx context.Context, msg RawMessage) error {
	_, err := t.stmt.ExecContext(ctx,
		msg.ID,
		msg.ChannelName,
		string(msg.MessageData),
		t.d.encodeTime(msg.ScrapedAt),
	)
	if err != nil {
		if code := t.d.errorCode(err); code != "" {
			return fmt.Errorf("failed to upsert message %d from %s (%s code %s): %w", msg.ID, msg.ChannelName, t.d.name, code, err)
		}
		return fmt.Errorf("failed to upsert message %d from %s: %w", msg.ID, msg.ChannelName, err)
	}
	return nil
}

func (t *sqlTx) Commit() error {
	_ = t.stmt.Close()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	_ = t.stmt.Close()
	return t.tx.Rollback()
}

func decodeAnyTime(v any, parse func(string) (time.Time, error)) (time.Time, error) {
	switch tv := v.(type) {
	case time.Time:
		return tv, nil
	case string:
		return parse(tv)
	case []byte:
		return parse(string(tv))
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unexpected time value type %T", v)
	}
}
