package storage

import (
	"context"
)

// Storage определяет интерфейс для взаимодействия с базой данных
type Storage interface {
	// EnsureSchema создаёт схему и таблицу, если их ещё нет. Существующие
	// объекты не изменяются.
	EnsureSchema(ctx context.Context) error

	// Begin открывает транзакцию, в которой копятся все upsert одного прогона.
	Begin(ctx context.Context) (Tx, error)

	// Messages
	CountRawMessages(ctx context.Context) (int64, error)
	// ListRawMessages читает таблицу целиком для сверки после загрузки;
	// загрузчик её не вызывает.
	ListRawMessages(ctx context.Context) ([]RawMessage, error)

	// Health Check
	Ping(ctx context.Context) error
	Close() error
}

// Tx — транзакция загрузки.
type Tx interface {
	// UpsertRawMessage вставляет запись или, при конфликте ключа,
	// перезаписывает message_data и scraped_at.
	UpsertRawMessage(ctx context.Context, msg RawMessage) error
	Commit() error
	Rollback() error
}
