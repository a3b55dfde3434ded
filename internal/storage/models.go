package storage

import (
	"time"
)

// RawMessage — строка таблицы raw_telegram_messages.
type RawMessage struct {
	ID          int64     `db:"id"`
	ChannelName string    `db:"channel_name"`
	MessageData []byte    `db:"message_data"` // JSONB field
	ScrapedAt   time.Time `db:"scraped_at"`
}
