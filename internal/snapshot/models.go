package snapshot

import "time"

// DateLayout — формат даты прогона в путях снимков.
const DateLayout = "2006-01-02"

// MessageDateLayout повторяет строковое представление даты, которое
// исторически лежит в снимках: "2025-07-14 09:30:00+00:00".
const MessageDateLayout = "2006-01-02 15:04:05-07:00"

// MediaStatus различает отсутствие медиа и неудачную загрузку.
type MediaStatus string

const (
	MediaNone    MediaStatus = "none"
	MediaPending MediaStatus = "pending"
	MediaSaved   MediaStatus = "saved"
	MediaFailed  MediaStatus = "failed"
)

// Message — каноническая запись сообщения в снимке.
type Message struct {
	ID          int64       `json:"id"`
	ChannelName string      `json:"channel_name"`
	Date        string      `json:"date"`
	Text        *string     `json:"text"`
	SenderID    *int64      `json:"sender_id"`
	HasImage    bool        `json:"has_image"`
	ImagePath   *string     `json:"image_path"`
	MediaStatus MediaStatus `json:"media_status"`
	MediaError  string      `json:"media_error,omitempty"`
}

// FormatMessageDate приводит время публикации к формату снимка (UTC).
func FormatMessageDate(t time.Time) string {
	return t.UTC().Format(MessageDateLayout)
}
