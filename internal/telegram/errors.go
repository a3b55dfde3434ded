package telegram

import (
	"errors"
	"time"

	"github.com/gotd/td/tgerr"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrNoPhoto         = errors.New("message has no downloadable photo")
)

// FloodWait сообщает, что Telegram ограничил частоту запросов, и сколько ждать.
func FloodWait(err error) (time.Duration, bool) {
	return tgerr.AsFloodWait(err)
}

func isNotFound(err error) bool {
	return tgerr.Is(err,
		"USERNAME_NOT_OCCUPIED",
		"USERNAME_INVALID",
		"CHANNEL_INVALID",
		"CHANNEL_PRIVATE",
	)
}
