package collector

import (
	"time"

	"rkata-ai/tg-ingest/internal/snapshot"

	"github.com/gotd/td/tg"
)

// normalize переводит сообщение MTProto в запись снимка. Второе значение —
// исходное *tg.Message, если у записи может быть медиа. Пустые сообщения
// (MessageEmpty) пропускаются.
func normalize(mc tg.MessageClass, channel string) (snapshot.Message, *tg.Message, bool) {
	switch m := mc.(type) {
	case *tg.Message:
		rec := snapshot.Message{
			ID:          int64(m.ID),
			ChannelName: channel,
			Date:        snapshot.FormatMessageDate(time.Unix(int64(m.Date), 0)),
			SenderID:    senderID(m.GetFromID()),
			HasImage:    isPhoto(m.Media),
			MediaStatus: snapshot.MediaNone,
		}
		if rec.SenderID == nil {
			rec.SenderID = peerID(m.PeerID)
		}
		if m.Message != "" {
			text := m.Message
			rec.Text = &text
		}
		return rec, m, true
	case *tg.MessageService:
		rec := snapshot.Message{
			ID:          int64(m.ID),
			ChannelName: channel,
			Date:        snapshot.FormatMessageDate(time.Unix(int64(m.Date), 0)),
			SenderID:    senderID(m.GetFromID()),
			MediaStatus: snapshot.MediaNone,
		}
		if rec.SenderID == nil {
			rec.SenderID = peerID(m.PeerID)
		}
		return rec, nil, true
	default:
		return snapshot.Message{}, nil, false
	}
}

// isPhoto определяет фото по типу медиа.
func isPhoto(media tg.MessageMediaClass) bool {
	_, ok := media.(*tg.MessageMediaPhoto)
	return ok
}

// senderID возвращает немаркированный id peer'а: для канала это ChannelID
// без префикса -100, в отличие от marked id, который отдают Bot API и Telethon.
func senderID(p tg.PeerClass, ok bool) *int64 {
	if !ok {
		return nil
	}
	return peerID(p)
}

func peerID(p tg.PeerClass) *int64 {
	var id int64
	switch v := p.(type) {
	case *tg.PeerUser:
		id = v.UserID
	case *tg.PeerChannel:
		id = v.ChannelID
	case *tg.PeerChat:
		id = v.ChatID
	default:
		return nil
	}
	return &id
}
