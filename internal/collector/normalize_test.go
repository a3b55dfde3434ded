package collector

import (
	"testing"
	"time"

	"rkata-ai/tg-ingest/internal/snapshot"

	"github.com/gotd/td/tg"
)

func TestNormalize_Message(t *testing.T) {
	t.Parallel()

	date := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	m := &tg.Message{
		ID:      42,
		Date:    int(date.Unix()),
		Message: "Парацетамол в наличии",
		PeerID:  &tg.PeerChannel{ChannelID: 900},
		Media:   &tg.MessageMediaPhoto{},
	}
	m.SetFromID(&tg.PeerUser{UserID: 77})

	rec, native, ok := normalize(m, "tikvahpharma")
	if !ok || native != m {
		t.Fatalf("normalize must accept *tg.Message")
	}
	if rec.ID != 42 || rec.ChannelName != "tikvahpharma" {
		t.Fatalf("unexpected identity: %+v", rec)
	}
	if rec.Date != "2025-07-14 09:30:00+00:00" {
		t.Fatalf("Date=%q", rec.Date)
	}
	if rec.Text == nil || *rec.Text != "Парацетамол в наличии" {
		t.Fatalf("Text=%v", rec.Text)
	}
	if rec.SenderID == nil || *rec.SenderID != 77 {
		t.Fatalf("SenderID=%v want 77", rec.SenderID)
	}
	if !rec.HasImage || rec.MediaStatus != snapshot.MediaNone || rec.ImagePath != nil {
		t.Fatalf("photo must be detected but not yet saved: %+v", rec)
	}
}

func TestNormalize_ChannelPostWithoutAuthor(t *testing.T) {
	t.Parallel()

	m := &tg.Message{ID: 1, PeerID: &tg.PeerChannel{ChannelID: 900}, Media: &tg.MessageMediaDocument{}}
	rec, _, ok := normalize(m, "c")
	if !ok {
		t.Fatalf("normalize rejected message")
	}
	if rec.SenderID == nil || *rec.SenderID != 900 {
		t.Fatalf("SenderID=%v want channel id 900", rec.SenderID)
	}
	if rec.Text != nil {
		t.Fatalf("empty body must be null, got %q", *rec.Text)
	}
	if rec.HasImage {
		t.Fatalf("document is not a photo")
	}
}

func TestNormalize_ServiceAndEmpty(t *testing.T) {
	t.Parallel()

	rec, native, ok := normalize(&tg.MessageService{ID: 3, PeerID: &tg.PeerChat{ChatID: 5}}, "c")
	if !ok || native != nil {
		t.Fatalf("service message must produce a record without media handle")
	}
	if rec.Text != nil || rec.HasImage || rec.SenderID == nil || *rec.SenderID != 5 {
		t.Fatalf("unexpected service record: %+v", rec)
	}

	if _, _, ok := normalize(&tg.MessageEmpty{ID: 4}, "c"); ok {
		t.Fatalf("empty message must be skipped")
	}
}
