package telegram

import (
	"errors"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

func TestLargestPhotoSize(t *testing.T) {
	t.Parallel()

	sizes := []tg.PhotoSizeClass{
		&tg.PhotoStrippedSize{Type: "i"},
		&tg.PhotoSize{Type: "s", W: 90, H: 90},
		&tg.PhotoSizeProgressive{Type: "y", W: 1280, H: 960},
		&tg.PhotoSize{Type: "m", W: 320, H: 240},
	}
	if got := largestPhotoSize(sizes); got != "y" {
		t.Fatalf("largestPhotoSize=%q want y", got)
	}
	if got := largestPhotoSize([]tg.PhotoSizeClass{&tg.PhotoStrippedSize{Type: "i"}}); got != "" {
		t.Fatalf("stripped-only photo must yield empty type, got %q", got)
	}
}

func TestPhotoLocation(t *testing.T) {
	t.Parallel()

	photo := &tg.Photo{
		ID:            11,
		AccessHash:    22,
		FileReference: []byte{1, 2, 3},
		Sizes:         []tg.PhotoSizeClass{&tg.PhotoSize{Type: "x", W: 800, H: 600}},
	}
	media := &tg.MessageMediaPhoto{}
	media.SetPhoto(photo)

	loc, err := photoLocation(&tg.Message{ID: 5, Media: media})
	if err != nil {
		t.Fatalf("photoLocation: %v", err)
	}
	if loc.ID != 11 || loc.AccessHash != 22 || loc.ThumbSize != "x" {
		t.Fatalf("unexpected location: %+v", loc)
	}

	if _, err := photoLocation(&tg.Message{ID: 6, Media: &tg.MessageMediaDocument{}}); !errors.Is(err, ErrNoPhoto) {
		t.Fatalf("document media: err=%v want ErrNoPhoto", err)
	}
	if _, err := photoLocation(&tg.Message{ID: 7}); !errors.Is(err, ErrNoPhoto) {
		t.Fatalf("no media: err=%v want ErrNoPhoto", err)
	}
}

func TestInputPeerFromResolved(t *testing.T) {
	t.Parallel()

	res := &tg.ContactsResolvedPeer{
		Peer:  &tg.PeerChannel{ChannelID: 100},
		Chats: []tg.ChatClass{&tg.Channel{ID: 100, AccessHash: 555}},
	}
	peer, err := inputPeerFromResolved(res)
	if err != nil {
		t.Fatalf("inputPeerFromResolved: %v", err)
	}
	ch, ok := peer.(*tg.InputPeerChannel)
	if !ok || ch.ChannelID != 100 || ch.AccessHash != 555 {
		t.Fatalf("unexpected peer: %#v", peer)
	}

	_, err = inputPeerFromResolved(&tg.ContactsResolvedPeer{Peer: &tg.PeerUser{UserID: 1}})
	if !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("user peer: err=%v want ErrChannelNotFound", err)
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	if !isNotFound(tgerr.New(400, "USERNAME_NOT_OCCUPIED")) {
		t.Fatalf("USERNAME_NOT_OCCUPIED must be not-found")
	}
	if isNotFound(tgerr.New(420, "FLOOD_WAIT_10")) {
		t.Fatalf("flood wait is not not-found")
	}
}
