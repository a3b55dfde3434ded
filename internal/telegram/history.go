package telegram

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"
)

type historyFetcher func(ctx context.Context, req *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)

// historyIterator листает messages.getHistory по OffsetID. Telegram отдаёт
// сообщения от новых к старым, следующая страница начинается со старейшего
// ID предыдущей.
type historyIterator struct {
	fetch     historyFetcher
	peer      tg.InputPeerClass
	limit     int
	batchSize int

	buf      []tg.MessageClass
	pos      int
	offsetID int
	yielded  int
	last     bool

	cur tg.MessageClass
	err error
}

func newHistoryIterator(fetch historyFetcher, peer tg.InputPeerClass, limit, batchSize int) *historyIterator {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &historyIterator{fetch: fetch, peer: peer, limit: limit, batchSize: batchSize}
}

func (it *historyIterator) Next(ctx context.Context) bool {
	if it.err != nil || it.yielded >= it.limit {
		return false
	}
	for it.pos >= len(it.buf) {
		if it.last {
			return false
		}
		if err := it.fetchPage(ctx); err != nil {
			it.err = err
			return false
		}
	}
	it.cur = it.buf[it.pos]
	it.pos++
	it.yielded++
	return true
}

func (it *historyIterator) Value() tg.MessageClass { return it.cur }

func (it *historyIterator) Err() error { return it.err }

func (it *historyIterator) fetchPage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	want := min(it.batchSize, it.limit-it.yielded)
	res, err := it.fetch(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     it.peer,
		Limit:    want,
		OffsetID: it.offsetID,
	})
	if err != nil {
		return fmt.Errorf("failed to get history (offset %d): %w", it.offsetID, err)
	}

	msgs, err := extractMessages(res)
	if err != nil {
		return err
	}
	// Получили меньше, чем запросили, значит, достигли конца истории
	if len(msgs) < want {
		it.last = true
	}
	if len(msgs) > 0 {
		it.offsetID = msgs[len(msgs)-1].GetID()
	}
	it.buf, it.pos = msgs, 0
	return nil
}

// extractMessages извлекает сообщения из результата MessagesGetHistory.
func extractMessages(historyResult tg.MessagesMessagesClass) ([]tg.MessageClass, error) {
	switch result := historyResult.(type) {
	case *tg.MessagesMessages:
		return result.Messages, nil
	case *tg.MessagesMessagesSlice:
		return result.Messages, nil
	case *tg.MessagesChannelMessages:
		return result.Messages, nil
	case *tg.MessagesMessagesNotModified:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected history result type: %T", result)
	}
}
