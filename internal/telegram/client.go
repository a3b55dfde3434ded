package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"rkata-ai/tg-ingest/internal/config"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
)

// Reader определяет интерфейс чтения истории каналов Telegram.
type Reader interface {
	// History возвращает ленивый итератор по не более чем limit последним
	// сообщениям канала, от новых к старым.
	History(ctx context.Context, channel string, limit int) (MessageIterator, error)
	// DownloadMedia сохраняет фото сообщения в path.
	DownloadMedia(ctx context.Context, msg *tg.Message, path string) error
}

// MessageIterator — конечная последовательность сообщений. Повторно не запускается.
type MessageIterator interface {
	Next(ctx context.Context) bool
	Value() tg.MessageClass
	Err() error
}

const defaultBatchSize = 100

type Client struct {
	client     *telegram.Client
	config     config.TelegramConfig
	batchSize  int
	downloader *downloader.Downloader

	// Кэш peer'ов по имени канала
	peers sync.Map

	// Контекст для остановки клиента
	mu     sync.Mutex
	cancel context.CancelFunc

	ready chan struct{} // закрывается после успешной авторизации
}

func NewClient(cfg config.TelegramConfig, batchSize int) (*Client, error) {
	// Проверяем наличие необходимых данных для MTProto
	if cfg.APIID == "" || cfg.APIHash == "" {
		return nil, fmt.Errorf("API ID and API Hash are required for MTProto client")
	}

	apiID, err := strconv.Atoi(cfg.APIID)
	if err != nil {
		return nil, fmt.Errorf("invalid API ID: %w", err)
	}
	if batchSize <= 0 || batchSize > defaultBatchSize {
		batchSize = defaultBatchSize
	}

	log.Printf("Создание клиента с API ID: %d", apiID)

	c := &Client{
		config:     cfg,
		batchSize:  batchSize,
		downloader: downloader.NewDownloader(),
		ready:      make(chan struct{}),
	}

	opts := telegram.Options{}
	if cfg.SessionFile != "" {
		opts.SessionStorage = &session.FileStorage{Path: cfg.SessionFile}
	}
	c.client = telegram.NewClient(apiID, cfg.APIHash, opts)

	return c, nil
}

// Start запускает Telegram клиента и блокируется до отмены ctx или Close.
func (c *Client) Start(ctx context.Context) error {
	log.Println("Запуск Telegram клиента...")

	clientCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	err := c.client.Run(clientCtx, func(ctx context.Context) error {
		if err := c.auth(ctx); err != nil {
			return fmt.Errorf("auth failed: %w", err)
		}
		log.Println("Авторизация успешна.")
		close(c.ready)
		<-ctx.Done()
		return nil
	})

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("telegram client stopped with error: %w", err)
	}
	log.Println("Telegram клиент остановлен.")
	return nil
}

// auth выполняет авторизацию в Telegram, если сессия ещё не авторизована.
func (c *Client) auth(ctx context.Context) error {
	flow := auth.NewFlow(
		TermAuth{PhoneNumber: c.config.Phone},
		auth.SendCodeOptions{},
	)
	if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
		return fmt.Errorf("auth flow failed: %w", err)
	}
	return nil
}

func (c *Client) waitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ready:
		return nil
	}
}

// History получает последние сообщения канала постранично.
func (c *Client) History(ctx context.Context, channel string, limit int) (MessageIterator, error) {
	if err := c.waitReady(ctx); err != nil {
		return nil, err
	}

	channelName := strings.TrimPrefix(channel, "@")
	peer, err := c.resolveChannelPeer(ctx, channelName)
	if err != nil {
		return nil, err
	}

	api := c.client.API()
	return newHistoryIterator(api.MessagesGetHistory, peer, limit, c.batchSize), nil
}

// resolveChannelPeer получает tg.InputPeerClass для заданного имени канала.
func (c *Client) resolveChannelPeer(ctx context.Context, channelName string) (tg.InputPeerClass, error) {
	if cached, ok := c.peers.Load(channelName); ok {
		return cached.(tg.InputPeerClass), nil
	}

	resolveResult, err := c.client.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: channelName,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("failed to resolve username %s: %w: %w", channelName, ErrChannelNotFound, err)
		}
		return nil, fmt.Errorf("failed to resolve username %s: %w", channelName, err)
	}

	peer, err := inputPeerFromResolved(resolveResult)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", channelName, err)
	}
	c.peers.Store(channelName, peer)
	return peer, nil
}

func inputPeerFromResolved(res *tg.ContactsResolvedPeer) (tg.InputPeerClass, error) {
	switch p := res.Peer.(type) {
	case *tg.PeerChannel:
		for _, chat := range res.Chats {
			if ch, ok := chat.(*tg.Channel); ok && ch.ID == p.ChannelID {
				return &tg.InputPeerChannel{ChannelID: p.ChannelID, AccessHash: ch.AccessHash}, nil
			}
		}
		return nil, fmt.Errorf("%w: channel %d missing from resolve result", ErrChannelNotFound, p.ChannelID)
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected peer type %T", ErrChannelNotFound, p)
	}
}

// DownloadMedia скачивает самый крупный размер фото.
func (c *Client) DownloadMedia(ctx context.Context, msg *tg.Message, path string) error {
	loc, err := photoLocation(msg)
	if err != nil {
		return err
	}
	if _, err := c.downloader.Download(c.client.API(), loc).ToPath(ctx, path); err != nil {
		return fmt.Errorf("failed to download photo of message %d: %w", msg.ID, err)
	}
	return nil
}

// photoLocation строит адрес файла для фото из медиа сообщения.
func photoLocation(msg *tg.Message) (*tg.InputPhotoFileLocation, error) {
	media, ok := msg.Media.(*tg.MessageMediaPhoto)
	if !ok {
		return nil, ErrNoPhoto
	}
	photoClass, ok := media.GetPhoto()
	if !ok {
		return nil, ErrNoPhoto
	}
	photo, ok := photoClass.(*tg.Photo)
	if !ok {
		return nil, ErrNoPhoto
	}
	thumb := largestPhotoSize(photo.Sizes)
	if thumb == "" {
		return nil, fmt.Errorf("%w: photo %d has no sizes", ErrNoPhoto, photo.ID)
	}
	return &tg.InputPhotoFileLocation{
		ID:            photo.ID,
		AccessHash:    photo.AccessHash,
		FileReference: photo.FileReference,
		ThumbSize:     thumb,
	}, nil
}

// largestPhotoSize выбирает тип размера с наибольшей площадью.
// Встроенные превью (stripped, cached) не скачиваются через upload.getFile.
func largestPhotoSize(sizes []tg.PhotoSizeClass) string {
	var (
		best     string
		bestArea int
	)
	for _, s := range sizes {
		var (
			typ  string
			area int
		)
		switch v := s.(type) {
		case *tg.PhotoSize:
			typ, area = v.Type, v.W*v.H
		case *tg.PhotoSizeProgressive:
			typ, area = v.Type, v.W*v.H
		default:
			continue
		}
		if best == "" || area > bestArea {
			best, bestArea = typ, area
		}
	}
	return best
}

// Close закрывает соединение с клиентом
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Ready returns a channel that is closed when the client is authenticated and ready.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}
