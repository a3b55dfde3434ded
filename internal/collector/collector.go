package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"rkata-ai/tg-ingest/internal/snapshot"
	"rkata-ai/tg-ingest/internal/telegram"

	"github.com/google/uuid"
	"github.com/gotd/td/tg"
)

// Config задаёт один прогон сборщика.
type Config struct {
	Root    string
	RunDate time.Time
	// Limit — сколько последних сообщений брать из каждого канала.
	Limit int
	// CheckpointEvery: каждые N записей снимок канала перезаписывается
	// накопленным результатом. 0 отключает промежуточную запись.
	CheckpointEvery int
}

// ChannelResult — итог обработки одного канала.
type ChannelResult struct {
	Channel      string
	Path         string
	Messages     int
	Images       int
	ImagesFailed int
	// Partial: история оборвалась с ошибкой, но собранное записано.
	Partial bool
	Err     error
}

type Summary struct {
	RunID    uuid.UUID
	Channels []ChannelResult
}

// Failed возвращает число каналов, завершившихся ошибкой.
func (s Summary) Failed() int {
	n := 0
	for _, ch := range s.Channels {
		if ch.Err != nil {
			n++
		}
	}
	return n
}

type Collector struct {
	cfg    Config
	reader telegram.Reader
}

func New(cfg Config, reader telegram.Reader) *Collector {
	if cfg.RunDate.IsZero() {
		cfg.RunDate = time.Now()
	}
	return &Collector{cfg: cfg, reader: reader}
}

// Run обходит каналы по очереди. Ошибка одного канала не останавливает
// остальные; отмена ctx останавливает прогон между каналами.
func (c *Collector) Run(ctx context.Context, channels []string) Summary {
	summary := Summary{RunID: uuid.New()}
	log.Printf("Прогон %s: %d каналов, дата %s, лимит %d",
		summary.RunID, len(channels), c.cfg.RunDate.Format(snapshot.DateLayout), c.cfg.Limit)

	for i, channel := range channels {
		if err := ctx.Err(); err != nil {
			log.Printf("Прогон прерван, пропускаем оставшиеся каналы: %v", err)
			for _, rest := range channels[i:] {
				summary.Channels = append(summary.Channels, ChannelResult{Channel: rest, Err: err})
			}
			break
		}

		res := c.collectChannel(ctx, channel)
		if res.Err != nil {
			logChannelFailure(res)
		} else {
			log.Printf("Сохранено %d сообщений из %s в %s (фото: %d, ошибок загрузки: %d)",
				res.Messages, res.Channel, res.Path, res.Images, res.ImagesFailed)
		}
		summary.Channels = append(summary.Channels, res)
	}
	return summary
}

func (c *Collector) collectChannel(ctx context.Context, channel string) ChannelResult {
	res := ChannelResult{
		Channel: channel,
		Path:    snapshot.Path(c.cfg.Root, c.cfg.RunDate, channel),
	}

	log.Printf("Начинаем обработку канала: %s", channel)
	it, err := c.reader.History(ctx, channel, c.cfg.Limit)
	if err != nil {
		res.Err = fmt.Errorf("failed to open history for %s: %w", channel, err)
		return res
	}

	var records []snapshot.Message
	seen := make(map[int64]struct{})
	for it.Next(ctx) {
		rec, msg, ok := normalize(it.Value(), channel)
		if !ok {
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}

		if rec.HasImage {
			if err := c.saveImage(ctx, msg, &rec); err != nil {
				res.Err = err
				break
			}
			if rec.MediaStatus == snapshot.MediaSaved {
				res.Images++
			} else {
				res.ImagesFailed++
			}
		}
		records = append(records, rec)

		if c.cfg.CheckpointEvery > 0 && len(records)%c.cfg.CheckpointEvery == 0 {
			if err := snapshot.Write(res.Path, records); err != nil {
				res.Err = fmt.Errorf("checkpoint for %s: %w", channel, err)
				res.Messages = len(records)
				return res
			}
		}
	}
	if res.Err == nil && it.Err() != nil {
		res.Err = fmt.Errorf("failed to read history for %s: %w", channel, it.Err())
	}
	res.Messages = len(records)

	if res.Err != nil {
		if len(records) > 0 {
			if werr := snapshot.Write(res.Path, records); werr != nil {
				res.Err = errors.Join(res.Err, werr)
			} else {
				res.Partial = true
			}
		}
		return res
	}

	if err := snapshot.Write(res.Path, records); err != nil {
		res.Err = err
	}
	return res
}

// saveImage скачивает фото записи. Неудачная загрузка отмечается в записи
// статусом failed; ошибкой возвращается только отмена контекста.
func (c *Collector) saveImage(ctx context.Context, msg *tg.Message, rec *snapshot.Message) error {
	path := snapshot.ImagePath(c.cfg.Root, c.cfg.RunDate, rec.ChannelName, rec.ID)
	rec.MediaStatus = snapshot.MediaPending

	fail := func(err error) {
		rec.MediaStatus = snapshot.MediaFailed
		rec.MediaError = err.Error()
		log.Printf("Не удалось сохранить фото сообщения %d из %s: %v", rec.ID, rec.ChannelName, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fail(fmt.Errorf("failed to create image dir: %w", err))
		return nil
	}
	if err := c.reader.DownloadMedia(ctx, msg, path); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		fail(err)
		return nil
	}

	rec.MediaStatus = snapshot.MediaSaved
	rec.ImagePath = &path
	return nil
}

func logChannelFailure(res ChannelResult) {
	if errors.Is(res.Err, telegram.ErrChannelNotFound) {
		log.Printf("Канал %s не найден: %v", res.Channel, res.Err)
	} else if wait, ok := telegram.FloodWait(res.Err); ok {
		log.Printf("Telegram ограничил запросы при обработке %s (ожидание %s): %v", res.Channel, wait, res.Err)
	} else {
		log.Printf("Ошибка при обработке канала %s: %v", res.Channel, res.Err)
	}
	if res.Partial {
		log.Printf("Частичный снимок: %d сообщений из %s сохранено в %s", res.Messages, res.Channel, res.Path)
	}
}
