package loader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"rkata-ai/tg-ingest/internal/snapshot"
	"rkata-ai/tg-ingest/internal/storage"

	"github.com/google/uuid"
)

type Config struct {
	Root string
}

// FileError — снимок, пропущенный из-за проблем с данными.
type FileError struct {
	Path string
	Err  error
}

// Report — итог одного прогона загрузчика.
type Report struct {
	RunID          uuid.UUID
	Files          int
	Loaded         int
	SkippedFiles   []FileError
	SkippedRecords int
	// Rows — число строк в таблице после коммита.
	Rows int64
}

type Loader struct {
	cfg   Config
	store storage.Storage
	now   func() time.Time
}

func New(cfg Config, store storage.Storage) *Loader {
	return &Loader{cfg: cfg, store: store, now: time.Now}
}

// Run загружает все снимки под Root в одной транзакции. Ошибки данных
// (битый JSON, не массив, запись без id) пропускаются и попадают в отчёт;
// любая ошибка хранилища откатывает весь прогон.
func (l *Loader) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.New()}

	files, err := snapshot.Discover(l.cfg.Root)
	if err != nil {
		return report, err
	}

	if err := l.store.EnsureSchema(ctx); err != nil {
		return report, fmt.Errorf("failed to ensure schema: %w", err)
	}
	log.Println("Схема и таблица проверены/созданы.")

	report.Files = len(files)
	if len(files) == 0 {
		log.Printf("В %s нет JSON-файлов, загружать нечего.", l.cfg.Root)
		return report, nil
	}
	log.Printf("Прогон %s: найдено %d JSON-файлов для загрузки.", report.RunID, len(files))

	tx, err := l.store.Begin(ctx)
	if err != nil {
		return report, err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("Ошибка отката транзакции: %v", rbErr)
			}
		}
	}()

	loadedAt := l.now()
	for i, path := range files {
		n, skipped, err := l.loadFile(ctx, tx, path, loadedAt)
		if err != nil {
			var fe *fileDataError
			if errors.As(err, &fe) {
				log.Printf("Пропускаем %s: %v", path, fe.err)
				report.SkippedFiles = append(report.SkippedFiles, FileError{Path: path, Err: fe.err})
				continue
			}
			log.Printf("Ошибка записи данных из %s, откатываем прогон: %v", path, err)
			return report, fmt.Errorf("load %s: %w", path, err)
		}
		report.Loaded += n
		report.SkippedRecords += skipped
		log.Printf("Обработан %d/%d: %s (%d сообщений)", i+1, len(files), path, n)
	}

	if err := tx.Commit(); err != nil {
		return report, err
	}
	committed = true

	if rows, err := l.store.CountRawMessages(ctx); err != nil {
		log.Printf("Не удалось посчитать строки после загрузки: %v", err)
	} else {
		report.Rows = rows
	}
	log.Printf("Все данные загружены и закоммичены. Загружено сообщений: %d, пропущено файлов: %d, пропущено записей: %d",
		report.Loaded, len(report.SkippedFiles), report.SkippedRecords)
	return report, nil
}

// fileDataError отделяет проблемы содержимого файла от ошибок хранилища.
type fileDataError struct {
	err error
}

func (e *fileDataError) Error() string { return e.err.Error() }
func (e *fileDataError) Unwrap() error { return e.err }

func (l *Loader) loadFile(ctx context.Context, tx storage.Tx, path string, loadedAt time.Time) (loaded, skipped int, err error) {
	records, err := snapshot.ReadRecords(path)
	if err != nil {
		return 0, 0, &fileDataError{err: err}
	}

	channel := snapshot.ChannelFromPath(path)
	for i, raw := range records {
		id, err := snapshot.RecordID(raw)
		if err != nil {
			log.Printf("Запись %d в %s пропущена: %v", i, path, err)
			skipped++
			continue
		}
		msg := storage.RawMessage{
			ID:          id,
			ChannelName: channel,
			MessageData: raw,
			ScrapedAt:   loadedAt,
		}
		if err := tx.UpsertRawMessage(ctx, msg); err != nil {
			return loaded, skipped, err
		}
		loaded++
	}
	return loaded, skipped, nil
}
