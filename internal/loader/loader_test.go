package loader

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rkata-ai/tg-ingest/internal/config"
	"rkata-ai/tg-ingest/internal/snapshot"
	"rkata-ai/tg-ingest/internal/storage"
)

func openStore(t *testing.T) storage.Storage {
	t.Helper()

	st, err := storage.New(context.Background(), config.DatabaseConfig{
		Kind:   "sqlite",
		DBName: filepath.Join(t.TempDir(), "load.db"),
		Schema: "raw",
		Table:  "raw_telegram_messages",
	})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func rowsByID(t *testing.T, st storage.Storage) map[int64]storage.RawMessage {
	t.Helper()
	rows, err := st.ListRawMessages(context.Background())
	if err != nil {
		t.Fatalf("ListRawMessages: %v", err)
	}
	out := make(map[int64]storage.RawMessage, len(rows))
	for _, r := range rows {
		out[r.ID] = r
	}
	return out
}

func textOf(t *testing.T, payload []byte) string {
	t.Helper()
	var rec struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &rec); err != nil {
		t.Fatalf("payload %s: %v", payload, err)
	}
	return rec.Text
}

func TestRun_IsIdempotent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "2025-07-14/pharma.json", `[{"id":1,"text":"a"},{"id":2,"text":"b"}]`)
	writeFile(t, root, "2025-07-14/news.json", `[{"id":3,"text":"c"}]`)

	st := openStore(t)
	l := New(Config{Root: root}, st)

	first, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Files != 2 || first.Loaded != 3 || first.Rows != 3 {
		t.Fatalf("first report: %+v", first)
	}
	if second.Rows != 3 {
		t.Fatalf("re-running must not duplicate rows, Rows=%d", second.Rows)
	}
	if first.RunID == second.RunID {
		t.Fatalf("each run needs its own id")
	}

	rows := rowsByID(t, st)
	if rows[1].ChannelName != "pharma" || rows[3].ChannelName != "news" {
		t.Fatalf("channel must come from file name: %+v", rows)
	}
}

func TestRun_LaterSnapshotWins(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "2025-07-13/pharma.json", `[{"id":1,"text":"old"},{"id":2,"text":"only-old"}]`)
	writeFile(t, root, "2025-07-14/pharma.json", `[{"id":1,"text":"new"}]`)

	st := openStore(t)
	loadedAt := time.Date(2025, 7, 15, 6, 0, 0, 0, time.UTC)
	l := New(Config{Root: root}, st)
	l.now = fixedClock(loadedAt)

	report, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Loaded != 3 || report.Rows != 2 {
		t.Fatalf("report: %+v", report)
	}

	rows := rowsByID(t, st)
	if got := textOf(t, rows[1].MessageData); got != "new" {
		t.Fatalf("id 1 text=%q want new", got)
	}
	if got := textOf(t, rows[2].MessageData); got != "only-old" {
		t.Fatalf("id 2 text=%q", got)
	}
	if !rows[1].ScrapedAt.Equal(loadedAt) {
		t.Fatalf("scraped_at=%v want %v", rows[1].ScrapedAt, loadedAt)
	}

	// Повторная загрузка обновляет только время.
	reloadAt := loadedAt.Add(24 * time.Hour)
	l.now = fixedClock(reloadAt)
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	rows = rowsByID(t, st)
	if !rows[2].ScrapedAt.Equal(reloadAt) || textOf(t, rows[1].MessageData) != "new" {
		t.Fatalf("reload must converge to the same payload with a fresh time: %+v", rows)
	}
}

func TestRun_SkipsBadFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "2025-07-14/a.json", `[{"id":1}]`)
	writeFile(t, root, "2025-07-14/b.json", `[{"id":2},`)
	writeFile(t, root, "2025-07-14/c.json", `{"id":3}`)
	writeFile(t, root, "2025-07-14/d.json", `[{"id":4}]`)
	writeFile(t, root, "2025-07-14/notes.txt", `not a snapshot`)

	st := openStore(t)
	report, err := New(Config{Root: root}, st).Run(context.Background())
	if err != nil {
		t.Fatalf("bad files must not abort the run: %v", err)
	}
	if report.Files != 4 || report.Loaded != 2 || report.Rows != 2 {
		t.Fatalf("report: %+v", report)
	}
	if len(report.SkippedFiles) != 2 {
		t.Fatalf("SkippedFiles=%+v want 2", report.SkippedFiles)
	}
	if !errors.Is(report.SkippedFiles[0].Err, snapshot.ErrMalformed) {
		t.Fatalf("b.json err=%v want ErrMalformed", report.SkippedFiles[0].Err)
	}
	if !errors.Is(report.SkippedFiles[1].Err, snapshot.ErrNotArray) {
		t.Fatalf("c.json err=%v want ErrNotArray", report.SkippedFiles[1].Err)
	}
	if _, ok := rowsByID(t, st)[3]; ok {
		t.Fatalf("object-shaped file must not be loaded")
	}
}

func TestRun_SkipsFilesThatJSONBWouldReject(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "2025-07-14/good.json", `[{"id":1,"text":"ok"}]`)
	writeFile(t, root, "2025-07-14/latin1.json", "[{\"id\":5,\"text\":\"\xff\xfe\"}]")
	writeFile(t, root, "2025-07-14/nul.json", `[{"id":6,"text":"a\u0000b"}]`)

	st := openStore(t)
	report, err := New(Config{Root: root}, st).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Loaded != 1 || report.Rows != 1 {
		t.Fatalf("report: %+v", report)
	}
	if len(report.SkippedFiles) != 2 {
		t.Fatalf("SkippedFiles=%+v want latin1.json and nul.json", report.SkippedFiles)
	}
	for _, fe := range report.SkippedFiles {
		if !errors.Is(fe.Err, snapshot.ErrMalformed) {
			t.Fatalf("%s err=%v want ErrMalformed", fe.Path, fe.Err)
		}
	}
	rows := rowsByID(t, st)
	if _, ok := rows[5]; ok {
		t.Fatalf("invalid UTF-8 record must not be stored")
	}
	if _, ok := rows[1]; !ok {
		t.Fatalf("good file must still be loaded")
	}
}

func TestRun_SkipsRecordsWithoutID(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "2025-07-14/chan.json", `[{"id":1},{"text":"no id"},{"id":null},{"id":2}]`)

	st := openStore(t)
	report, err := New(Config{Root: root}, st).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Loaded != 2 || report.SkippedRecords != 2 {
		t.Fatalf("report: %+v", report)
	}
}

func TestRun_MissingRootIsSetupError(t *testing.T) {
	t.Parallel()

	st := &failingStore{Storage: openStore(t)}
	_, err := New(Config{Root: filepath.Join(t.TempDir(), "absent")}, st).Run(context.Background())
	if !errors.Is(err, snapshot.ErrRootMissing) {
		t.Fatalf("err=%v want ErrRootMissing", err)
	}
	if st.ensured {
		t.Fatalf("store must not be touched when the root is missing")
	}
}

func TestRun_EmptyRootLoadsNothing(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	report, err := New(Config{Root: t.TempDir()}, st).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Files != 0 || report.Loaded != 0 {
		t.Fatalf("report: %+v", report)
	}
	if _, err := st.CountRawMessages(context.Background()); err != nil {
		t.Fatalf("schema must still be ensured: %v", err)
	}
}

func TestRun_StoreErrorRollsBackEverything(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "2025-07-14/a.json", `[{"id":1},{"id":2}]`)
	writeFile(t, root, "2025-07-14/b.json", `[{"id":3},{"id":4}]`)

	base := openStore(t)
	st := &failingStore{Storage: base, failAfter: 3}

	_, err := New(Config{Root: root}, st).Run(context.Background())
	if !errors.Is(err, errInjected) {
		t.Fatalf("err=%v want injected failure", err)
	}
	n, err := base.CountRawMessages(context.Background())
	if err != nil {
		t.Fatalf("CountRawMessages: %v", err)
	}
	if n != 0 {
		t.Fatalf("failed run must leave no rows, got %d", n)
	}
}

var errInjected = errors.New("injected store failure")

// failingStore пропускает failAfter upsert и ломает следующий.
type failingStore struct {
	storage.Storage
	failAfter int
	ensured   bool
}

func (s *failingStore) EnsureSchema(ctx context.Context) error {
	s.ensured = true
	return s.Storage.EnsureSchema(ctx)
}

func (s *failingStore) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.Storage.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, left: s.failAfter}, nil
}

type failingTx struct {
	storage.Tx
	left int
}

func (tx *failingTx) UpsertRawMessage(ctx context.Context, msg storage.RawMessage) error {
	if tx.left == 0 {
		return errInjected
	}
	tx.left--
	return tx.Tx.UpsertRawMessage(ctx, msg)
}
