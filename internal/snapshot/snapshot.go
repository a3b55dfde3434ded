package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Ext — расширение файлов снимков.
const Ext = ".json"

const imagesDir = "images"

var (
	ErrRootMissing = errors.New("snapshot root not found")
	ErrNotArray    = errors.New("snapshot is not a JSON array")
	ErrMalformed   = errors.New("snapshot is not valid JSON")
	ErrMissingID   = errors.New("record has no integer id")
)

// Path возвращает <root>/<run_date>/<channel>.json.
func Path(root string, runDate time.Time, channel string) string {
	return filepath.Join(root, runDate.Format(DateLayout), channel+Ext)
}

// ImagePath возвращает <root>/images/<run_date>/<channel>_<id>.jpg.
func ImagePath(root string, runDate time.Time, channel string, id int64) string {
	name := channel + "_" + strconv.FormatInt(id, 10) + ".jpg"
	return filepath.Join(root, imagesDir, runDate.Format(DateLayout), name)
}

// ChannelFromPath берёт имя канала из имени файла до первой точки.
func ChannelFromPath(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// Write целиком перезаписывает снимок. Данные пишутся во временный файл
// рядом с целевым и переименовываются, так что читатель не увидит
// недописанный массив.
func Write(path string, messages []Message) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir %s: %w", dir, err)
	}

	if messages == nil {
		messages = []Message{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(messages); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot %s: %w", path, err)
	}
	return nil
}

// Discover рекурсивно находит все снимки под root в лексическом порядке.
// Каталоги дат сортируются хронологически, поэтому более поздний снимок
// идёт после более раннего.
func Discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootMissing, root)
		}
		return nil, fmt.Errorf("failed to stat snapshot root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootMissing, root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), Ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk snapshot root %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// ReadRecords читает снимок как JSON-массив и возвращает записи без
// разбора, байт в байт.
func ReadRecords(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	return DecodeRecords(data)
}

// DecodeRecords разбирает верхний уровень снимка. Записи уходят в jsonb как
// есть, поэтому невалидный UTF-8 и экранированный NUL (\u0000), которые
// json.Valid пропускает, тоже считаются битым файлом.
func DecodeRecords(data []byte) ([]json.RawMessage, error) {
	if !json.Valid(data) {
		var v any
		err := json.Unmarshal(data, &v)
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrMalformed)
	}
	if hasNULEscape(data) {
		return nil, fmt.Errorf("%w: \\u0000 in string", ErrMalformed)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}
	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return records, nil
}

// hasNULEscape ищет \u0000 внутри строк. data уже прошёл json.Valid.
func hasNULEscape(data []byte) bool {
	inString := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			continue
		}
		switch c {
		case '"':
			inString = false
		case '\\':
			if i+5 < len(data) && data[i+1] == 'u' && string(data[i+2:i+6]) == "0000" {
				return true
			}
			i++
		}
	}
	return false
}

// RecordID достаёт из записи только поле id.
func RecordID(raw json.RawMessage) (int64, error) {
	var head struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMissingID, err)
	}
	if head.ID == nil {
		return 0, ErrMissingID
	}
	return *head.ID, nil
}
