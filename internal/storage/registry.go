package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"rkata-ai/tg-ingest/internal/config"
)

var ErrUnknownKind = errors.New("unsupported database kind")

// Factory открывает хранилище конкретного типа.
type Factory func(ctx context.Context, cfg config.DatabaseConfig) (Storage, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register регистрирует backend под именем kind ("postgres", "pgx", "sqlite").
// Повторная регистрация того же kind — ошибка программиста, поэтому panic.
func Register(kind string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New открывает хранилище по cfg.Kind.
func New(ctx context.Context, cfg config.DatabaseConfig) (Storage, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("%w: empty kind", ErrUnknownKind)
	}

	factoriesMu.RLock()
	f := factories[cfg.Kind]
	factoriesMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("%w: %s (known: %v)", ErrUnknownKind, cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds перечисляет зарегистрированные backend'ы.
func Kinds() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
