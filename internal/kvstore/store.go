package kvstore

import (
	"context"
	"errors"
	"fmt"

	"scribe/internal/config"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kvstore closed")

// Store is a string key-value store. Get reports ok=false for missing keys;
// Remove of a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Open builds the backend selected by storage.backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(ctx, cfg.StateDBPath())
	case config.BackendRedis:
		return OpenRedis(ctx, cfg.Storage.RedisURL)
	case config.BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLite)(nil)
	_ Store = (*Redis)(nil)
)
