package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"scribe/internal/kvstore"
	"scribe/internal/logging"
)

// NamesKey is the store key holding the id to file name mapping.
const NamesKey = "taskNames"

// NameBook persists display names for task ids. The backend does not store
// file names, so without it a reloaded list shows bare ids.
//
// Storage failures never surface: a broken mapping reads as empty and a
// failed write is logged.
type NameBook struct {
	store  kvstore.Store
	logger *slog.Logger
	mu     sync.Mutex
}

// NewNameBook wraps store.
func NewNameBook(store kvstore.Store, logger *slog.Logger) *NameBook {
	return &NameBook{store: store, logger: logging.NewComponentLogger(logger, "names")}
}

// All returns a copy of every remembered binding.
func (b *NameBook) All(ctx context.Context) map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(ctx)
}

// Lookup returns the name remembered for id.
func (b *NameBook) Lookup(ctx context.Context, id string) (string, bool) {
	name, ok := b.All(ctx)[id]
	return name, ok
}

// Remember binds id to name.
func (b *NameBook) Remember(ctx context.Context, id, name string) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	names := b.load(ctx)
	names[id] = name
	b.save(ctx, names)
}

// Forget drops the binding for id.
func (b *NameBook) Forget(ctx context.Context, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := b.load(ctx)
	if _, ok := names[id]; !ok {
		return
	}
	delete(names, id)
	b.save(ctx, names)
}

// Clear removes every binding.
func (b *NameBook) Clear(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.store.Remove(ctx, NamesKey); err != nil {
		b.logger.Warn("failed to clear task names",
			logging.Error(err),
			logging.String(logging.FieldEventType, "names_clear_failed"),
		)
	}
}

func (b *NameBook) load(ctx context.Context) map[string]string {
	names := make(map[string]string)
	raw, ok, err := b.store.Get(ctx, NamesKey)
	if err != nil {
		b.logger.Warn("failed to read task names",
			logging.Error(err),
			logging.String(logging.FieldEventType, "names_read_failed"),
		)
		return names
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return names
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		b.logger.Warn("ignoring corrupt task names",
			logging.Error(err),
			logging.String(logging.FieldEventType, "names_corrupt"),
		)
		return names
	}
	// A stored JSON null decodes to a nil map.
	for id, name := range decoded {
		names[id] = name
	}
	return names
}

func (b *NameBook) save(ctx context.Context, names map[string]string) {
	data, err := json.Marshal(names)
	if err != nil {
		b.logger.Warn("failed to encode task names", logging.Error(err))
		return
	}
	if err := b.store.Set(ctx, NamesKey, string(data)); err != nil {
		b.logger.Warn("failed to persist task names",
			logging.Error(err),
			logging.String(logging.FieldEventType, "names_write_failed"),
		)
	}
}
