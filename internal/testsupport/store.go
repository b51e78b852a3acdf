package testsupport

import (
	"context"
	"testing"

	"scribe/internal/config"
	"scribe/internal/kvstore"
)

// MustOpenStore opens the configured kvstore for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) kvstore.Store {
	t.Helper()

	store, err := kvstore.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
