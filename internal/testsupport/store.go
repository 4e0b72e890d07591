package testsupport

import (
	"testing"

	"crawlq/internal/config"
	"crawlq/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustOpenQueue opens a Queue over a fresh store for cfg.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Queue {
	t.Helper()
	return queue.New(MustOpenStore(t, cfg))
}
