package memory

import (
	"context"
	"sync"

	"github.com/FranksOps/pagewatch/internal/storage"
)

// ensure memoryBackend implements storage.Backend
var _ storage.Backend = (*memoryBackend)(nil)

type memoryBackend struct {
	mu      sync.RWMutex
	entries map[string][]*storage.HistoryEntry
}

// New creates a non-durable, in-process storage.Backend.
func New() storage.Backend {
	return &memoryBackend{entries: make(map[string][]*storage.HistoryEntry)}
}

func (b *memoryBackend) Append(ctx context.Context, id string, entry *storage.HistoryEntry) error {
	copied := *entry
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[id] = append(b.entries[id], &copied)
	return nil
}

func (b *memoryBackend) Read(ctx context.Context, id string) ([]*storage.HistoryEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stored := b.entries[id]
	out := make([]*storage.HistoryEntry, len(stored))
	for i, e := range stored {
		copied := *e
		out[i] = &copied
	}
	return out, nil
}

func (b *memoryBackend) Close() error { return nil }
