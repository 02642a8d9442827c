package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// History is the store the rest of the program talks to. Writes are strict:
// invalid entries and backend failures are returned. Reads fail soft: a
// backend error is logged and treated as "no history yet".
type History struct {
	backend Backend
	logger  *slog.Logger
}

// NewHistory wraps a Backend.
func NewHistory(backend Backend, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}
	return &History{backend: backend, logger: logger}
}

// Append validates and persists an entry for id.
func (h *History) Append(ctx context.Context, id string, entry *HistoryEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.ID != id {
		return fmt.Errorf("%w: entry id %q appended under %q", ErrInvalidEntry, entry.ID, id)
	}
	if err := h.backend.Append(ctx, id, entry); err != nil {
		h.logger.Error("failed to persist history entry", "id", id, "err", err)
		return fmt.Errorf("persist history entry: %w", err)
	}
	return nil
}

// Read returns the stored entries for id, oldest first. It never fails.
func (h *History) Read(ctx context.Context, id string) []*HistoryEntry {
	entries, err := h.backend.Read(ctx, id)
	if err != nil {
		h.logger.Warn("failed to read history, treating as empty", "id", id, "err", err)
		return []*HistoryEntry{}
	}
	if entries == nil {
		return []*HistoryEntry{}
	}
	return entries
}

// Latest returns the most recent entry for id, or nil.
func (h *History) Latest(ctx context.Context, id string) *HistoryEntry {
	entries := h.Read(ctx, id)
	if len(entries) == 0 {
		return nil
	}
	return entries[len(entries)-1]
}

// Close releases the backend.
func (h *History) Close() error {
	return h.backend.Close()
}

// Newest returns a copy of entries in reverse (newest first) order, for presentation.
func Newest(entries []*HistoryEntry) []*HistoryEntry {
	out := make([]*HistoryEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}
