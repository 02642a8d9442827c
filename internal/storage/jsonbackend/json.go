package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/FranksOps/pagewatch/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

// safeID keeps ids usable as file names.
var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// maxLine bounds a single NDJSON record; page snapshots can be large.
const maxLine = 64 * 1024 * 1024

type jsonBackend struct {
	mu  sync.Mutex
	dir string
}

// New creates an NDJSON-backed storage.Backend writing one <id>.jsonl file
// per target under dir. Each append is a single write of one line, so
// existing history is never rewritten.
func New(dir string) (storage.Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &jsonBackend{dir: dir}, nil
}

func (b *jsonBackend) path(id string) string {
	return filepath.Join(b.dir, id+".jsonl")
}

func (b *jsonBackend) Append(ctx context.Context, id string, entry *storage.HistoryEntry) error {
	if !safeID.MatchString(id) {
		return fmt.Errorf("invalid history id %q", id)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.OpenFile(b.path(id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write history file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync history file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close history file: %w", err)
	}

	return nil
}

func (b *jsonBackend) Read(ctx context.Context, id string) ([]*storage.HistoryEntry, error) {
	if !safeID.MatchString(id) {
		return []*storage.HistoryEntry{}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return []*storage.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	entries := []*storage.HistoryEntry{}
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e storage.HistoryEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode history line %d: %w", len(entries)+1, err)
		}
		entries = append(entries, &e)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history file: %w", err)
	}

	return entries, nil
}

func (b *jsonBackend) Close() error {
	return nil
}
