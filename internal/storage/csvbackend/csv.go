package csvbackend

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/FranksOps/pagewatch/internal/diff"
	"github.com/FranksOps/pagewatch/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"target_id",
	"crawl_id",
	"url",
	"label",
	"crawled_at",
	"explanation",
	"used_fallback",
	"model",
	"reason",
	"meta_json",
	"snapshot_text",
	"snapshot_fetched_at",
}

// New creates a CSV-backed storage.Backend holding every target's history in
// one file. An empty model or reason column reads back as nil. Free-text
// columns escape carriage returns, which encoding/csv would otherwise drop
// from quoted fields.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	return &csvBackend{file: f}, nil
}

func (b *csvBackend) Append(ctx context.Context, id string, entry *storage.HistoryEntry) error {
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}

	record := []string{
		id,
		entry.CrawlID,
		entry.URL,
		escapeText.Replace(entry.Label),
		entry.CrawledAt.UTC().Format(time.RFC3339Nano),
		escapeText.Replace(entry.Explanation),
		strconv.FormatBool(entry.UsedFallback),
		escapeText.Replace(deref(entry.Model)),
		escapeText.Replace(deref(entry.Reason)),
		string(metaJSON),
		escapeText.Replace(entry.Snapshot.Text),
		entry.Snapshot.FetchedAt.UTC().Format(time.RFC3339Nano),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek csv: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv record: %w", err)
	}

	return nil
}

func (b *csvBackend) Read(ctx context.Context, id string) ([]*storage.HistoryEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek csv: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*storage.HistoryEntry{}, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	entries := []*storage.HistoryEntry{}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}

		if len(record) != len(headers) {
			continue // skip malformed rows
		}
		if record[0] != id {
			continue
		}

		var meta diff.Meta
		if err := json.Unmarshal([]byte(record[9]), &meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
		usedFallback, _ := strconv.ParseBool(record[6])
		crawledAt, err := time.Parse(time.RFC3339Nano, record[4])
		if err != nil {
			return nil, fmt.Errorf("parse crawled_at: %w", err)
		}
		fetchedAt, err := time.Parse(time.RFC3339Nano, record[11])
		if err != nil {
			return nil, fmt.Errorf("parse snapshot_fetched_at: %w", err)
		}

		entries = append(entries, &storage.HistoryEntry{
			ID:           record[0],
			CrawlID:      record[1],
			URL:          record[2],
			Label:        unescapeText.Replace(record[3]),
			CrawledAt:    crawledAt,
			Explanation:  unescapeText.Replace(record[5]),
			UsedFallback: usedFallback,
			Model:        optional(unescapeText.Replace(record[7])),
			Reason:       optional(unescapeText.Replace(record[8])),
			Meta:         meta,
			Snapshot:     storage.Snapshot{Text: unescapeText.Replace(record[10]), FetchedAt: fetchedAt},
		})
	}

	return entries, nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

var (
	escapeText   = strings.NewReplacer(`\`, `\\`, "\r", `\r`)
	unescapeText = strings.NewReplacer(`\\`, `\`, `\r`, "\r")
)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
