package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FranksOps/pagewatch/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS history_entries (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id TEXT NOT NULL,
	crawl_id TEXT,
	url TEXT NOT NULL,
	label TEXT NOT NULL,
	crawled_at TEXT NOT NULL,
	explanation TEXT NOT NULL,
	used_fallback BOOLEAN NOT NULL,
	model TEXT,
	reason TEXT,
	meta TEXT NOT NULL,
	snapshot_text TEXT NOT NULL,
	snapshot_fetched_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_entries_target ON history_entries (target_id, seq);
CREATE UNIQUE INDEX IF NOT EXISTS idx_history_entries_crawl ON history_entries (crawl_id);
`

// New creates a new SQLite-backed storage.Backend. Appends are single INSERTs,
// so no read-modify-write happens inside the database.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY under concurrent crawls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Append(ctx context.Context, id string, entry *storage.HistoryEntry) error {
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}

	query := `
	INSERT INTO history_entries (
		target_id, crawl_id, url, label, crawled_at, explanation, used_fallback, model, reason, meta, snapshot_text, snapshot_fetched_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = b.db.ExecContext(ctx, query,
		id,
		sql.NullString{String: entry.CrawlID, Valid: entry.CrawlID != ""},
		entry.URL,
		entry.Label,
		entry.CrawledAt.UTC().Format(time.RFC3339Nano),
		entry.Explanation,
		entry.UsedFallback,
		entry.Model,
		entry.Reason,
		string(metaJSON),
		entry.Snapshot.Text,
		entry.Snapshot.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Read(ctx context.Context, id string) ([]*storage.HistoryEntry, error) {
	query := `SELECT target_id, crawl_id, url, label, crawled_at, explanation, used_fallback, model, reason, meta, snapshot_text, snapshot_fetched_at
	FROM history_entries WHERE target_id = ? ORDER BY seq ASC`

	rows, err := b.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	results := []*storage.HistoryEntry{}
	for rows.Next() {
		var e storage.HistoryEntry
		var crawlID, model, reason sql.NullString
		var crawledAt, fetchedAt, metaJSON string

		err := rows.Scan(
			&e.ID, &crawlID, &e.URL, &e.Label, &crawledAt, &e.Explanation, &e.UsedFallback,
			&model, &reason, &metaJSON, &e.Snapshot.Text, &fetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		e.CrawlID = crawlID.String
		if model.Valid {
			e.Model = &model.String
		}
		if reason.Valid {
			e.Reason = &reason.String
		}
		if e.CrawledAt, err = time.Parse(time.RFC3339Nano, crawledAt); err != nil {
			return nil, fmt.Errorf("parse crawled_at: %w", err)
		}
		if e.Snapshot.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt); err != nil {
			return nil, fmt.Errorf("parse snapshot_fetched_at: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &e.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}

		results = append(results, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
