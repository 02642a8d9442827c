package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FranksOps/pagewatch/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS history_entries (
	seq BIGSERIAL PRIMARY KEY,
	target_id TEXT NOT NULL,
	crawl_id TEXT,
	url TEXT NOT NULL,
	label TEXT NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL,
	explanation TEXT NOT NULL,
	used_fallback BOOLEAN NOT NULL,
	model TEXT,
	reason TEXT,
	meta JSONB NOT NULL,
	snapshot_text TEXT NOT NULL,
	snapshot_fetched_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_entries_target ON history_entries (target_id, seq);
CREATE UNIQUE INDEX IF NOT EXISTS idx_history_entries_crawl ON history_entries (crawl_id);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Append(ctx context.Context, id string, entry *storage.HistoryEntry) error {
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}

	query := `
	INSERT INTO history_entries (
		target_id, crawl_id, url, label, crawled_at, explanation, used_fallback, model, reason, meta, snapshot_text, snapshot_fetched_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = b.pool.Exec(ctx, query,
		id,
		nullable(entry.CrawlID),
		entry.URL,
		entry.Label,
		entry.CrawledAt,
		entry.Explanation,
		entry.UsedFallback,
		entry.Model,
		entry.Reason,
		metaJSON,
		entry.Snapshot.Text,
		entry.Snapshot.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	return nil
}

func (b *postgresBackend) Read(ctx context.Context, id string) ([]*storage.HistoryEntry, error) {
	query := `SELECT target_id, COALESCE(crawl_id, ''), url, label, crawled_at, explanation, used_fallback, model, reason, meta, snapshot_text, snapshot_fetched_at
	FROM history_entries WHERE target_id = $1 ORDER BY seq ASC`

	rows, err := b.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	results := []*storage.HistoryEntry{}
	for rows.Next() {
		var e storage.HistoryEntry
		var metaJSON []byte

		err := rows.Scan(
			&e.ID, &e.CrawlID, &e.URL, &e.Label, &e.CrawledAt, &e.Explanation, &e.UsedFallback,
			&e.Model, &e.Reason, &metaJSON, &e.Snapshot.Text, &e.Snapshot.FetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		if err := json.Unmarshal(metaJSON, &e.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}

		results = append(results, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

// nullable maps an empty crawl id to NULL so the unique index only covers
// entries that have one.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
