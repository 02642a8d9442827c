package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/pagewatch/internal/storage/storagetest"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if PAGEWATCH_TEST_PG_DSN is set
	dsn := os.Getenv("PAGEWATCH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: PAGEWATCH_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	// The table outlives test runs, so use a url nobody has written to yet.
	url := fmt.Sprintf("https://example-pg.com/%d", time.Now().UnixNano())
	now := time.Now().UTC()

	e1 := storagetest.NewEntry(t, url, "", "first version", now.Add(-time.Minute))
	e2 := storagetest.NewEntry(t, url, "first version", "second version of the page", now)

	if err := b.Append(ctx, e1.ID, e1); err != nil {
		t.Fatalf("Failed to append first entry: %v", err)
	}
	if err := b.Append(ctx, e2.ID, e2); err != nil {
		t.Fatalf("Failed to append second entry: %v", err)
	}

	got, err := b.Read(ctx, e1.ID)
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(got))
	}
	storagetest.AssertEntryEqual(t, e1, got[0])
	storagetest.AssertEntryEqual(t, e2, got[1])

	dup := storagetest.NewEntry(t, url, "second version of the page", "third", now.Add(time.Second))
	dup.CrawlID = e2.CrawlID
	if err := b.Append(ctx, dup.ID, dup); err == nil {
		t.Fatalf("Expected duplicate crawl id %q to be rejected", e2.CrawlID)
	}

	empty, err := b.Read(ctx, "unknown-"+url)
	if err != nil {
		t.Fatalf("Failed to read unknown id: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("Expected no entries for unknown id, got %d", len(empty))
	}
}
