// Package storagetest holds the conformance checks every storage.Backend must pass.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/pagewatch/internal/diff"
	"github.com/FranksOps/pagewatch/internal/storage"
	"github.com/FranksOps/pagewatch/internal/target"
)

// NewEntry builds a valid entry for url whose snapshot holds text.
func NewEntry(t testing.TB, url, prevText, text string, at time.Time) *storage.HistoryEntry {
	t.Helper()
	tg, err := target.New(url, "")
	require.NoError(t, err)

	d := diff.Texts(prevText, text)
	reason := "OPENAI_API_KEY not set"
	return &storage.HistoryEntry{
		ID:           tg.ID,
		CrawlID:      fmt.Sprintf("crawl-%d", at.UnixNano()),
		URL:          tg.URL,
		Label:        tg.Label,
		CrawledAt:    at,
		Explanation:  d.Summary,
		UsedFallback: true,
		Reason:       &reason,
		Meta:         d.Meta,
		Snapshot:     storage.Snapshot{Text: text, FetchedAt: at},
	}
}

// RunBackendSuite exercises append/read ordering and isolation on b.
// The backend must start empty.
func RunBackendSuite(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("unknown id reads empty", func(t *testing.T) {
		got, err := b.Read(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	e1 := NewEntry(t, "https://example.com/suite", "", "Hello world", now.Add(-time.Minute))
	e2 := NewEntry(t, "https://example.com/suite", "Hello world", "Hello brave new world", now)
	model := "gpt-4o-mini"
	e2.Model = &model
	e2.Reason = nil
	e2.UsedFallback = false
	e2.Explanation = "- Added \"brave new\""

	other := NewEntry(t, "https://example.com/other", "", "Other page", now)

	t.Run("append preserves order", func(t *testing.T) {
		require.NoError(t, b.Append(ctx, e1.ID, e1))
		require.NoError(t, b.Append(ctx, other.ID, other))
		require.NoError(t, b.Append(ctx, e2.ID, e2))

		got, err := b.Read(ctx, e1.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		AssertEntryEqual(t, e1, got[0])
		AssertEntryEqual(t, e2, got[1])
	})

	t.Run("ids are isolated", func(t *testing.T) {
		got, err := b.Read(ctx, other.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		AssertEntryEqual(t, other, got[0])
	})
}

// AssertEntryEqual compares two entries, tolerating time zone and
// sub-millisecond differences introduced by storage encodings.
func AssertEntryEqual(t testing.TB, want, got *storage.HistoryEntry) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.CrawlID, got.CrawlID)
	assert.Equal(t, want.URL, got.URL)
	assert.Equal(t, want.Label, got.Label)
	assert.Equal(t, want.Explanation, got.Explanation)
	assert.Equal(t, want.UsedFallback, got.UsedFallback)
	assert.Equal(t, want.Model, got.Model)
	assert.Equal(t, want.Reason, got.Reason)
	assert.Equal(t, want.Meta, got.Meta)
	assert.Equal(t, want.Snapshot.Text, got.Snapshot.Text)
	assert.Equal(t, want.CrawledAt.UnixMilli(), got.CrawledAt.UnixMilli())
	assert.Equal(t, want.Snapshot.FetchedAt.UnixMilli(), got.Snapshot.FetchedAt.UnixMilli())
}
