package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/pagewatch/internal/diff"
	"github.com/FranksOps/pagewatch/internal/target"
)

// ErrInvalidEntry is returned when an entry fails validation at the store boundary.
var ErrInvalidEntry = errors.New("invalid history entry")

// Snapshot is the extracted plain text of a page at one point in time.
type Snapshot struct {
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// HistoryEntry is one crawl result. Entries are immutable once appended.
type HistoryEntry struct {
	ID           string    `json:"id"`
	CrawlID      string    `json:"crawlId,omitempty"`
	URL          string    `json:"url"`
	Label        string    `json:"label"`
	CrawledAt    time.Time `json:"crawledAt"`
	Explanation  string    `json:"explanation"`
	UsedFallback bool      `json:"usedFallback"`
	Model        *string   `json:"model"`
	Reason       *string   `json:"reason"`
	Meta         diff.Meta `json:"meta"`
	Snapshot     Snapshot  `json:"snapshot"`
}

// Validate checks the invariants every stored entry must hold.
func (e *HistoryEntry) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}
	if e.URL == "" {
		return fmt.Errorf("%w: empty url", ErrInvalidEntry)
	}
	id, err := target.ID(e.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if e.ID != id {
		return fmt.Errorf("%w: id %q does not match url %q", ErrInvalidEntry, e.ID, e.URL)
	}
	if e.Meta.LengthDiff != e.Meta.NewLength-e.Meta.OldLength {
		return fmt.Errorf("%w: lengthDiff %d != newLength %d - oldLength %d",
			ErrInvalidEntry, e.Meta.LengthDiff, e.Meta.NewLength, e.Meta.OldLength)
	}
	if e.CrawledAt.IsZero() {
		return fmt.Errorf("%w: missing crawledAt", ErrInvalidEntry)
	}
	return nil
}

// Backend persists per-target history. Append adds to the end of the id's
// sequence; Read returns the sequence in insertion order and an empty slice
// for an unknown id.
type Backend interface {
	Append(ctx context.Context, id string, entry *HistoryEntry) error
	Read(ctx context.Context, id string) ([]*HistoryEntry, error)
	Close() error
}
