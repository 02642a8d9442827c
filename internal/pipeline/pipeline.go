// Package pipeline turns a page snapshot into a recorded history entry:
// read the previous snapshot, explain the difference, append the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/pagewatch/internal/explain"
	"github.com/FranksOps/pagewatch/internal/metrics"
	"github.com/FranksOps/pagewatch/internal/storage"
	"github.com/FranksOps/pagewatch/internal/target"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrStore marks a crawl that computed a result but could not persist it.
// The crawl counts as failed.
var ErrStore = errors.New("history store write failed")

// PageFetcher produces the current snapshot of a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*storage.Snapshot, error)
}

// Explainer describes the change between two snapshot texts. It never fails.
type Explainer interface {
	Explain(ctx context.Context, oldText, newText string) explain.Result
}

// Config wires a Pipeline.
type Config struct {
	// Fetcher is only needed by Run and RunAll.
	Fetcher   PageFetcher
	Explainer Explainer
	History   *storage.History
	// Concurrency bounds RunAll. Default 3.
	Concurrency int
	Logger      *slog.Logger
}

// Pipeline records crawls. Crawls of the same target are serialized; crawls
// of different targets run independently.
type Pipeline struct {
	fetcher     PageFetcher
	explainer   Explainer
	history     *storage.History
	concurrency int
	logger      *slog.Logger
	locks       *keyLocks
	now         func() time.Time
}

// New validates cfg and builds a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Explainer == nil {
		return nil, errors.New("pipeline: explainer is required")
	}
	if cfg.History == nil {
		return nil, errors.New("pipeline: history is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		fetcher:     cfg.Fetcher,
		explainer:   cfg.Explainer,
		history:     cfg.History,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		locks:       newKeyLocks(),
		now:         time.Now,
	}, nil
}

// Crawl records snap as the newest state of t and returns the stored entry.
// Errors wrap ErrStore when the append failed.
func (p *Pipeline) Crawl(ctx context.Context, t target.Target, snap *storage.Snapshot) (*storage.HistoryEntry, error) {
	if snap == nil {
		return nil, errors.New("crawl: nil snapshot")
	}
	if t.ID == "" {
		normalized, err := target.New(t.URL, t.Label)
		if err != nil {
			return nil, fmt.Errorf("crawl: %w", err)
		}
		t = normalized
	}

	unlock := p.locks.lock(t.ID)
	defer unlock()

	var previousText string
	if prev := p.history.Latest(ctx, t.ID); prev != nil {
		previousText = prev.Snapshot.Text
	}

	res := p.explainer.Explain(ctx, previousText, snap.Text)

	crawledAt := snap.FetchedAt
	if crawledAt.IsZero() {
		crawledAt = p.now()
	}

	entry := &storage.HistoryEntry{
		ID:           t.ID,
		CrawlID:      uuid.NewString(),
		URL:          t.URL,
		Label:        t.Label,
		CrawledAt:    crawledAt.UTC(),
		Explanation:  res.Explanation,
		UsedFallback: res.UsedFallback,
		Model:        res.Model,
		Reason:       res.Reason,
		Meta:         res.Meta,
		Snapshot:     *snap,
	}

	if err := p.history.Append(ctx, t.ID, entry); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	metrics.RecordCrawl(entry)
	p.logger.Info("crawl recorded", "id", t.ID, "url", t.URL, "usedFallback", entry.UsedFallback, "lengthDiff", entry.Meta.LengthDiff)
	return entry, nil
}

// Run fetches t and records the result. A fetch failure returns the
// fetcher's error and records nothing.
func (p *Pipeline) Run(ctx context.Context, t target.Target) (*storage.HistoryEntry, error) {
	if p.fetcher == nil {
		return nil, errors.New("pipeline: no page fetcher configured")
	}
	snap, err := p.fetcher.Fetch(ctx, t.URL)
	if err != nil {
		return nil, err
	}
	return p.Crawl(ctx, t, snap)
}

// Outcome is the result of one target in a batch.
type Outcome struct {
	Target target.Target
	Entry  *storage.HistoryEntry
	Err    error
}

// RunAll crawls every target, at most Concurrency at a time. A failing
// target does not stop the others. Outcomes are in input order.
func (p *Pipeline) RunAll(ctx context.Context, targets []target.Target) []Outcome {
	outcomes := make([]Outcome, len(targets))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, t := range targets {
		outcomes[i].Target = t
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				outcomes[i].Err = err
				return nil
			}
			entry, err := p.Run(gCtx, t)
			outcomes[i].Entry = entry
			outcomes[i].Err = err
			if err != nil {
				p.logger.Error("crawl failed", "id", t.ID, "url", t.URL, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
