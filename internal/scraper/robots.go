package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsChecker fetches and caches robots.txt per origin.
type RobotsChecker struct {
	fetcher *Fetcher
	logger  *slog.Logger
	mu      sync.Mutex
	cache   map[string]*robotstxt.RobotsData
}

// NewRobotsChecker creates a checker that fetches through f.
func NewRobotsChecker(f *Fetcher, logger *slog.Logger) *RobotsChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsChecker{
		fetcher: f,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether userAgent may fetch rawURL. An unreachable or
// missing robots.txt allows everything.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL, userAgent string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	data := r.load(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, userAgent)
}

// Sitemaps lists the Sitemap lines of the origin's robots.txt.
func (r *RobotsChecker) Sitemaps(ctx context.Context, origin string) []string {
	data := r.load(ctx, origin)
	if data == nil {
		return nil
	}
	return data.Sitemaps
}

func (r *RobotsChecker) load(ctx context.Context, origin string) *robotstxt.RobotsData {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.cache[origin]; ok {
		return data
	}

	data, err := r.fetch(ctx, origin)
	if err != nil {
		r.logger.Debug("robots.txt unavailable, allowing all", "origin", origin, "err", err)
	}
	r.cache[origin] = data
	return data
}

func (r *RobotsChecker) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	res, err := r.fetcher.Get(ctx, origin+"/robots.txt", "")
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return nil, nil
	}
	data, err := robotstxt.FromStatusAndBytes(res.StatusCode, res.Body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}
