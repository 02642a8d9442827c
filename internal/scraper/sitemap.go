package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	sitemap "github.com/oxffaa/gopher-parse-sitemap"
)

const maxSitemapDepth = 3

// SitemapReader discovers page URLs from sitemaps and sitemap indexes.
type SitemapReader struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewSitemapReader creates a reader that fetches through f.
func NewSitemapReader(f *Fetcher, logger *slog.Logger) *SitemapReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapReader{fetcher: f, logger: logger}
}

// Discover finds the sitemaps of a site, from robots.txt or the
// conventional /sitemap.xml, and returns every page URL they list.
func (s *SitemapReader) Discover(ctx context.Context, site string) ([]string, error) {
	origin := strings.TrimRight(site, "/")
	if !strings.Contains(origin, "://") {
		origin = "https://" + origin
	}

	maps := s.fetcher.robots.Sitemaps(ctx, origin)
	if len(maps) == 0 {
		maps = []string{origin + "/sitemap.xml"}
	}

	var (
		urls []string
		errs []error
	)
	seen := make(map[string]bool)
	for _, m := range maps {
		found, err := s.read(ctx, m, 0, seen)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		urls = append(urls, found...)
	}
	if len(urls) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return urls, nil
}

// URLs returns the page URLs of one sitemap, following index entries.
func (s *SitemapReader) URLs(ctx context.Context, sitemapURL string) ([]string, error) {
	return s.read(ctx, sitemapURL, 0, make(map[string]bool))
}

func (s *SitemapReader) read(ctx context.Context, sitemapURL string, depth int, seen map[string]bool) ([]string, error) {
	if seen[sitemapURL] {
		return nil, nil
	}
	seen[sitemapURL] = true
	s.logger.Debug("fetching sitemap", "url", sitemapURL, "depth", depth)

	res, err := s.fetcher.Get(ctx, sitemapURL, "")
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", sitemapURL, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch sitemap %s: HTTP %d", sitemapURL, res.StatusCode)
	}

	var urls []string
	err = sitemap.Parse(bytes.NewReader(res.Body), func(e sitemap.Entry) error {
		urls = append(urls, strings.TrimSpace(e.GetLocation()))
		return nil
	})
	if err == nil && len(urls) > 0 {
		return urls, nil
	}

	var nested []string
	indexErr := sitemap.ParseIndex(bytes.NewReader(res.Body), func(e sitemap.IndexEntry) error {
		nested = append(nested, strings.TrimSpace(e.GetLocation()))
		return nil
	})
	if indexErr != nil || len(nested) == 0 {
		return nil, fmt.Errorf("%s is neither a sitemap nor a sitemap index", sitemapURL)
	}
	if depth >= maxSitemapDepth {
		return nil, fmt.Errorf("sitemap index nesting deeper than %d at %s", maxSitemapDepth, sitemapURL)
	}

	for _, n := range nested {
		found, err := s.read(ctx, n, depth+1, seen)
		if err != nil {
			s.logger.Warn("skipping nested sitemap", "url", n, "err", err)
			continue
		}
		urls = append(urls, found...)
	}
	return urls, nil
}
