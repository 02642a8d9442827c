// Package scraper turns a URL into a text snapshot. It owns the HTTP side of
// monitoring: fingerprinted transports, user-agent and proxy rotation, rate
// limiting, robots.txt and bot-wall detection.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/pagewatch/internal/bypass"
	"github.com/FranksOps/pagewatch/internal/fingerprint"
	"github.com/FranksOps/pagewatch/internal/metrics"
	"github.com/FranksOps/pagewatch/internal/storage"
	"github.com/FranksOps/pagewatch/pkg/httpclient"
	"github.com/FranksOps/pagewatch/pkg/proxy"
	"github.com/FranksOps/pagewatch/pkg/ratelimit"
	"github.com/FranksOps/pagewatch/pkg/useragent"
)

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int64
	UseCookieJar bool
	Fingerprint  fingerprint.Profile
	UAPool       *useragent.Pool
	ProxyPool    *proxy.Pool
	Limiter      *ratelimit.Limiter
	// RespectRobots refuses URLs the host's robots.txt disallows.
	RespectRobots bool
	// Detectors defaults to bypass.DefaultDetectors.
	Detectors []bypass.Detector
	// InsecureSkipVerify is for tests against httptest TLS servers.
	InsecureSkipVerify bool
}

// Fetcher performs single page fetches. It is safe for concurrent use; a
// single instance shares connections and cookies across requests.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	robots *RobotsChecker
	logger *slog.Logger
}

// NewFetcher builds a Fetcher, applying defaults for zero fields.
func NewFetcher(cfg FetchConfig, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = httpclient.DefaultTimeout
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}

	var proxyFunc func(*http.Request) (*url.URL, error)
	if cfg.ProxyPool != nil && cfg.ProxyPool.Len() > 0 {
		proxyFunc = proxy.ProxyFunc
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{
		Proxy:              proxyFunc,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		MaxBodyBytes: cfg.MaxBodyBytes,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	f := &Fetcher{config: cfg, client: client, logger: logger}
	f.robots = NewRobotsChecker(f, logger)
	return f, nil
}

// Fetch downloads rawURL and returns the snapshot of its visible text.
// Every failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*storage.Snapshot, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if err == nil {
			err = errors.New("unsupported URL")
		}
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	domain := u.Hostname()

	snap, err := f.fetch(ctx, rawURL, domain)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			metrics.RecordFetchFailure(domain, fe.Kind())
		}
		f.logger.Warn("fetch failed", "url", rawURL, "err", err)
		return nil, err
	}
	return snap, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL, domain string) (*storage.Snapshot, error) {
	ua := f.config.UAPool.Next()

	if f.config.RespectRobots && !f.robots.Allowed(ctx, rawURL, ua) {
		return nil, &FetchError{URL: rawURL, Disallowed: true}
	}

	start := time.Now()
	res, err := f.Get(ctx, rawURL, ua)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Timeout: isTimeout(err), Err: err}
	}
	metrics.RecordFetch(domain, time.Since(start), len(res.Body))

	if blocked, vendor := bypass.Analyze(&bypass.Response{
		StatusCode: res.StatusCode,
		Headers:    res.Header,
		Body:       res.Body,
	}, f.config.Detectors); blocked {
		return nil, &FetchError{URL: rawURL, StatusCode: res.StatusCode, BlockedBy: vendor}
	}

	if res.StatusCode >= http.StatusBadRequest {
		return nil, &FetchError{URL: rawURL, StatusCode: res.StatusCode}
	}

	text, err := ExtractText(res.Body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	return &storage.Snapshot{Text: text, FetchedAt: time.Now().UTC()}, nil
}

// Get performs one rate-limited GET through the configured proxy rotation.
// It does not interpret the status code.
func (f *Fetcher) Get(ctx context.Context, rawURL, userAgent string) (*httpclient.Response, error) {
	if f.config.Limiter != nil {
		if err := f.config.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		if activeProxy = f.config.ProxyPool.Next(); activeProxy != nil {
			ctx = proxy.WithURL(ctx, activeProxy)
		}
	}

	if userAgent == "" {
		userAgent = f.config.UAPool.Next()
	}
	header := http.Header{}
	header.Set("User-Agent", userAgent)
	header.Set("Accept", acceptHTML)
	header.Set("Accept-Language", "en-US,en;q=0.5")

	res, err := f.client.Get(ctx, rawURL, header)
	if activeProxy != nil {
		f.config.ProxyPool.Report(activeProxy, err == nil)
		if err != nil {
			metrics.ProxyFailures.WithLabelValues(activeProxy.String()).Inc()
		}
	}
	return res, err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
