package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FranksOps/pagewatch/internal/config"
	"github.com/FranksOps/pagewatch/internal/explain"
	"github.com/FranksOps/pagewatch/internal/fingerprint"
	"github.com/FranksOps/pagewatch/internal/llm"
	"github.com/FranksOps/pagewatch/internal/pipeline"
	"github.com/FranksOps/pagewatch/internal/scraper"
	"github.com/FranksOps/pagewatch/internal/storage"
	"github.com/FranksOps/pagewatch/internal/storage/csvbackend"
	"github.com/FranksOps/pagewatch/internal/storage/jsonbackend"
	"github.com/FranksOps/pagewatch/internal/storage/memory"
	"github.com/FranksOps/pagewatch/internal/storage/postgres"
	"github.com/FranksOps/pagewatch/internal/storage/sqlite"
	"github.com/FranksOps/pagewatch/internal/target"
	"github.com/FranksOps/pagewatch/pkg/proxy"
	"github.com/FranksOps/pagewatch/pkg/ratelimit"
	"github.com/FranksOps/pagewatch/pkg/useragent"
)

// OpenBackend opens the configured history backend.
func OpenBackend(ctx context.Context, cfg config.StoreConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlite.New(cfg.DSN)
	case "postgres":
		return postgres.New(ctx, cfg.DSN)
	case "json":
		return jsonbackend.New(cfg.DSN)
	case "csv":
		return csvbackend.New(cfg.DSN)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// NewGenerator builds the explanation generator. Without an API key the
// generator has no client and every explanation is a fallback.
func NewGenerator(cfg config.LLMConfig, logger *slog.Logger) (*explain.Generator, error) {
	gcfg := explain.Config{
		APIKey:        cfg.APIKey,
		Model:         cfg.Model,
		Provider:      cfg.Provider,
		MaxInputChars: cfg.MaxInputChars,
		Timeout:       cfg.Timeout,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
	}
	if !strings.EqualFold(cfg.Provider, explain.DefaultProvider) {
		gcfg.CredentialName = strings.ToUpper(cfg.Provider) + "_API_KEY"
	}

	if cfg.APIKey == "" {
		return explain.NewGenerator(gcfg, nil, logger), nil
	}

	client, err := llm.NewOpenAI(llm.Config{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("language model client: %w", err)
	}
	return explain.NewGenerator(gcfg, client, logger), nil
}

// NewFetcher builds the page fetcher from fetch.* settings.
func NewFetcher(cfg config.FetchConfig, logger *slog.Logger) (*scraper.Fetcher, error) {
	profile, err := fingerprint.Parse(cfg.Fingerprint)
	if err != nil {
		return nil, err
	}

	var proxies *proxy.Pool
	if len(cfg.Proxies) > 0 {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.Add(cfg.Proxies...); err != nil {
			return nil, fmt.Errorf("fetch.proxies: %w", err)
		}
	}

	var limiter *ratelimit.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Jitter)
	}

	return scraper.NewFetcher(scraper.FetchConfig{
		Timeout:       cfg.Timeout,
		MaxRedirects:  cfg.MaxRedirects,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		UseCookieJar:  true,
		Fingerprint:   profile,
		UAPool:        useragent.NewPool(cfg.UserAgents),
		ProxyPool:     proxies,
		Limiter:       limiter,
		RespectRobots: cfg.RespectRobots,
	}, logger)
}

// services bundles the long-lived pieces a command works with.
type services struct {
	registry *target.Registry
	history  *storage.History
	fetcher  *scraper.Fetcher
	pipeline *pipeline.Pipeline
}

func (r *services) Close() error {
	if r.history == nil {
		return nil
	}
	return r.history.Close()
}

// open wires everything. withPipeline=false skips the fetcher and language
// model, for commands that only read history.
func (a *App) open(ctx context.Context, withPipeline bool) (*services, error) {
	registry, err := target.LoadRegistry(a.Config.Sites.File)
	if err != nil {
		return nil, err
	}

	backend, err := OpenBackend(ctx, a.Config.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.Config.Store.Backend, err)
	}
	rt := &services{
		registry: registry,
		history:  storage.NewHistory(backend, a.Logger),
	}
	if !withPipeline {
		return rt, nil
	}

	rt.fetcher, err = NewFetcher(a.Config.Fetch, a.Logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	gen, err := NewGenerator(a.Config.LLM, a.Logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.pipeline, err = pipeline.New(pipeline.Config{
		Fetcher:     rt.fetcher,
		Explainer:   gen,
		History:     rt.history,
		Concurrency: a.Config.Crawl.Concurrency,
		Logger:      a.Logger,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}
