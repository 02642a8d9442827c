//go:build integration

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/pagewatch/internal/api"
	"github.com/FranksOps/pagewatch/internal/diff"
	"github.com/FranksOps/pagewatch/internal/explain"
	"github.com/FranksOps/pagewatch/internal/fingerprint"
	"github.com/FranksOps/pagewatch/internal/llm"
	"github.com/FranksOps/pagewatch/internal/pipeline"
	"github.com/FranksOps/pagewatch/internal/scraper"
	"github.com/FranksOps/pagewatch/internal/storage"
	"github.com/FranksOps/pagewatch/internal/storage/sqlite"
	"github.com/FranksOps/pagewatch/internal/target"
	"github.com/FranksOps/pagewatch/pkg/proxy"
	"github.com/FranksOps/pagewatch/pkg/ratelimit"
	"github.com/FranksOps/pagewatch/pkg/useragent"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// page serves mutable HTML.
type page struct {
	mu   sync.Mutex
	html string
}

func (p *page) set(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

func (p *page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, p.html)
}

// modelServer mimics the chat completions endpoint and counts calls.
func modelServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-it",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "- Basic plan price rose from $10 to $12"},
			}},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newFetcher(t *testing.T, cfg scraper.FetchConfig) *scraper.Fetcher {
	t.Helper()
	cfg.Timeout = 5 * time.Second
	cfg.Fingerprint = fingerprint.ProfileGo
	f, err := scraper.NewFetcher(cfg, logger)
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return f
}

func postCrawl(t *testing.T, base, id string) (*http.Response, []byte) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"id": id})
	res, err := http.Post(base+"/api/crawl", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("crawl request failed: %v", err)
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	return res, raw
}

func TestIntegration_MonitorLifecycle(t *testing.T) {
	site := &page{html: `<html><body><h1>Plans</h1><script>var x=1</script><p>Basic costs $10</p></body></html>`}
	siteSrv := httptest.NewServer(site)
	defer siteSrv.Close()

	var modelCalls atomic.Int32
	modelSrv := modelServer(t, &modelCalls)

	dbPath := filepath.Join(t.TempDir(), "history.db")
	backend, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	history := storage.NewHistory(backend, logger)

	client, err := llm.NewOpenAI(llm.Config{APIKey: "sk-it", Model: "gpt-4o-mini", BaseURL: modelSrv.URL + "/v1/"}, logger)
	if err != nil {
		t.Fatalf("llm client: %v", err)
	}
	gen := explain.NewGenerator(explain.Config{APIKey: "sk-it", Model: "gpt-4o-mini"}, client, logger)

	p, err := pipeline.New(pipeline.Config{
		Fetcher: newFetcher(t, scraper.FetchConfig{
			UAPool:  useragent.NewPool([]string{"IntegrationTest-UA"}),
			Limiter: ratelimit.NewLimiter(50, 0),
		}),
		Explainer: gen,
		History:   history,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	tg, err := target.New(siteSrv.URL, "Plans")
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(api.New(api.Config{
		Registry: target.NewRegistry(tg),
		History:  history,
		Crawler:  p,
		Logger:   logger,
	}).Handler())
	defer srv.Close()

	// First crawl: nothing to compare against, no model call.
	res, raw := postCrawl(t, srv.URL, tg.ID)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.StatusCode, raw)
	}
	var first storage.HistoryEntry
	if err := json.Unmarshal(raw, &first); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if first.Explanation != diff.SummaryInitial || first.Snapshot.Text != "Plans Basic costs $10" {
		t.Errorf("unexpected first entry: %q / %q", first.Explanation, first.Snapshot.Text)
	}

	// Unchanged page: fallback, still no model call.
	res, raw = postCrawl(t, srv.URL, tg.ID)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.StatusCode, raw)
	}

	site.set(`<html><body><h1>Plans</h1><p>Basic costs $12</p></body></html>`)
	res, raw = postCrawl(t, srv.URL, tg.ID)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.StatusCode, raw)
	}
	var third storage.HistoryEntry
	if err := json.Unmarshal(raw, &third); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if third.UsedFallback || third.Model == nil || *third.Model != "gpt-4o-mini" {
		t.Errorf("expected a model explanation, got %+v", third)
	}
	if got := modelCalls.Load(); got != 1 {
		t.Errorf("expected exactly one model call, got %d", got)
	}

	hres, err := http.Get(srv.URL + "/api/history/" + tg.ID)
	if err != nil {
		t.Fatalf("history request failed: %v", err)
	}
	defer hres.Body.Close()
	var entries []storage.HistoryEntry
	if err := json.NewDecoder(hres.Body).Decode(&entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].CrawlID != third.CrawlID {
		t.Errorf("expected newest entry first")
	}
	if entries[1].Reason == nil || *entries[1].Reason != explain.ReasonNoChanges {
		t.Errorf("expected the unchanged crawl to record %q", explain.ReasonNoChanges)
	}

	// History survives reopening the database.
	if err := history.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer reopened.Close()
	if got := storage.NewHistory(reopened, logger).Read(context.Background(), tg.ID); len(got) != 3 {
		t.Errorf("expected 3 persisted entries, got %d", len(got))
	}
}

func TestIntegration_BlockedPageNotRecorded(t *testing.T) {
	wall := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<html><body>cf-browser-verification</body></html>`)
	}))
	defer wall.Close()

	backend, err := sqlite.New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	history := storage.NewHistory(backend, logger)
	defer history.Close()

	p, err := pipeline.New(pipeline.Config{
		Fetcher:   newFetcher(t, scraper.FetchConfig{}),
		Explainer: explain.NewGenerator(explain.Config{}, nil, logger),
		History:   history,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	tg, _ := target.New(wall.URL, "")
	srv := httptest.NewServer(api.New(api.Config{
		Registry: target.NewRegistry(tg),
		History:  history,
		Crawler:  p,
		Logger:   logger,
	}).Handler())
	defer srv.Close()

	res, raw := postCrawl(t, srv.URL, tg.ID)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", res.StatusCode, raw)
	}
	if !bytes.Contains(raw, []byte("Cloudflare")) {
		t.Errorf("expected the vendor in the error, got %s", raw)
	}
	if got := history.Read(context.Background(), tg.ID); len(got) != 0 {
		t.Errorf("a challenge page must not be recorded, got %d entries", len(got))
	}
}

func TestIntegration_ProxyRotation(t *testing.T) {
	var proxyHits atomic.Int32
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body>proxied %s</body></html>", r.URL.Host)
	}))
	defer proxySrv.Close()

	pool := proxy.NewPool(proxy.Config{})
	if err := pool.Add(proxySrv.URL); err != nil {
		t.Fatalf("add proxy: %v", err)
	}

	history := storage.NewHistory(mustSQLite(t), logger)
	defer history.Close()

	p, err := pipeline.New(pipeline.Config{
		Fetcher:   newFetcher(t, scraper.FetchConfig{ProxyPool: pool}),
		Explainer: explain.NewGenerator(explain.Config{}, nil, logger),
		History:   history,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	targets := make([]target.Target, 0, 3)
	for _, u := range []string{"http://a.example.test/", "http://b.example.test/", "http://c.example.test/"} {
		tg, _ := target.New(u, "")
		targets = append(targets, tg)
	}

	for _, o := range p.RunAll(context.Background(), targets) {
		if o.Err != nil {
			t.Errorf("crawl of %s failed: %v", o.Target.URL, o.Err)
			continue
		}
		want := "proxied " + o.Target.URL[len("http://"):len(o.Target.URL)-1]
		if o.Entry.Snapshot.Text != want {
			t.Errorf("expected %q, got %q", want, o.Entry.Snapshot.Text)
		}
	}
	if got := proxyHits.Load(); got != 3 {
		t.Errorf("expected 3 proxied requests, got %d", got)
	}
	for _, s := range pool.Stats() {
		if s.Successes != 3 || s.Failures != 0 {
			t.Errorf("unexpected proxy stats %+v", s)
		}
	}
}

func mustSQLite(t *testing.T) storage.Backend {
	t.Helper()
	b, err := sqlite.New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return b
}
