package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestRobotsChecker_Allowed(t *testing.T) {
	var fetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`
User-agent: *
Disallow: /admin/
Allow: /admin/public/

User-agent: BadBot
Disallow: /
`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	rc := NewRobotsChecker(newTestFetcher(t, FetchConfig{}), nil)
	ctx := context.Background()

	cases := []struct {
		path, agent string
		want        bool
	}{
		{"/public-page", "GoodBot", true},
		{"/admin/secret", "GoodBot", false},
		{"/admin/public/index.html", "GoodBot", true},
		{"/public-page", "BadBot", false},
	}
	for _, c := range cases {
		if got := rc.Allowed(ctx, ts.URL+c.path, c.agent); got != c.want {
			t.Errorf("Allowed(%s, %s) = %v, want %v", c.path, c.agent, got, c.want)
		}
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("expected robots.txt to be fetched once, got %d", n)
	}
}

func TestRobotsChecker_MissingRobots(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	rc := NewRobotsChecker(newTestFetcher(t, FetchConfig{}), nil)
	if !rc.Allowed(context.Background(), ts.URL+"/anything", "Bot") {
		t.Errorf("expected missing robots.txt to allow everything")
	}
}

func TestRobotsChecker_Sitemaps(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nSitemap: http://example.com/sitemap.xml\nSitemap: http://example.com/sitemap2.xml\n"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	rc := NewRobotsChecker(newTestFetcher(t, FetchConfig{}), nil)
	maps := rc.Sitemaps(context.Background(), ts.URL)
	if len(maps) != 2 || maps[0] != "http://example.com/sitemap.xml" {
		t.Errorf("unexpected sitemaps %v", maps)
	}
}
