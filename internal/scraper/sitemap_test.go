package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
)

const flatSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
   <url>
      <loc>http://example.com/</loc>
      <lastmod>2023-01-01</lastmod>
   </url>
   <url><loc>http://example.com/page1</loc></url>
</urlset>`

func serveXML(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(body))
	}
}

func TestSitemapReader_Flat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", serveXML(flatSitemap))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	sr := NewSitemapReader(newTestFetcher(t, FetchConfig{}), nil)
	urls, err := sr.URLs(context.Background(), ts.URL+"/sitemap.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(urls) != 2 || urls[0] != "http://example.com/" || urls[1] != "http://example.com/page1" {
		t.Errorf("unexpected urls %v", urls)
	}
}

func TestSitemapReader_Index(t *testing.T) {
	var baseURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap_index.xml", func(w http.ResponseWriter, r *http.Request) {
		serveXML(`<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
   <sitemap><loc>`+baseURL+`/sitemap1.xml</loc></sitemap>
   <sitemap><loc>`+baseURL+`/sitemap2.xml</loc></sitemap>
   <sitemap><loc>`+baseURL+`/sitemap_index.xml</loc></sitemap>
</sitemapindex>`)(w, r)
	})
	mux.HandleFunc("/sitemap1.xml", serveXML(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
   <url><loc>http://example.com/s1-1</loc></url>
</urlset>`))
	mux.HandleFunc("/sitemap2.xml", serveXML(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
   <url><loc>http://example.com/s2-1</loc></url>
   <url><loc>http://example.com/s2-2</loc></url>
</urlset>`))
	ts := httptest.NewServer(mux)
	defer ts.Close()
	baseURL = ts.URL

	sr := NewSitemapReader(newTestFetcher(t, FetchConfig{}), nil)
	urls, err := sr.URLs(context.Background(), ts.URL+"/sitemap_index.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sort.Strings(urls)
	want := []string{"http://example.com/s1-1", "http://example.com/s2-1", "http://example.com/s2-2"}
	if strings.Join(urls, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, urls)
	}
}

func TestSitemapReader_Invalid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", serveXML("this is not xml"))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	sr := NewSitemapReader(newTestFetcher(t, FetchConfig{}), nil)
	_, err := sr.URLs(context.Background(), ts.URL+"/sitemap.xml")
	if err == nil || !strings.Contains(err.Error(), "neither a sitemap nor a sitemap index") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestSitemapReader_DiscoverViaRobots(t *testing.T) {
	var baseURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nSitemap: " + baseURL + "/maps/main.xml\n"))
	})
	mux.HandleFunc("/maps/main.xml", serveXML(flatSitemap))
	ts := httptest.NewServer(mux)
	defer ts.Close()
	baseURL = ts.URL

	sr := NewSitemapReader(newTestFetcher(t, FetchConfig{}), nil)
	urls, err := sr.Discover(context.Background(), ts.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(urls) != 2 {
		t.Errorf("expected 2 urls, got %v", urls)
	}
}

func TestSitemapReader_DiscoverFallsBackToConventionalPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", serveXML(flatSitemap))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	sr := NewSitemapReader(newTestFetcher(t, FetchConfig{}), nil)
	urls, err := sr.Discover(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(urls) != 2 {
		t.Errorf("expected 2 urls, got %v", urls)
	}
}
