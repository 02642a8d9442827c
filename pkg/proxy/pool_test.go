package proxy

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPool_AddAndRotate(t *testing.T) {
	pool := NewPool(Config{})
	if err := pool.Add("127.0.0.1:8080", "http://127.0.0.1:8081", "socks5://127.0.0.1:9050"); err != nil {
		t.Fatalf("unexpected error adding proxies: %v", err)
	}

	want := []string{"http://127.0.0.1:8080", "http://127.0.0.1:8081", "socks5://127.0.0.1:9050", "http://127.0.0.1:8080"}
	for _, w := range want {
		if got := pool.Next(); got == nil || got.String() != w {
			t.Errorf("expected %s, got %v", w, got)
		}
	}
}

func TestPool_BenchAndRecover(t *testing.T) {
	now := time.Now()
	pool := NewPool(Config{MaxFailures: 2, Cooldown: time.Minute})
	pool.now = func() time.Time { return now }
	_ = pool.Add("http://a", "http://b")

	a := pool.Next()
	pool.Report(a, false)
	pool.Report(a, false)

	for i := 0; i < 2; i++ {
		if got := pool.Next(); got.String() != "http://b" {
			t.Fatalf("expected http://b while a is benched, got %v", got)
		}
	}

	now = now.Add(2 * time.Minute)
	if got := pool.Next(); got.String() != "http://a" {
		t.Fatalf("expected http://a after cooldown, got %v", got)
	}
}

func TestPool_SuccessResetsFailures(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 2})
	_ = pool.Add("http://a")
	a := pool.Next()

	pool.Report(a, false)
	pool.Report(a, true)
	pool.Report(a, false)

	if u := pool.Next(); u == nil {
		t.Fatal("expected proxy to stay usable after a success in between")
	}
	st := pool.Stats()[0]
	if st.Successes != 1 || st.Failures != 1 || st.Benched {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestPool_AllBenched(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 1, Cooldown: time.Hour})
	_ = pool.Add("http://a")
	pool.Report(pool.Next(), false)

	if u := pool.Next(); u != nil {
		t.Errorf("expected nil when all proxies benched, got %v", u)
	}
}

func TestPool_LoadFileViaAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "\n# comment\nhttp://proxy1.com\nproxy2.com:80\n\nsocks5://proxy3.com:1080\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	pool := NewPool(Config{})
	if err := pool.Add("@" + path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if pool.Len() != 3 {
		t.Fatalf("expected 3 proxies, got %d", pool.Len())
	}
	for _, w := range []string{"http://proxy1.com", "http://proxy2.com:80", "socks5://proxy3.com:1080"} {
		if got := pool.Next().String(); got != w {
			t.Errorf("expected %s, got %s", w, got)
		}
	}
}

func TestPool_Errors(t *testing.T) {
	pool := NewPool(Config{})
	if err := pool.Add("http://"); err == nil {
		t.Error("expected error for proxy without host")
	}
	if err := pool.Add("@/does/not/exist"); err == nil {
		t.Error("expected error for missing proxy file")
	}
	if u := pool.Next(); u != nil {
		t.Errorf("expected nil on empty pool, got %v", u)
	}
	unknown, _ := url.Parse("http://unknown")
	pool.Report(unknown, false)
	pool.Report(nil, true)
}

func TestProxyFunc(t *testing.T) {
	u, _ := url.Parse("http://proxy.local:3128")
	req, _ := http.NewRequestWithContext(WithURL(context.Background(), u), http.MethodGet, "http://example.com", nil)
	got, err := ProxyFunc(req)
	if err != nil || got.String() != u.String() {
		t.Errorf("expected pinned proxy, got %v (%v)", got, err)
	}

	direct, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	if got, _ := ProxyFunc(direct); got != nil {
		t.Errorf("expected direct connection, got %v", got)
	}
}
