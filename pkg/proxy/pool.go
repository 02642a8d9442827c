// Package proxy rotates outbound requests across a set of proxies and
// benches the ones that keep failing.
package proxy

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

type entry struct {
	url         *url.URL
	failures    int
	successes   int
	benchedTill time.Time
}

// Config defines settings for the Pool.
type Config struct {
	// MaxFailures in a row before a proxy is benched. Default 3.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out. Default 5m.
	Cooldown time.Duration
}

// Pool is a round-robin proxy rotation. Safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	cursor      int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Stats is a point-in-time view of one proxy.
type Stats struct {
	URL       string
	Failures  int
	Successes int
	Benched   bool
}

// NewPool creates an empty pool.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{maxFailures: cfg.MaxFailures, cooldown: cfg.Cooldown, now: time.Now}
}

// Add registers proxies. Entries without a scheme are treated as http.
// An entry starting with '@' names a file holding one proxy per line.
func (p *Pool) Add(raw ...string) error {
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if path, ok := strings.CutPrefix(r, "@"); ok {
			if err := p.LoadFile(path); err != nil {
				return err
			}
			continue
		}
		if !strings.Contains(r, "://") {
			r = "http://" + r
		}
		u, err := url.Parse(r)
		if err != nil {
			return fmt.Errorf("parse proxy %q: %w", r, err)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy %q has no host", r)
		}
		p.mu.Lock()
		p.entries = append(p.entries, &entry{url: u})
		p.mu.Unlock()
	}
	return nil
}

// LoadFile adds proxies from a file, one per line. Blank lines and lines
// starting with '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "@") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read proxy list: %w", err)
	}
	return p.Add(lines...)
}

// Len is the number of registered proxies.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next proxy that is not benched, or nil if none is usable.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.cursor]
		p.cursor = (p.cursor + 1) % len(p.entries)
		if !e.benchedTill.IsZero() {
			if now.Before(e.benchedTill) {
				continue
			}
			e.benchedTill = time.Time{}
			e.failures = 0
		}
		return e.url
	}
	return nil
}

// Report records the outcome of a request made through u. Unknown proxies
// are ignored.
func (p *Pool) Report(u *url.URL, ok bool) {
	if u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.url.String() != u.String() {
			continue
		}
		if ok {
			e.successes++
			e.failures = 0
			return
		}
		e.failures++
		if e.failures >= p.maxFailures {
			e.benchedTill = p.now().Add(p.cooldown)
		}
		return
	}
}

// Stats snapshots every proxy.
func (p *Pool) Stats() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	out := make([]Stats, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, Stats{
			URL:       e.url.String(),
			Failures:  e.failures,
			Successes: e.successes,
			Benched:   now.Before(e.benchedTill),
		})
	}
	return out
}

type ctxKey struct{}

// WithURL pins the proxy a request should use.
func WithURL(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the proxy pinned by WithURL, if any.
func FromContext(ctx context.Context) *url.URL {
	u, _ := ctx.Value(ctxKey{}).(*url.URL)
	return u
}

// ProxyFunc is an http.Transport.Proxy that honours WithURL and otherwise
// goes direct.
func ProxyFunc(req *http.Request) (*url.URL, error) {
	return FromContext(req.Context()), nil
}
