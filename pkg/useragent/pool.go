// Package useragent rotates the User-Agent header across requests.
package useragent

import (
	"math/rand/v2"
	"sync/atomic"
)

// Default identifies the monitor honestly; used when no pool is configured.
const Default = "WebsiteChangeMonitor/1.0"

// Browsers is a preset of desktop browser strings, selectable with the
// "browsers" keyword in fetch.user_agents.
var Browsers = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
}

// Pool hands out User-Agent strings round-robin or at random.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool builds a pool from uas. The entry "browsers" expands to Browsers.
// An empty list yields a pool holding only Default.
func NewPool(uas []string) *Pool {
	var list []string
	for _, ua := range uas {
		if ua == "browsers" {
			list = append(list, Browsers...)
			continue
		}
		if ua != "" {
			list = append(list, ua)
		}
	}
	if len(list) == 0 {
		list = []string{Default}
	}
	return &Pool{uas: list}
}

// Next returns the next User-Agent in rotation.
func (p *Pool) Next() string {
	if len(p.uas) == 0 {
		return Default
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// Random returns a uniformly chosen User-Agent.
func (p *Pool) Random() string {
	if len(p.uas) == 0 {
		return Default
	}
	return p.uas[rand.IntN(len(p.uas))]
}

// All returns a copy of the pool contents.
func (p *Pool) All() []string {
	return append([]string(nil), p.uas...)
}
