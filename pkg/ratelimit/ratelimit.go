// Package ratelimit spaces out outbound requests.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter hands out request slots at a fixed rate with optional jitter.
// The zero rate never blocks. Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64
	next     time.Time
}

// NewLimiter returns a limiter allowing rps requests per second. jitter in
// [0,1] adds up to jitter*interval of random extra delay to each slot.
func NewLimiter(rps, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	l := &Limiter{jitter: jitter}
	if rps > 0 {
		l.interval = time.Duration(float64(time.Second) / rps)
	}
	return l
}

// Wait blocks until the caller's slot arrives or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.interval == 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	if l.jitter > 0 {
		slot = slot.Add(time.Duration(float64(l.interval) * l.jitter * rand.Float64()))
	}
	l.next = slot.Add(l.interval)
	l.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Interval is the spacing between slots; zero when unlimited.
func (l *Limiter) Interval() time.Duration { return l.interval }
