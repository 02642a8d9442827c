// Package metrics exposes Prometheus counters for crawls, fetches and
// explanation outcomes.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/FranksOps/pagewatch/internal/explain"
	"github.com/FranksOps/pagewatch/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CrawlsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagewatch_crawls_total",
			Help: "Crawls recorded to history, by whether the page changed",
		},
		[]string{"target", "changed"},
	)

	ExplanationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagewatch_explanations_total",
			Help: "Explanations produced, by source (model or fallback) and fallback cause",
		},
		[]string{"source", "cause"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagewatch_fetch_duration_seconds",
			Help:    "Duration of page fetches in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
		[]string{"domain"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagewatch_fetch_bytes_total",
			Help: "Response bytes downloaded by the page fetcher",
		},
		[]string{"domain"},
	)

	FetchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagewatch_fetch_failures_total",
			Help: "Failed page fetches, by failure kind",
		},
		[]string{"domain", "kind"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagewatch_proxy_failures_total",
			Help: "Requests that failed at the transport level through a proxy",
		},
		[]string{"proxy_url"},
	)
)

// RecordCrawl counts a persisted history entry.
func RecordCrawl(e *storage.HistoryEntry) {
	if e == nil {
		return
	}
	changed := "false"
	if e.Meta.ChangeRatio != nil {
		changed = "true"
	}
	CrawlsTotal.WithLabelValues(e.ID, changed).Inc()

	if !e.UsedFallback {
		ExplanationsTotal.WithLabelValues("model", "").Inc()
		return
	}
	ExplanationsTotal.WithLabelValues("fallback", FallbackCause(e.Reason)).Inc()
}

// FallbackCause buckets a free-form fallback reason into a low-cardinality
// label value.
func FallbackCause(reason *string) string {
	if reason == nil {
		return "unknown"
	}
	r := *reason
	switch {
	case r == explain.ReasonNoChanges:
		return "no_changes"
	case strings.Contains(r, " error: "):
		return "provider_error"
	case strings.HasSuffix(r, " returned empty response"):
		return "empty_response"
	case strings.HasSuffix(r, " not set"):
		return "no_credential"
	default:
		return "unknown"
	}
}

// RecordFetch observes a completed HTTP exchange.
func RecordFetch(domain string, d time.Duration, bytes int) {
	FetchDuration.WithLabelValues(domain).Observe(d.Seconds())
	FetchBytesTotal.WithLabelValues(domain).Add(float64(bytes))
}

// RecordFetchFailure counts a fetch that produced no snapshot.
func RecordFetchFailure(domain, kind string) {
	FetchFailuresTotal.WithLabelValues(domain, kind).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
