// Package metrics holds the Prometheus collectors shared by the engine and the
// HTTP server.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kennel"

var (
	// PageFetches counts page fetches by outcome (ok, error, stale).
	PageFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_fetches_total",
		Help:      "Page fetches issued by the pagination manager, by outcome.",
	}, []string{"collection", "outcome"})

	// LabelResolutions counts label/id resolutions by the source that answered.
	LabelResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "label_resolutions_total",
		Help:      "Label and id resolutions by answering source (local, remote, miss).",
	}, []string{"table", "source"})

	// CacheWriteFailures counts swallowed label cache write errors.
	CacheWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "label_cache_write_failures_total",
		Help:      "Best-effort label cache upserts that failed.",
	})

	// HTTPRequests counts provider API requests.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Provider API requests by route and status code.",
	}, []string{"route", "code"})

	// HTTPDuration observes provider API latency.
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Provider API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// Collectors returns every collector defined by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		PageFetches,
		LabelResolutions,
		CacheWriteFailures,
		HTTPRequests,
		HTTPDuration,
	}
}

// Register registers all collectors, tolerating collectors that are already
// registered with reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
