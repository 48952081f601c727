package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal, feedRendersTotal) }

var (
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Tracks cache hits and misses for various caches.",
		},
		[]string{"cache", "result"}, // e.g., cache="feed", result="hit"
	)

	feedRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_reads_total",
			Help: "Feed document reads by outcome.",
		},
		[]string{"outcome"}, // 'cached', 'rendered', 'not_found', 'forbidden'
	)
)

func IncCacheRequest(cacheName, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}

func IncFeedRead(outcome string) {
	feedRendersTotal.WithLabelValues(norm(outcome)).Inc()
}
