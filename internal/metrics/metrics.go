package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tripplanner"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Outbound calls by upstream, operation and outcome.",
		},
		[]string{"upstream", "operation", "outcome"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Outbound call latency including retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"upstream", "operation"},
	)

	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_token_refreshes_total",
			Help:      "Client-credentials exchanges by outcome.",
		},
		[]string{"provider", "outcome"},
	)

	lifecycleEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Itinerary and booking lifecycle events by type.",
		},
		[]string{"event"},
	)

	syncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_queue_depth",
			Help:      "Ledger sync tasks waiting in memory.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			upstreamRequests,
			upstreamDuration,
			tokenRefreshes,
			lifecycleEvents,
			syncQueueDepth,
		)
	})
}

// IncHTTP increments the counter for a route pattern and response code.
func IncHTTP(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveUpstream records one outbound operation.
func ObserveUpstream(upstream, operation string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamRequests.WithLabelValues(upstream, operation, outcome).Inc()
	upstreamDuration.WithLabelValues(upstream, operation).Observe(time.Since(started).Seconds())
}

func IncTokenRefresh(provider string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	tokenRefreshes.WithLabelValues(provider, outcome).Inc()
}

func IncEvent(event string) {
	lifecycleEvents.WithLabelValues(event).Inc()
}

func SetSyncQueueDepth(n int) {
	syncQueueDepth.Set(float64(n))
}
