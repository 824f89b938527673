package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookingslots",
			Name:      "http_requests_total",
			Help:      "Count of HTTP API requests by route.",
		},
		[]string{"route"},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookingslots",
			Name:      "upstream_requests_total",
			Help:      "Count of bookings backend requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	upstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bookingslots",
			Name:      "upstream_request_seconds",
			Help:      "Latency of bookings backend requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookingslots",
			Name:      "cache_lookups_total",
			Help:      "Count of booking cache lookups by result.",
		},
		[]string{"result"},
	)

	staleDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookingslots",
			Name:      "cache_stale_results_total",
			Help:      "Count of fetch results discarded because the key was invalidated meanwhile.",
		},
	)

	selectionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookingslots",
			Name:      "selection_events_total",
			Help:      "Count of picker selection transitions by resulting state.",
		},
		[]string{"state"},
	)

	bookingSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookingslots",
			Name:      "booking_submitted_total",
			Help:      "Count of booking submissions by status.",
		},
		[]string{"status"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bookingslots",
			Name:      "picker_sessions",
			Help:      "Number of live picker sessions.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			upstreamRequests, upstreamLatency,
			cacheLookups, staleDiscarded,
			selectionEvents, bookingSubmitted, activeSessions,
		)
	})
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}

func IncUpstreamRequest(endpoint, outcome string) {
	upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
}

func ObserveUpstreamLatency(endpoint string, seconds float64) {
	upstreamLatency.WithLabelValues(endpoint).Observe(seconds)
}

func IncCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func IncStaleDiscarded() {
	staleDiscarded.Inc()
}

func IncSelectionEvent(state string) {
	selectionEvents.WithLabelValues(state).Inc()
}

func IncBookingSubmitted(status string) {
	bookingSubmitted.WithLabelValues(status).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
