package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueryCacheEvents counts data-fetch cache outcomes by event (hit, miss, stale, dedup, error, invalidate).
	QueryCacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexora_query_cache_events_total",
		Help: "Data-fetch cache events by type",
	}, []string{"event"})

	// RemoteRequestLatency records remote service call latency by service and operation.
	RemoteRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nexora_remote_request_duration_seconds",
		Help:    "Remote service request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "operation"})

	// RemoteErrors counts failed remote service calls by service.
	RemoteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexora_remote_errors_total",
		Help: "Total number of failed remote service calls",
	}, []string{"service"})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexora_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// SessionHolders is the number of mounted session state holders.
	SessionHolders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexora_session_holders",
		Help: "Number of mounted session state holders",
	})

	// PostCreations counts post creation attempts by outcome.
	PostCreations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexora_post_creations_total",
		Help: "Post creation attempts by outcome",
	}, []string{"outcome"})

	// RateLimited counts requests rejected by the per-route rate limiter.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexora_rate_limited_total",
		Help: "Requests rejected by the rate limiter by resource",
	}, []string{"resource"})

	// ActiveWebSockets is the number of open query stream connections.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexora_websocket_connections",
		Help: "Number of open query stream WebSocket connections",
	})
)

// TrackRemote returns a function that records remote call latency when called (e.g. defer).
func TrackRemote(service, operation string) func(err error) {
	start := time.Now()
	return func(err error) {
		RemoteRequestLatency.WithLabelValues(service, operation).Observe(time.Since(start).Seconds())
		if err != nil {
			RemoteErrors.WithLabelValues(service).Inc()
		}
	}
}
