package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the API and the worker report.
type Metrics struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Directory Metrics
	UsersRegisteredTotal   prometheus.Counter
	SubscriptionsTotal     *prometheus.CounterVec
	CardsRotatedTotal      *prometheus.CounterVec
	CardsInitializedTotal  *prometheus.CounterVec
	SubscriptionFanoutSize prometheus.Histogram

	// Cache (Redis) Metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Queue (RabbitMQ) Metrics
	QueueMessagesPublished *prometheus.CounterVec
	QueueMessagesConsumed  *prometheus.CounterVec
	EventsFailedTotal      *prometheus.CounterVec
}

// NewMetrics registers all collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP Metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		// Directory Metrics
		UsersRegisteredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "directory_users_registered_total",
				Help: "Total number of users registered",
			},
		),

		SubscriptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_subscriptions_total",
				Help: "Total number of subscription events recorded",
			},
			[]string{"result"}, // updated, not_found
		),

		CardsRotatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_cards_rotated_total",
				Help: "Total number of card queue rotations",
			},
			[]string{"result"}, // rotated, empty, not_found
		),

		CardsInitializedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_cards_initialized_total",
				Help: "Total number of card queue initializations",
			},
			[]string{"result"}, // initialized, no_user
		),

		SubscriptionFanoutSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "directory_subscription_fanout_users",
				Help:    "Number of card queues touched by one subscription event",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		// Cache Metrics
		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"key_type"},
		),

		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key_type"},
		),

		// Queue Metrics
		QueueMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_messages_published_total",
				Help: "Total number of messages published to the queue",
			},
			[]string{"queue_name"},
		),

		QueueMessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_messages_consumed_total",
				Help: "Total number of messages consumed from the queue",
			},
			[]string{"queue_name"},
		),

		EventsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_events_failed_total",
				Help: "Total number of directory events the worker could not handle",
			},
			[]string{"event_type", "error_type"},
		),
	}
}
