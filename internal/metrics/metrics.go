package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the tracker
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	SwapsFetched   *prometheus.CounterVec
	SwapsSaved     *prometheus.CounterVec
	SwapsDuplicate *prometheus.CounterVec
	IngestErrors   *prometheus.CounterVec
	IngestDuration *prometheus.HistogramVec

	// Credential pool
	CredentialCursor    prometheus.Gauge
	CredentialRotations prometheus.Counter
	PoolWraps           prometheus.Counter

	// Provider
	ProviderRequests *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec

	// HTTP API
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Realtime
	WebSocketClients prometheus.Gauge
	EventsPublished  *prometheus.CounterVec
}

// New creates the tracker metrics registered on their own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	return NewWith(registry)
}

// NewWith creates the tracker metrics on the given registry
func NewWith(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		SwapsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_swaps_fetched_total",
			Help: "Swap rows returned by the provider, per chain",
		}, []string{"chain"}),

		SwapsSaved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_swaps_saved_total",
			Help: "New swap rows persisted, per chain",
		}, []string{"chain"}),

		SwapsDuplicate: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_swaps_duplicate_total",
			Help: "Swap rows rejected by the dedup index, per chain",
		}, []string{"chain"}),

		IngestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_ingest_errors_total",
			Help: "Ingestion failures, per stage",
		}, []string{"stage"}),

		IngestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_ingest_duration_seconds",
			Help:    "Time spent ingesting one wallet-chain pair",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain"}),

		CredentialCursor: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_credential_cursor",
			Help: "Current position in the API key pool",
		}),

		CredentialRotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_credential_rotations_total",
			Help: "Times the credential cursor advanced",
		}),

		PoolWraps: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_credential_pool_wraps_total",
			Help: "Times the credential cursor wrapped back to the first key",
		}),

		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_provider_requests_total",
			Help: "Provider API requests, per endpoint and status",
		}, []string{"endpoint", "status"}),

		ProviderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_provider_request_duration_seconds",
			Help:    "Provider API request latency, per endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_http_requests_total",
			Help: "HTTP API requests, per route, method and status code",
		}, []string{"route", "method", "code"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_http_request_duration_seconds",
			Help:    "HTTP API request latency, per route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_websocket_clients",
			Help: "Connected websocket subscribers",
		}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_events_published_total",
			Help: "Transaction events published, per channel",
		}, []string{"channel"}),
	}
}

// Registry returns the underlying registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveIngest records one wallet-chain ingestion pass
func (m *Metrics) ObserveIngest(chain string, fetched, saved, duplicates int, duration time.Duration) {
	m.SwapsFetched.WithLabelValues(chain).Add(float64(fetched))
	m.SwapsSaved.WithLabelValues(chain).Add(float64(saved))
	m.SwapsDuplicate.WithLabelValues(chain).Add(float64(duplicates))
	m.IngestDuration.WithLabelValues(chain).Observe(duration.Seconds())
}

// ObserveRotation records a credential cursor advance
func (m *Metrics) ObserveRotation(newCursor int, wrapped bool) {
	m.CredentialRotations.Inc()
	m.CredentialCursor.Set(float64(newCursor))
	if wrapped {
		m.PoolWraps.Inc()
	}
}
