package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// several servers (or tests) can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Coordinator metrics
	Mutations       *prometheus.CounterVec
	MutationLatency *prometheus.HistogramVec
	PersistDuration prometheus.Histogram
	PersistFailures prometheus.Counter
	ForestNodes     prometheus.Gauge
	Revision        prometheus.Gauge
	ExternalChanges *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec
	WSCoalesced   prometheus.Counter

	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the health endpoint.
type Snapshot struct {
	TotalRequests     int64   `json:"totalRequests"`
	TotalErrors       int64   `json:"totalErrors"`
	ActiveConnections int64   `json:"activeConnections"`
	Mutations         int64   `json:"mutations"`
	RejectedMutations int64   `json:"rejectedMutations"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookmarks_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookmarks_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookmarks_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000, 50000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookmarks_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Coordinator metrics
		Mutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookmarks_mutations_total",
				Help: "Mutations handled by the coordinator by op and outcome",
			},
			[]string{"op", "outcome"},
		),
		MutationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookmarks_mutation_duration_seconds",
				Help:    "Time from dequeue to result, persistence included",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"op"},
		),
		PersistDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bookmarks_persist_duration_seconds",
				Help:    "Time spent writing the forest to disk",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		PersistFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bookmarks_persist_failures_total",
				Help: "Saves that failed and rejected their mutation",
			},
		),
		ForestNodes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookmarks_forest_nodes",
				Help: "Nodes in the authoritative forest",
			},
		),
		Revision: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookmarks_revision",
				Help: "Revision of the authoritative forest",
			},
		),
		ExternalChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookmarks_external_changes_total",
				Help: "Writes to the data file made by other processes",
			},
			[]string{"action"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookmarks_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookmarks_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "event"},
		),
		WSCoalesced: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bookmarks_ws_coalesced_total",
				Help: "Pending broadcasts replaced by a newer forest before delivery",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "bookmarks_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordMutation records the outcome of one coordinator intent.
func (m *Metrics) RecordMutation(op, outcome string, duration time.Duration) {
	m.Mutations.WithLabelValues(op, outcome).Inc()
	m.MutationLatency.WithLabelValues(op).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Mutations++
	if outcome != OutcomeApplied {
		m.snapshot.RejectedMutations++
	}
	m.mu.Unlock()
}

// RecordPersist records one save of the forest.
func (m *Metrics) RecordPersist(duration time.Duration, err error) {
	m.PersistDuration.Observe(duration.Seconds())
	if err != nil {
		m.PersistFailures.Inc()
	}
}

// SetForest publishes the size and revision of the adopted forest.
func (m *Metrics) SetForest(nodes int, revision uint64) {
	m.ForestNodes.Set(float64(nodes))
	m.Revision.Set(float64(revision))
}

// RecordExternalChange counts a foreign write to the data file.
func (m *Metrics) RecordExternalChange(action string) {
	m.ExternalChanges.WithLabelValues(action).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, event string) {
	m.WSMessages.WithLabelValues(direction, event).Inc()
}

// IncWSCoalesced counts a broadcast superseded before it was written.
func (m *Metrics) IncWSCoalesced() {
	m.WSCoalesced.Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// GetSnapshot returns the current counters.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}

// Mutation outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeIOError  = "io_error"
)

// Message directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)
