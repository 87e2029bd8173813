package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the tracking engine's Prometheus collectors. All methods are
// safe on a nil receiver so components can run without metrics in tests.
type Metrics struct {
	CyclesTotal           *prometheus.CounterVec
	CycleDuration         prometheus.Histogram
	EntriesTotal          *prometheus.CounterVec
	FetchDuration         *prometheus.HistogramVec
	RateLimitWait         *prometheus.HistogramVec
	RateLimitDenied       *prometheus.CounterVec
	UpdatesTotal          *prometheus.CounterVec
	WebhooksTotal         *prometheus.CounterVec
	BreakerOpen           *prometheus.GaugeVec
	EventPublishFailures  prometheus.Counter
	RegistryQueuedEntries prometheus.Gauge
}

// New registers collectors on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shiptrack_tracking_cycles_total",
			Help: "Tracking cycles run, by result (completed, cancelled, aborted, skipped)",
		}, []string{"result"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "shiptrack_tracking_cycle_duration_seconds",
			Help:    "Wall time of one tracking cycle",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		EntriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shiptrack_tracking_entries_total",
			Help: "Queue entries processed per carrier, by outcome",
		}, []string{"carrier", "outcome"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shiptrack_carrier_fetch_duration_seconds",
			Help:    "Latency of carrier status fetches",
			Buckets: prometheus.DefBuckets,
		}, []string{"carrier"}),
		RateLimitWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shiptrack_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a carrier rate limit slot",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"carrier"}),
		RateLimitDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shiptrack_ratelimit_denied_total",
			Help: "Non-blocking rate limit checks that were denied",
		}, []string{"carrier"}),
		UpdatesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shiptrack_status_updates_total",
			Help: "Reconciled status updates by source and outcome (applied, stale)",
		}, []string{"source", "outcome"}),
		WebhooksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shiptrack_webhooks_total",
			Help: "Webhook events received by carrier and result",
		}, []string{"carrier", "result"}),
		BreakerOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shiptrack_carrier_circuit_open",
			Help: "1 while a carrier's circuit breaker is open",
		}, []string{"carrier"}),
		EventPublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "shiptrack_status_event_publish_failures_total",
			Help: "Status change events that could not be published",
		}),
		RegistryQueuedEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "shiptrack_registry_queued_entries",
			Help: "Orders currently queued for the next tracking cycle",
		}),
	}
}

func (m *Metrics) RecordCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordEntry(carrier, outcome string) {
	if m == nil {
		return
	}
	m.EntriesTotal.WithLabelValues(carrier, outcome).Inc()
}

func (m *Metrics) ObserveFetch(carrier string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(carrier).Observe(d.Seconds())
}

func (m *Metrics) ObserveRateLimitWait(carrier string, d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.WithLabelValues(carrier).Observe(d.Seconds())
}

func (m *Metrics) IncrementRateLimitDenied(carrier string) {
	if m == nil {
		return
	}
	m.RateLimitDenied.WithLabelValues(carrier).Inc()
}

func (m *Metrics) RecordUpdate(source, outcome string) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) RecordWebhook(carrier, result string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(carrier, result).Inc()
}

func (m *Metrics) SetBreakerOpen(carrier string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerOpen.WithLabelValues(carrier).Set(v)
}

func (m *Metrics) IncrementEventPublishFailures() {
	if m == nil {
		return
	}
	m.EventPublishFailures.Inc()
}

func (m *Metrics) SetQueuedEntries(n int) {
	if m == nil {
		return
	}
	m.RegistryQueuedEntries.Set(float64(n))
}
