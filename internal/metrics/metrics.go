package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	NotificationsAccepted prometheus.Counter
	NotificationsRejected prometheus.Counter
	JobsProcessed         *prometheus.CounterVec
	RetriesScheduled      prometheus.Counter
	ClaimConflicts        prometheus.Counter
	BusyWorkers           prometheus.Gauge
	DeliveryLatency       prometheus.Histogram
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_accepted_total",
			Help: "Total notify calls that committed a notification and its jobs.",
		}),
		NotificationsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_rejected_total",
			Help: "Total notify calls rejected by validation.",
		}),
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_processed_total",
			Help: "Total jobs finalized, labelled by terminal result.",
		}, []string{"result"}),
		RetriesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_retries_scheduled_total",
			Help: "Total successor jobs inserted after a delivery failure.",
		}),
		ClaimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_claim_conflicts_total",
			Help: "Total claim attempts lost to a concurrent claimant.",
		}),
		BusyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notifier_busy_workers",
			Help: "Number of pool workers currently processing a job.",
		}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notification_delivery_seconds",
			Help:    "Per-job processing latency from claim hand-off to finalization.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.NotificationsAccepted,
		m.NotificationsRejected,
		m.JobsProcessed,
		m.RetriesScheduled,
		m.ClaimConflicts,
		m.BusyWorkers,
		m.DeliveryLatency,
	)

	return m
}

// NotifierHooks returns the metric callbacks expected by worker.MetricHooks.
// Centralises the prometheus observation calls so the worker package stays
// metrics-agnostic.
func (m *Metrics) NotifierHooks() (
	onDelivered func(latency time.Duration),
	onFailed func(),
	onRetryScheduled func(),
) {
	onDelivered = func(latency time.Duration) {
		m.JobsProcessed.WithLabelValues("delivered").Inc()
		m.DeliveryLatency.Observe(latency.Seconds())
	}
	onFailed = func() {
		m.JobsProcessed.WithLabelValues("failed").Inc()
	}
	onRetryScheduled = func() {
		m.RetriesScheduled.Inc()
	}
	return
}
