package poller

import (
	"github.com/prometheus/client_golang/prometheus"

	"basegraph.app/docwatch/internal/model"
)

// PrometheusRecorder exports cycle metrics. Counters accumulate across
// cycles; gauges reflect the last cycle.
type PrometheusRecorder struct {
	cycles        prometheus.Counter
	fetches       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	debounced     prometheus.Counter
	persistence   prometheus.Counter
	autoPaused    prometheus.Counter
	skipped       prometheus.Counter
	duration      prometheus.Histogram
	documents     prometheus.Gauge
	fetchLatency  prometheus.Gauge
	health        *prometheus.GaugeVec
}

func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docwatch",
			Name:      "poll_cycles_total",
			Help:      "Completed poll cycles.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docwatch",
			Name:      "metadata_fetches_total",
			Help:      "Metadata fetches by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docwatch",
			Name:      "notifications_total",
			Help:      "Notifications handed to the notifier by result.",
		}, []string{"result"}),
		debounced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docwatch",
			Name:      "debounced_changes_total",
			Help:      "Changes suppressed by the debounce window.",
		}),
		persistence: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docwatch",
			Name:      "persistence_errors_total",
			Help:      "Failed state store writes.",
		}),
		autoPaused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docwatch",
			Name:      "auto_paused_total",
			Help:      "Documents paused after repeated permanent errors.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docwatch",
			Name:      "skipped_documents_total",
			Help:      "Documents not polled because the poller was stopping.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docwatch",
			Name:      "poll_cycle_duration_seconds",
			Help:      "Wall time of one poll cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		documents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docwatch",
			Name:      "poll_documents",
			Help:      "Pollable documents in the last cycle.",
		}),
		fetchLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docwatch",
			Name:      "metadata_fetch_latency_avg_seconds",
			Help:      "Average fetch latency in the last cycle.",
		}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "docwatch",
			Name:      "poller_health",
			Help:      "1 for the current poller health status, 0 otherwise.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		r.cycles, r.fetches, r.notifications, r.debounced, r.persistence,
		r.autoPaused, r.skipped, r.duration, r.documents, r.fetchLatency, r.health,
	)
	return r
}

func (r *PrometheusRecorder) RecordCycle(m model.PollCycleMetrics, health model.HealthStatus) {
	for _, s := range []model.HealthStatus{model.HealthHealthy, model.HealthDegraded, model.HealthUnhealthy} {
		v := 0.0
		if s == health {
			v = 1
		}
		r.health.WithLabelValues(string(s)).Set(v)
	}

	// Store outages report health without a cycle.
	if m.CycleID == "" {
		return
	}

	r.cycles.Inc()
	r.fetches.WithLabelValues("success").Add(float64(m.FetchSuccess))
	r.fetches.WithLabelValues("transient").Add(float64(m.FetchErrors - m.PermanentErrors))
	r.fetches.WithLabelValues("permanent").Add(float64(m.PermanentErrors))
	r.notifications.WithLabelValues("sent").Add(float64(m.NotificationsSent))
	r.notifications.WithLabelValues("failed").Add(float64(m.NotificationErrors))
	r.debounced.Add(float64(m.Debounced))
	r.persistence.Add(float64(m.PersistenceErrors))
	r.autoPaused.Add(float64(m.AutoPaused))
	r.skipped.Add(float64(m.Skipped))
	r.duration.Observe(m.Duration.Seconds())
	r.documents.Set(float64(m.Documents))
	r.fetchLatency.Set(m.AvgFetchLatency.Seconds())
}
