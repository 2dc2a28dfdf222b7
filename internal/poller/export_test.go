package poller

import "github.com/prometheus/client_golang/prometheus"

func (r *PrometheusRecorder) Cycles() prometheus.Counter { return r.cycles }
func (r *PrometheusRecorder) Fetches() *prometheus.CounterVec { return r.fetches }
func (r *PrometheusRecorder) Notifications() *prometheus.CounterVec { return r.notifications }
func (r *PrometheusRecorder) Documents() prometheus.Gauge { return r.documents }
func (r *PrometheusRecorder) Health() *prometheus.GaugeVec { return r.health }
