package model

import "time"

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// PollCycleMetrics summarizes one reconciliation cycle. It is rebuilt every
// cycle and never persisted.
type PollCycleMetrics struct {
	CycleID            string        `json:"cycle_id"`
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration_ns"`
	Documents          int           `json:"documents"`
	FetchSuccess       int           `json:"fetch_success"`
	FetchErrors        int           `json:"fetch_errors"`
	PermanentErrors    int           `json:"permanent_errors"`
	NotificationsSent  int           `json:"notifications_sent"`
	NotificationErrors int           `json:"notification_errors"`
	Debounced          int           `json:"debounced"`
	PersistenceErrors  int           `json:"persistence_errors"`
	AutoPaused         int           `json:"auto_paused"`
	Skipped            int           `json:"skipped"`
	AvgFetchLatency    time.Duration `json:"avg_fetch_latency_ns"`
}

// ErrorRate is the fraction of attempted fetches that failed.
func (m PollCycleMetrics) ErrorRate() float64 {
	total := m.FetchSuccess + m.FetchErrors
	if total == 0 {
		return 0
	}
	return float64(m.FetchErrors) / float64(total)
}
