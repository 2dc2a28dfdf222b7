package service

import (
	"context"
	"log/slog"
	"time"

	"basegraph.app/docwatch/internal/model"
)

// PollerStatus is satisfied by *poller.Poller.
type PollerStatus interface {
	HealthStatus() model.HealthStatus
	Metrics() model.PollCycleMetrics
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthReport struct {
	Status    model.HealthStatus     `json:"status"`
	Store     string                 `json:"store"`
	Queue     string                 `json:"queue,omitempty"`
	LastCycle model.PollCycleMetrics `json:"last_cycle"`
}

type HealthService interface {
	HealthAndMetrics(ctx context.Context) HealthReport
}

type healthService struct {
	poller PollerStatus
	store  Pinger
	queue  Pinger
}

// NewHealthService reports on the poller and pings store and queue. A nil
// queue is left out of the report.
func NewHealthService(poller PollerStatus, store, queue Pinger) HealthService {
	return &healthService{poller: poller, store: store, queue: queue}
}

// HealthAndMetrics combines the poller's view with a live store ping. An
// unreachable store is unhealthy even before the next cycle notices.
func (s *healthService) HealthAndMetrics(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    s.poller.HealthStatus(),
		Store:     "ok",
		LastCycle: s.poller.Metrics(),
	}

	if s.store != nil {
		if err := ping(ctx, s.store); err != nil {
			slog.WarnContext(ctx, "store ping failed", "error", err)
			report.Store = "unreachable"
			report.Status = model.HealthUnhealthy
		}
	}

	// Without the queue no notification is accepted, but polling and
	// baselines stay consistent, so this only degrades.
	if s.queue != nil {
		report.Queue = "ok"
		if err := ping(ctx, s.queue); err != nil {
			slog.WarnContext(ctx, "queue ping failed", "error", err)
			report.Queue = "unreachable"
			if report.Status == model.HealthHealthy {
				report.Status = model.HealthDegraded
			}
		}
	}
	return report
}

func ping(ctx context.Context, p Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Ping(ctx)
}
