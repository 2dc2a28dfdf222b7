package poller

import (
	"context"

	"basegraph.app/docwatch/internal/model"
)

// Fetcher is satisfied by *metadata.Client.
type Fetcher interface {
	Fetch(ctx context.Context, token string) (model.Metadata, error)
}

// Mirrors store.PollStore - defined here so tests need no database.
type Store interface {
	LoadActive(ctx context.Context) ([]model.TrackedDocument, error)
	CommitObservation(ctx context.Context, key model.DocumentKey, obs model.Observation) (*model.TrackedDocument, error)
	RecordFetchError(ctx context.Context, key model.DocumentKey, failure model.FetchFailure) (*model.TrackedDocument, error)
	AutoPause(ctx context.Context, key model.DocumentKey, reason string) (*model.TrackedDocument, error)
}

// Notifier hands a notification to the delivery path. A nil error means the
// notification was accepted durably; only then may the baseline advance.
type Notifier interface {
	Send(ctx context.Context, target string, n model.Notification) error
}

// CycleLocker lets several pollers share one database without running
// overlapping cycles. Satisfied by *store.CycleLock.
type CycleLocker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// Recorder receives every completed cycle, e.g. for Prometheus export.
type Recorder interface {
	RecordCycle(m model.PollCycleMetrics, health model.HealthStatus)
}
