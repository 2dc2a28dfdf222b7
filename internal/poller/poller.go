package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"basegraph.app/docwatch/common/id"
	"basegraph.app/docwatch/common/logger"
	"basegraph.app/docwatch/internal/detector"
	"basegraph.app/docwatch/internal/metadata"
	"basegraph.app/docwatch/internal/model"
	"basegraph.app/docwatch/internal/store"
)

var (
	// ErrStoreUnavailable wraps a failed LoadActive. The poller reports
	// unhealthy and backs off until the store answers again.
	ErrStoreUnavailable = errors.New("state store unavailable")

	// ErrCycleLocked means another poller holds the cycle lock.
	ErrCycleLocked = errors.New("poll cycle running elsewhere")
)

type Config struct {
	Interval           time.Duration
	BatchSize          int
	Workers            int
	DebounceWindow     time.Duration
	NotifyTimeout      time.Duration
	AutoPauseThreshold int // 0 disables auto-pause
	DegradedErrorRate  float64
	UnhealthyErrorRate float64
	MaxStoreBackoff    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 5 * time.Second
	}
	if c.DegradedErrorRate <= 0 {
		c.DegradedErrorRate = 0.2
	}
	if c.UnhealthyErrorRate <= 0 {
		c.UnhealthyErrorRate = 0.5
	}
	if c.MaxStoreBackoff <= 0 {
		c.MaxStoreBackoff = 5 * time.Minute
	}
	return c
}

type Deps struct {
	Fetcher  Fetcher
	Store    Store
	Notifier Notifier
	Clock    clockwork.Clock
	Locker   CycleLocker // optional
	Recorder Recorder    // optional
}

// Poller runs the reconciliation loop: every interval it loads all pollable
// documents, fetches their metadata on a bounded pool and commits what it
// observed. Within one document the order is always fetch, decide, notify,
// commit.
type Poller struct {
	cfg      Config
	fetcher  Fetcher
	store    Store
	notifier Notifier
	clock    clockwork.Clock
	locker   CycleLocker
	recorder Recorder

	storeBackoff *backoff.ExponentialBackOff

	mu          sync.RWMutex
	lastMetrics model.PollCycleMetrics
	health      model.HealthStatus

	stopping  atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(cfg Config, deps Deps) *Poller {
	cfg = cfg.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.Interval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = cfg.MaxStoreBackoff
	b.Reset()

	return &Poller{
		cfg:          cfg,
		fetcher:      deps.Fetcher,
		store:        deps.Store,
		notifier:     deps.Notifier,
		clock:        clock,
		locker:       deps.Locker,
		recorder:     deps.Recorder,
		storeBackoff: b,
		health:       model.HealthHealthy,
		stopCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
	}
}

// Start runs the loop in a new goroutine. The first cycle starts
// immediately; each following one is scheduled only after the previous
// finished, so cycles never overlap.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.started.Store(true)
		go p.run(ctx)
	})
}

// Stop asks the loop to finish. The running cycle dispatches no further
// documents, documents already in flight complete, then Stop returns.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.stopping.Store(true)
		close(p.stopCh)
	})
	if p.started.Load() {
		<-p.stoppedCh
	}
}

func (p *Poller) HealthStatus() model.HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health
}

// Metrics returns the summary of the last completed cycle.
func (p *Poller) Metrics() model.PollCycleMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastMetrics
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "docwatch.poller"})
	slog.InfoContext(ctx, "poller started",
		"interval", p.cfg.Interval,
		"batch_size", p.cfg.BatchSize,
		"workers", p.cfg.Workers)

	for {
		delay := p.cfg.Interval
		if _, err := p.RunCycle(ctx); err != nil {
			switch {
			case errors.Is(err, ErrStoreUnavailable):
				delay = p.storeBackoff.NextBackOff()
				slog.ErrorContext(ctx, "poll cycle failed, backing off", "error", err, "retry_in", delay)
			case errors.Is(err, ErrCycleLocked):
				slog.DebugContext(ctx, "poll cycle skipped, lock held by another poller")
			default:
				slog.ErrorContext(ctx, "poll cycle failed", "error", err)
			}
		} else {
			p.storeBackoff.Reset()
		}

		timer := p.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.InfoContext(ctx, "poller stopped", "reason", ctx.Err())
			return
		case <-p.stopCh:
			timer.Stop()
			slog.InfoContext(ctx, "poller stopped")
			return
		case <-timer.Chan():
		}
	}
}

// RunCycle performs one full reconciliation pass and returns its metrics.
func (p *Poller) RunCycle(ctx context.Context) (model.PollCycleMetrics, error) {
	cycleID := id.NewString()
	ctx = logger.WithLogFields(ctx, logger.LogFields{CycleID: &cycleID})
	ctx, span := logger.StartSpan(ctx, "poller.cycle", attribute.String("docwatch.cycle_id", cycleID))
	defer span.End()

	if p.locker != nil {
		release, ok, err := p.locker.TryLock(ctx)
		if err != nil {
			span.Fail(err)
			p.markStoreDown()
			return model.PollCycleMetrics{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		if !ok {
			return model.PollCycleMetrics{}, ErrCycleLocked
		}
		defer release()
	}

	stats := newCycleStats(cycleID, p.clock.Now())

	docs, err := p.store.LoadActive(ctx)
	if err != nil {
		span.Fail(err)
		p.markStoreDown()
		return model.PollCycleMetrics{}, fmt.Errorf("%w: loading documents: %w", ErrStoreUnavailable, err)
	}
	stats.documents = len(docs)
	span.SetAttributes(attribute.Int("docwatch.documents", len(docs)))

	for start := 0; start < len(docs); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(docs))
		if !p.runBatch(ctx, docs[start:end], stats) {
			stats.addSkipped(len(docs) - end)
			break
		}
	}

	m := stats.snapshot(p.clock.Now())
	health := p.evaluate(m)

	p.mu.Lock()
	p.lastMetrics = m
	p.health = health
	p.mu.Unlock()

	if p.recorder != nil {
		p.recorder.RecordCycle(m, health)
	}

	slog.InfoContext(ctx, "poll cycle completed",
		"documents", m.Documents,
		"fetch_success", m.FetchSuccess,
		"fetch_errors", m.FetchErrors,
		"notifications_sent", m.NotificationsSent,
		"notification_errors", m.NotificationErrors,
		"debounced", m.Debounced,
		"persistence_errors", m.PersistenceErrors,
		"auto_paused", m.AutoPaused,
		"skipped", m.Skipped,
		"duration_ms", m.Duration.Milliseconds(),
		"health", health)

	return m, nil
}

// runBatch processes one batch on the bounded pool. It reports false when a
// stop request cut the batch short.
func (p *Poller) runBatch(ctx context.Context, batch []model.TrackedDocument, stats *cycleStats) bool {
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)

	completed := true
	for i, doc := range batch {
		// Go blocks while the pool is full, so the flag is checked again
		// once a slot is free.
		if p.stopping.Load() || ctx.Err() != nil {
			stats.addSkipped(len(batch) - i)
			completed = false
			break
		}
		g.Go(func() error {
			if p.stopping.Load() {
				stats.addSkipped(1)
				return nil
			}
			p.processDocumentSafe(ctx, doc, stats)
			return nil
		})
	}
	_ = g.Wait()
	return completed
}

func (p *Poller) processDocumentSafe(ctx context.Context, doc model.TrackedDocument, stats *cycleStats) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered while polling document",
				"panic", r,
				"owner_id", doc.OwnerID,
				"token", doc.Token)
			stats.addPersistenceError()
		}
	}()
	p.processDocument(ctx, doc, stats)
}

func (p *Poller) processDocument(ctx context.Context, doc model.TrackedDocument, stats *cycleStats) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		OwnerID: logger.Ptr(doc.OwnerID),
		Token:   logger.Ptr(doc.Token),
	})
	ctx, span := logger.StartSpan(ctx, "poller.document", attribute.String("docwatch.token", doc.Token))
	defer span.End()

	fetchStart := p.clock.Now()
	md, err := p.fetcher.Fetch(ctx, doc.Token)
	stats.addFetchLatency(p.clock.Since(fetchStart))
	if err != nil {
		span.Fail(err)
		p.handleFetchError(ctx, doc, err, stats)
		return
	}
	stats.addFetchSuccess()

	now := p.clock.Now()
	decision := detector.Decide(md, doc, now, p.cfg.DebounceWindow)
	obs := model.Observation{Metadata: md, Decision: decision, PolledAt: now}

	span.SetAttributes(attribute.String("docwatch.decision", decision.String()))

	if decision.ShouldNotify() {
		n := model.ChangeNotification(doc, md, decision.Kind)
		if err := p.send(ctx, doc.NotifyTarget, n); err != nil {
			// The baseline stays put, so the next cycle decides Notify again.
			stats.addNotificationError()
			slog.WarnContext(ctx, "notification not accepted, baseline kept",
				"error", err,
				"decision", decision.String())
		} else {
			obs.Notified = true
			stats.addNotificationSent()
		}
	}
	if decision.Action == model.DecisionDebounced {
		stats.addDebounced()
	}

	// Notification first, commit second: a crash in between replays the
	// notification next cycle instead of losing it.
	if _, err := p.store.CommitObservation(ctx, doc.Key(), obs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.InfoContext(ctx, "document paused or deleted during cycle, observation dropped")
			return
		}
		span.Fail(err)
		stats.addPersistenceError()
		slog.ErrorContext(ctx, "failed to commit observation",
			"error", err,
			"decision", decision.String(),
			"notified", obs.Notified)
		return
	}

	if decision.IsChange() {
		slog.InfoContext(ctx, "document change observed",
			"decision", decision.String(),
			"notified", obs.Notified,
			"modified_by", md.ModifiedBy,
			"modified_at", md.ModifiedAt)
	}
}

func (p *Poller) handleFetchError(ctx context.Context, doc model.TrackedDocument, fetchErr error, stats *cycleStats) {
	permanent := metadata.IsPermanent(fetchErr)
	stats.addFetchError(permanent)

	slog.WarnContext(ctx, "metadata fetch failed",
		"error", fetchErr,
		"permanent", permanent,
		"consecutive_errors", doc.ConsecutiveErrors+1)

	updated, err := p.store.RecordFetchError(ctx, doc.Key(), model.FetchFailure{
		Permanent: permanent,
		Message:   logger.Truncate(fetchErr.Error(), 500),
		At:        p.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		stats.addPersistenceError()
		slog.ErrorContext(ctx, "failed to record fetch error", "error", err)
		return
	}

	if !permanent || p.cfg.AutoPauseThreshold <= 0 || updated.ConsecutivePermanentErrors < p.cfg.AutoPauseThreshold {
		return
	}
	p.autoPause(ctx, *updated, fetchErr, stats)
}

// autoPause stops polling a document that keeps failing permanently and
// tells its owner. The pause is committed first; the notification is best
// effort because the owner can always see the state through the API.
func (p *Poller) autoPause(ctx context.Context, doc model.TrackedDocument, cause error, stats *cycleStats) {
	reason := fmt.Sprintf("auto-paused after %d consecutive permanent errors: %s",
		doc.ConsecutivePermanentErrors, logger.Truncate(cause.Error(), 300))

	paused, err := p.store.AutoPause(ctx, doc.Key(), reason)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			stats.addPersistenceError()
			slog.ErrorContext(ctx, "failed to auto-pause document", "error", err)
		}
		return
	}
	stats.addAutoPaused()

	slog.WarnContext(ctx, "document auto-paused",
		"consecutive_permanent_errors", paused.ConsecutivePermanentErrors,
		"reason", reason)

	n := model.Notification{
		Token:        paused.Token,
		OwnerID:      paused.OwnerID,
		Kind:         model.NotificationAutoPaused,
		Title:        paused.Title,
		ObservedAt:   p.clock.Now(),
		ErrorContext: reason,
	}
	if err := p.send(ctx, paused.NotifyTarget, n); err != nil {
		stats.addNotificationError()
		slog.WarnContext(ctx, "auto-pause notification not accepted", "error", err)
		return
	}
	stats.addNotificationSent()
}

func (p *Poller) send(ctx context.Context, target string, n model.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.NotifyTimeout)
	defer cancel()
	return p.notifier.Send(ctx, target, n)
}

func (p *Poller) markStoreDown() {
	p.mu.Lock()
	p.health = model.HealthUnhealthy
	p.mu.Unlock()
	if p.recorder != nil {
		p.recorder.RecordCycle(model.PollCycleMetrics{}, model.HealthUnhealthy)
	}
}

func (p *Poller) evaluate(m model.PollCycleMetrics) model.HealthStatus {
	rate := m.ErrorRate()
	switch {
	case rate > p.cfg.UnhealthyErrorRate:
		return model.HealthUnhealthy
	case rate > p.cfg.DegradedErrorRate:
		return model.HealthDegraded
	default:
		return model.HealthHealthy
	}
}
