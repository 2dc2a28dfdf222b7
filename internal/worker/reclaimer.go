package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/docwatch/common/logger"
	"basegraph.app/docwatch/internal/queue"
)

type RedisReclaimerConfig struct {
	Stream   string
	Group    string
	Consumer string
	// MinIdle is how long an entry must sit unacknowledged before another
	// consumer may take it over.
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
}

// MessageHandler settles one message; *Worker.Handle satisfies it.
type MessageHandler func(ctx context.Context, msg queue.Message)

// RedisReclaimer takes over notifications left pending by a worker that died
// between XREADGROUP and XACK and settles them through the same handler as
// fresh messages.
type RedisReclaimer struct {
	client   *redis.Client
	cfg      RedisReclaimerConfig
	consumer Consumer
	handle   MessageHandler

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewRedisReclaimer(client *redis.Client, cfg RedisReclaimerConfig, consumer Consumer, handle MessageHandler) *RedisReclaimer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &RedisReclaimer{
		client:    client,
		cfg:       cfg,
		consumer:  consumer,
		handle:    handle,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run sweeps once per Interval until Stop is called or ctx is done.
func (r *RedisReclaimer) Run(ctx context.Context) {
	defer close(r.stoppedCh)
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "docwatch.worker.reclaimer"})

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle,
		"stream", r.cfg.Stream)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
		}

		n, err := r.sweep(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "reclaim sweep failed", "error", err)
			continue
		}
		if n > 0 {
			slog.InfoContext(ctx, "reclaimed stale notifications", "count", n)
		}
	}
}

func (r *RedisReclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// sweep walks the pending entries list with XAUTOCLAIM until the cursor wraps
// around, handling every entry it takes over. It returns how many it handled.
func (r *RedisReclaimer) sweep(ctx context.Context) (int, error) {
	handled := 0
	cursor := "0-0"
	for {
		claimed, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   r.cfg.Stream,
			Group:    r.cfg.Group,
			Consumer: r.cfg.Consumer,
			MinIdle:  r.cfg.MinIdle,
			Start:    cursor,
			Count:    r.cfg.BatchSize,
		}).Result()
		if err != nil {
			return handled, fmt.Errorf("xautoclaim (stream=%s): %w", r.cfg.Stream, err)
		}

		for _, entry := range claimed {
			if r.isStopping() {
				return handled, nil
			}
			r.settle(ctx, entry)
			handled++
		}

		if next == "0-0" || next == "" {
			return handled, nil
		}
		cursor = next
	}
}

func (r *RedisReclaimer) settle(ctx context.Context, entry redis.XMessage) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{MessageID: logger.Ptr(entry.ID)})

	msg, err := queue.ParseMessage(entry)
	if err != nil {
		// A malformed entry can never be delivered; acking it stops it from
		// being reclaimed forever.
		slog.ErrorContext(ctx, "dropping malformed reclaimed entry", "error", err)
		if ackErr := r.consumer.Ack(ctx, queue.Message{ID: entry.ID, Raw: entry}); ackErr != nil {
			slog.WarnContext(ctx, "failed to ack malformed entry", "error", ackErr)
		}
		return
	}

	slog.InfoContext(ctx, "handling reclaimed notification", "attempt", msg.Attempt)
	r.handle(ctx, msg)
}

func (r *RedisReclaimer) isStopping() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}
