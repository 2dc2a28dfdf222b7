package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/docwatch/common/logger"
	"basegraph.app/docwatch/internal/queue"
)

type Config struct {
	MaxAttempts int
	// ErrorBackoff is the pause after a failed read from the stream.
	ErrorBackoff time.Duration
}

// Worker drains the notification stream and hands each message to the
// transport. Delivery is at-least-once: a message is acked only after the
// transport succeeded, was requeued, or was dead-lettered.
type Worker struct {
	consumer  Consumer
	transport Transport
	cfg       Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, transport Transport, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		consumer:  consumer,
		transport: transport,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run reads and settles batches until Stop is called or ctx is done. Read
// errors are logged and retried after ErrorBackoff.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "docwatch.worker"})
	slog.InfoContext(ctx, "worker started", "max_attempts", w.cfg.MaxAttempts)

	for !w.stopped() {
		if err := ctx.Err(); err != nil {
			return err
		}

		messages, err := w.consumer.Read(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "reading notifications failed", "error", err)
			w.pause(ctx, w.cfg.ErrorBackoff)
			continue
		}
		for _, msg := range messages {
			w.Handle(ctx, msg)
		}
	}

	slog.InfoContext(ctx, "worker stopping")
	return nil
}

func (w *Worker) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Worker) pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-timer.C:
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

// Handle delivers one message and settles it. Exported so the reclaimer
// settles reclaimed messages the same way.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	msgID := msg.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: &msgID,
		OwnerID:   logger.Ptr(msg.Notification.OwnerID),
		Token:     logger.Ptr(msg.Notification.Token),
	})

	if err := w.deliverSafe(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "notification delivery failed",
			"error", err,
			"attempt", msg.Attempt)
		w.handleFailedMessage(ctx, msg, err)
		return
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The reclaimer redelivers it; the receiver sees a duplicate.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}
}

func (w *Worker) deliverSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in delivery", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx, span := logger.StartSpan(logger.WithTraceParent(ctx, msg.TraceParent), "worker.deliver",
		attribute.String("messaging.message.id", msg.ID),
		attribute.Int("docwatch.attempt", msg.Attempt))
	defer span.End()

	slog.InfoContext(ctx, "delivering notification",
		"kind", msg.Notification.Kind,
		"attempt", msg.Attempt)

	start := time.Now()
	if err := w.transport.Deliver(ctx, msg.Target, msg.Notification); err != nil {
		span.Fail(err)
		return err
	}

	slog.InfoContext(ctx, "notification delivered",
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if errors.Is(err, ErrUndeliverable) || msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "giving up on notification, sending to DLQ",
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed notification", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
