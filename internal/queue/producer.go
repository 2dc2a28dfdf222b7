package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.app/docwatch/common/logger"
	"basegraph.app/docwatch/internal/model"
)

// NotificationProducer is the poller's notifier. A successful XADD means the
// notification is persisted in the stream and will be delivered by the
// worker, so the poller may advance the baseline.
type NotificationProducer struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewNotificationProducer returns a producer appending to stream. maxLen caps
// the stream approximately; 0 leaves it unbounded.
func NewNotificationProducer(client *redis.Client, stream string, maxLen int64) *NotificationProducer {
	return &NotificationProducer{client: client, stream: stream, maxLen: maxLen}
}

func (p *NotificationProducer) Send(ctx context.Context, target string, n model.Notification) error {
	values, err := messageValues(target, n, 1, logger.TraceParent(ctx))
	if err != nil {
		return err
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: p.maxLen > 0,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	slog.InfoContext(ctx, "notification enqueued",
		"stream_id", id,
		"kind", n.Kind,
		"owner_id", n.OwnerID,
		"token", n.Token)
	return nil
}

func (p *NotificationProducer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
