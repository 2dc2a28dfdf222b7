package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/docwatch/common/logger"
)

type ConsumerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	DLQStream string
	BatchSize int64
	// Block bounds each XREADGROUP call so Stop is noticed promptly.
	Block        time.Duration
	RequeueDelay time.Duration
}

// RedisConsumer reads notifications through a consumer group. Every way of
// settling a message (Ack, Requeue, SendDLQ) removes it from the group's
// pending list.
type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

// NewRedisConsumer creates the consumer group (and stream) if missing. The
// group starts at "0" so notifications enqueued before the first worker ever
// ran are still delivered.
func NewRedisConsumer(ctx context.Context, client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("creating consumer group %s on %s: %w", cfg.Group, cfg.Stream, err)
	}
	return &RedisConsumer{client: client, cfg: cfg}, nil
}

// Read returns up to BatchSize never-delivered messages, waiting at most
// Block. Entries that fail to parse are acked and skipped.
func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "docwatch.queue.consumer"})

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup (stream=%s): %w", c.cfg.Stream, err)
	}

	var out []Message
	for _, s := range streams {
		out = append(out, c.decode(ctx, s.Messages)...)
	}
	return out, nil
}

func (c *RedisConsumer) decode(ctx context.Context, entries []redis.XMessage) []Message {
	msgs := make([]Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := ParseMessage(entry)
		if err != nil {
			slog.ErrorContext(ctx, "dropping malformed stream entry",
				"error", err,
				"entry_id", entry.ID)
			if ackErr := c.Ack(ctx, Message{ID: entry.ID, Raw: entry}); ackErr != nil {
				slog.WarnContext(ctx, "failed to ack malformed entry", "error", ackErr, "entry_id", entry.ID)
			}
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func (c *RedisConsumer) Ack(ctx context.Context, msg Message) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack %s (stream=%s): %w", msg.ID, c.cfg.Stream, err)
	}
	return nil
}

// Requeue appends a copy of msg with the attempt counter bumped and acks the
// original, both in one MULTI/EXEC so the notification is never lost or
// doubled by a crash in between. It waits RequeueDelay first.
func (c *RedisConsumer) Requeue(ctx context.Context, msg Message, errMsg string) error {
	values, err := messageValues(msg.Target, msg.Notification, msg.Attempt+1, msg.TraceParent)
	if err != nil {
		return err
	}
	if errMsg != "" {
		values["last_error"] = errMsg
	}

	if c.cfg.RequeueDelay > 0 {
		timer := time.NewTimer(c.cfg.RequeueDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := c.moveTo(ctx, c.cfg.Stream, msg, values); err != nil {
		return fmt.Errorf("requeueing %s: %w", msg.ID, err)
	}
	slog.InfoContext(ctx, "notification requeued", "next_attempt", msg.Attempt+1, "reason", errMsg)
	return nil
}

// SendDLQ moves msg to the dead-letter stream with the final error attached.
func (c *RedisConsumer) SendDLQ(ctx context.Context, msg Message, errMsg string) error {
	values, err := messageValues(msg.Target, msg.Notification, msg.Attempt, msg.TraceParent)
	if err != nil {
		return err
	}
	values["error"] = errMsg
	values["source_id"] = msg.ID

	if err := c.moveTo(ctx, c.cfg.DLQStream, msg, values); err != nil {
		return fmt.Errorf("dead-lettering %s: %w", msg.ID, err)
	}
	slog.ErrorContext(ctx, "notification dead-lettered",
		"final_error", errMsg,
		"dlq_stream", c.cfg.DLQStream)
	return nil
}

func (c *RedisConsumer) moveTo(ctx context.Context, stream string, msg Message, values map[string]any) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values})
		pipe.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("xadd+xack (stream=%s): %w", stream, err)
	}
	return nil
}
