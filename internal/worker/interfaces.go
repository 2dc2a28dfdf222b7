package worker

import (
	"context"

	"basegraph.app/docwatch/internal/model"
	"basegraph.app/docwatch/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// Transport delivers a notification to its target.
type Transport interface {
	Deliver(ctx context.Context, target string, n model.Notification) error
}
