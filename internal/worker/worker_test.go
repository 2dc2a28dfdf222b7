package worker_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/docwatch/internal/model"
	"basegraph.app/docwatch/internal/queue"
	"basegraph.app/docwatch/internal/worker"
)

var _ = Describe("Worker", func() {
	var (
		ctx       context.Context
		consumer  *mockConsumer
		transport *mockTransport
		w         *worker.Worker
	)

	message := func(id string, attempt int) queue.Message {
		return queue.Message{
			ID:      id,
			Target:  "oc_chat",
			Attempt: attempt,
			Notification: model.Notification{
				Token:   "docx:abc",
				OwnerID: "owner-1",
				Kind:    model.NotificationTimeUpdated,
			},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		consumer = &mockConsumer{}
		transport = &mockTransport{}
		w = worker.New(consumer, transport, worker.Config{MaxAttempts: 3})
	})

	It("acks delivered notifications", func() {
		var got []string
		transport.deliverFn = func(_ context.Context, target string, n model.Notification) error {
			got = append(got, target+"/"+n.Token)
			return nil
		}

		w.Handle(ctx, message("1-0", 1))

		Expect(got).To(Equal([]string{"oc_chat/docx:abc"}))
		Expect(consumer.Acked()).To(Equal([]string{"1-0"}))
		Expect(consumer.requeued).To(BeEmpty())
	})

	It("requeues retryable failures", func() {
		transport.deliverFn = func(context.Context, string, model.Notification) error {
			return errors.New("webhook returned 503")
		}

		w.Handle(ctx, message("1-0", 1))

		Expect(consumer.requeued).To(Equal([]string{"1-0"}))
		Expect(consumer.reasons).To(ConsistOf(ContainSubstring("503")))
		Expect(consumer.Acked()).To(BeEmpty())
	})

	It("dead-letters after the last attempt", func() {
		transport.deliverFn = func(context.Context, string, model.Notification) error {
			return errors.New("webhook returned 503")
		}

		w.Handle(ctx, message("1-0", 3))

		Expect(consumer.dlq).To(Equal([]string{"1-0"}))
		Expect(consumer.requeued).To(BeEmpty())
	})

	It("dead-letters undeliverable notifications immediately", func() {
		transport.deliverFn = func(context.Context, string, model.Notification) error {
			return fmt.Errorf("%w: webhook returned 400", worker.ErrUndeliverable)
		}

		w.Handle(ctx, message("1-0", 1))

		Expect(consumer.dlq).To(Equal([]string{"1-0"}))
	})

	It("turns a panicking transport into a retry", func() {
		transport.deliverFn = func(context.Context, string, model.Notification) error {
			panic("boom")
		}

		Expect(func() { w.Handle(ctx, message("1-0", 1)) }).NotTo(Panic())
		Expect(consumer.requeued).To(Equal([]string{"1-0"}))
	})

	It("processes batches until stopped", func() {
		consumer.batches = [][]queue.Message{
			{message("1-0", 1), message("2-0", 1)},
			{message("3-0", 1)},
		}

		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		Eventually(consumer.Acked).Should(Equal([]string{"1-0", "2-0", "3-0"}))
		w.Stop()
		Eventually(done).Should(Receive(BeNil()))
	})
})
