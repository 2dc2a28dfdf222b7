package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/docwatch/common/logger"
)

var _ = Describe("TraceHandler", func() {
	var (
		buf *bytes.Buffer
		log *slog.Logger
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		log = slog.New(logger.NewTraceHandler(slog.NewJSONHandler(buf, nil)))
	})

	record := func() map[string]any {
		var out map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &out)).To(Succeed())
		return out
	}

	It("adds context fields, newest values winning", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			OwnerID:   logger.Ptr("owner-1"),
			Token:     logger.Ptr("old"),
			Component: "docwatch.poller",
		})
		ctx = logger.WithLogFields(ctx, logger.LogFields{Token: logger.Ptr("docx:abc")})

		log.InfoContext(ctx, "hello")

		out := record()
		Expect(out["owner_id"]).To(Equal("owner-1"))
		Expect(out["token"]).To(Equal("docx:abc"))
		Expect(out["component"]).To(Equal("docwatch.poller"))
		Expect(out).NotTo(HaveKey("cycle_id"))
	})

	It("adds trace ids from a propagated traceparent", func() {
		ctx := logger.WithTraceParent(context.Background(), "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

		log.InfoContext(ctx, "hello")

		out := record()
		Expect(out["trace_id"]).To(Equal("4bf92f3577b34da6a3ce929d0e0e4736"))
		Expect(out["span_id"]).To(Equal("00f067aa0ba902b7"))
	})
})

var _ = Describe("trace propagation", func() {
	It("round-trips a traceparent", func() {
		tp := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
		Expect(logger.TraceParent(logger.WithTraceParent(context.Background(), tp))).To(Equal(tp))
	})

	It("ignores garbage", func() {
		ctx := logger.WithTraceParent(context.Background(), "not-a-traceparent")
		Expect(logger.TraceParent(ctx)).To(BeEmpty())
	})

	It("is empty without a span", func() {
		Expect(logger.TraceParent(context.Background())).To(BeEmpty())
	})
})

var _ = Describe("Truncate", func() {
	It("keeps short strings", func() {
		Expect(logger.Truncate("abc", 5)).To(Equal("abc"))
	})

	It("marks cut strings", func() {
		Expect(logger.Truncate("abcdef", 3)).To(Equal("abc..."))
	})
})
