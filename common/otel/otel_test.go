package otel_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/docwatch/common/otel"
	"basegraph.app/docwatch/core/config"
)

var _ = Describe("ParseHeaders", func() {
	It("parses comma separated pairs", func() {
		Expect(otel.ParseHeaders("authorization=Bearer x, x-team = docs")).To(Equal(map[string]string{
			"authorization": "Bearer x",
			"x-team":        "docs",
		}))
	})

	It("keeps '=' inside values", func() {
		Expect(otel.ParseHeaders("sig=a=b")).To(HaveKeyWithValue("sig", "a=b"))
	})

	It("returns an empty map for empty input", func() {
		Expect(otel.ParseHeaders("")).To(BeEmpty())
	})
})

var _ = Describe("Setup", func() {
	It("is disabled without an endpoint", func() {
		t, err := otel.Setup(context.Background(), config.OTelConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(BeNil())
	})
})
