package config_test

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/docwatch/core/config"
)

var _ = Describe("Load", func() {
	setenv := func(key, value string) {
		prev, had := os.LookupEnv(key)
		Expect(os.Setenv(key, value)).To(Succeed())
		DeferCleanup(func() {
			if had {
				os.Setenv(key, prev)
			} else {
				os.Unsetenv(key)
			}
		})
	}

	BeforeEach(func() {
		setenv("DOCWATCH_ENV", "test")
	})

	It("requires a metadata source for the server", func() {
		setenv("LARK_APP_ID", "")
		setenv("GITLAB_TOKEN", "")

		_, err := config.Load(config.ServiceTypeServer)
		Expect(err).To(MatchError(ContainSubstring("metadata source")))
	})

	It("applies poller defaults", func() {
		setenv("GITLAB_TOKEN", "glpat-test")

		cfg, err := config.Load(config.ServiceTypeServer)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Poller.Interval).To(Equal(time.Minute))
		Expect(cfg.Poller.DebounceWindow).To(Equal(5 * time.Minute))
		Expect(cfg.Poller.AutoPauseThreshold).To(Equal(5))
		Expect(cfg.GitLab.Enabled()).To(BeTrue())
		Expect(cfg.Lark.Enabled()).To(BeFalse())
	})

	It("parses durations and rates", func() {
		setenv("GITLAB_TOKEN", "glpat-test")
		setenv("POLL_INTERVAL", "90s")
		setenv("HEALTH_DEGRADED_ERROR_RATE", "0.1")

		cfg, err := config.Load(config.ServiceTypeServer)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Poller.Interval).To(Equal(90 * time.Second))
		Expect(cfg.Poller.DegradedErrorRate).To(Equal(0.1))
	})

	It("rejects inverted health thresholds", func() {
		setenv("GITLAB_TOKEN", "glpat-test")
		setenv("HEALTH_DEGRADED_ERROR_RATE", "0.6")
		setenv("HEALTH_UNHEALTHY_ERROR_RATE", "0.4")

		_, err := config.Load(config.ServiceTypeServer)
		Expect(err).To(HaveOccurred())
	})

	It("requires a webhook url for the worker", func() {
		setenv("DELIVERY_WEBHOOK_URL", "")

		_, err := config.Load(config.ServiceTypeWorker)
		Expect(err).To(MatchError(ContainSubstring("DELIVERY_WEBHOOK_URL")))
	})
})
