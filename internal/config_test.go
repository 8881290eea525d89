package internal

import (
	"os"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			AllowedOrigins:    "https://app.example.com, *",
			ReadHeaderTimeout: time.Second,
			ReadTimeout:       5 * time.Second,
		},
		Database: DatabaseConfig{Source: "postgres://localhost/db", MaxOpenConns: 10, MaxIdleConns: 2},
		Security: SecurityConfig{
			JWTAccessSecret:  "0123456789abcdef-access",
			JWTRefreshSecret: "0123456789abcdef-refresh",
			BCryptCost:       10,
		},
		Observability: ObservabilityConfig{Logging: LoggingConfig{Level: "info", Format: "json"}},
		Workflow:      WorkflowConfig{LevelOnAmountChange: LevelOnAmountChangeRaiseOnly, DefaultDuplicateWindowDays: 30},
		RateLimit:     RateLimitConfig{Enabled: true, Requests: 5, Window: time.Minute},
	}
}

var _ = ginkgo.Describe("Config", func() {
	ginkgo.It("accepts a complete configuration", func() {
		gomega.Expect(validConfig().Validate()).To(gomega.Succeed())
	})

	ginkgo.DescribeTable("rejects broken sections",
		func(mutate func(*Config), fragment string) {
			cfg := validConfig()
			mutate(cfg)
			err := cfg.Validate()
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(err.Error()).To(gomega.ContainSubstring(fragment))
		},
		ginkgo.Entry("missing database source", func(c *Config) { c.Database.Source = "" }, "database config"),
		ginkgo.Entry("idle above open", func(c *Config) { c.Database.MaxIdleConns = 20 }, "max_idle_conns"),
		ginkgo.Entry("short secret", func(c *Config) { c.Security.JWTAccessSecret = "short" }, "jwt_access_secret"),
		ginkgo.Entry("shared secret", func(c *Config) { c.Security.JWTRefreshSecret = c.Security.JWTAccessSecret }, "must differ"),
		ginkgo.Entry("bcrypt out of range", func(c *Config) { c.Security.BCryptCost = 4 }, "bcrypt_cost"),
		ginkgo.Entry("unknown log level", func(c *Config) { c.Observability.Logging.Level = "trace" }, "logging config"),
		ginkgo.Entry("unknown amount policy", func(c *Config) { c.Workflow.LevelOnAmountChange = "float" }, "level_on_amount_change"),
		ginkgo.Entry("bad webhook", func(c *Config) { c.Notification.WebhookURL = "not a url" }, "webhook_url"),
		ginkgo.Entry("zero rate limit", func(c *Config) { c.RateLimit.Requests = 0 }, "rate limit config"),
		ginkgo.Entry("read timeout below header timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, "read_timeout"),
	)

	ginkgo.It("ignores rate limit settings when disabled", func() {
		cfg := validConfig()
		cfg.RateLimit = RateLimitConfig{Enabled: false}
		gomega.Expect(cfg.Validate()).To(gomega.Succeed())
	})

	ginkgo.Describe("LoadConfigFromEnv", func() {
		setenv := func(key, value string) {
			gomega.Expect(os.Setenv(key, value)).To(gomega.Succeed())
			ginkgo.DeferCleanup(os.Unsetenv, key)
		}

		ginkgo.It("falls back to defaults", func() {
			cfg := LoadConfigFromEnv()
			gomega.Expect(cfg.Server.Port).To(gomega.Equal(8080))
			gomega.Expect(cfg.Workflow.LevelOnAmountChange).To(gomega.Equal(LevelOnAmountChangeFixed))
			gomega.Expect(cfg.RateLimit.Window).To(gomega.Equal(time.Minute))
		})

		ginkgo.It("reads typed overrides and skips malformed ones", func() {
			setenv("PORT", "9090")
			setenv("RATE_LIMIT_ENABLED", "false")
			setenv("NOTIFICATION_INITIAL_BACKOFF", "2s")
			setenv("NOTIFICATION_WORKERS", "many")

			cfg := LoadConfigFromEnv()
			gomega.Expect(cfg.Server.Port).To(gomega.Equal(9090))
			gomega.Expect(cfg.RateLimit.Enabled).To(gomega.BeFalse())
			gomega.Expect(cfg.Notification.InitialBackoff).To(gomega.Equal(2 * time.Second))
			gomega.Expect(cfg.Notification.Workers).To(gomega.Equal(4))
		})
	})
})
