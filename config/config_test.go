package config_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jpalmerr/routepulse/config"
)

var _ = Describe("Config", func() {
	var tempDir string

	writeConfig := func(name, content string) string {
		path := filepath.Join(tempDir, name)
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
	})

	AfterEach(func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("SCHEDULER_WATCH_PERIOD")
		os.Unsetenv("SERVER_ENABLED")
	})

	Describe("Load", func() {
		Context("with a minimal config file", func() {
			var cfg *config.Config

			BeforeEach(func() {
				path := writeConfig("routepulse.yaml", `
database:
  url: postgres://localhost/uptime
`)
				var err error
				cfg, err = config.Load(path)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should apply database defaults", func() {
				Expect(cfg.Database.Driver).To(Equal(config.DriverPostgres))
				Expect(cfg.Database.MaxConns).To(Equal(int32(5)))
				Expect(cfg.Database.Migrate).To(BeFalse())
			})

			It("should apply scheduler defaults", func() {
				Expect(cfg.Scheduler.HTTPTimeout).To(Equal(30 * time.Second))
				Expect(cfg.Scheduler.RetryBackoff).To(Equal(500 * time.Millisecond))
				Expect(cfg.Scheduler.WatchPeriod).To(Equal(30 * time.Second))
				Expect(cfg.Scheduler.MaxConcurrency).To(BeZero())
			})

			It("should read routes from the database by default", func() {
				Expect(cfg.Source.Kind).To(Equal(config.SourceDatabase))
			})

			It("should leave the status server disabled", func() {
				Expect(cfg.Server.Enabled).To(BeFalse())
				Expect(cfg.Server.Port).To(Equal(8080))
			})

			It("should default to info text logging", func() {
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelInfo))
				Expect(cfg.Logging.Format).To(Equal(config.LogFormatText))
			})
		})

		Context("with a full config file", func() {
			It("should parse every section", func() {
				path := writeConfig("full.yaml", `
database:
  driver: sqlite
  url: /var/lib/routepulse/routes.db
  migrate: true
  max_conns: 2
source:
  kind: file
  routes_file: /etc/routepulse/routes.yaml
scheduler:
  http_timeout: 5s
  retry_backoff: 250ms
  watch_period: 1m
  max_concurrency: 20
server:
  enabled: true
  port: 9090
logging:
  level: debug
  format: json
`)
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Database).To(Equal(config.DatabaseConfig{
					Driver:   config.DriverSQLite,
					URL:      "/var/lib/routepulse/routes.db",
					Migrate:  true,
					MaxConns: 2,
				}))
				Expect(cfg.Source.RoutesFile).To(Equal("/etc/routepulse/routes.yaml"))
				Expect(cfg.Scheduler.HTTPTimeout).To(Equal(5 * time.Second))
				Expect(cfg.Scheduler.RetryBackoff).To(Equal(250 * time.Millisecond))
				Expect(cfg.Scheduler.WatchPeriod).To(Equal(time.Minute))
				Expect(cfg.Scheduler.MaxConcurrency).To(Equal(20))
				Expect(cfg.Server).To(Equal(config.ServerConfig{Enabled: true, Port: 9090}))
				Expect(cfg.Logging).To(Equal(config.LoggingConfig{Level: "debug", Format: "json"}))
			})
		})

		Context("with environment variables", func() {
			It("should take the database url from DATABASE_URL", func() {
				os.Setenv("DATABASE_URL", "postgres://env/uptime")
				path := writeConfig("empty.yaml", "logging:\n  level: warn\n")

				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Database.URL).To(Equal("postgres://env/uptime"))
			})

			It("should let the environment override the file", func() {
				os.Setenv("SCHEDULER_WATCH_PERIOD", "2m")
				os.Setenv("SERVER_ENABLED", "true")
				path := writeConfig("override.yaml", `
database:
  url: postgres://localhost/uptime
scheduler:
  watch_period: 10s
`)
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Scheduler.WatchPeriod).To(Equal(2 * time.Minute))
				Expect(cfg.Server.Enabled).To(BeTrue())
			})
		})

		Context("without a config path", func() {
			var origDir string

			BeforeEach(func() {
				var err error
				origDir, err = os.Getwd()
				Expect(err).NotTo(HaveOccurred())
				Expect(os.Chdir(tempDir)).To(Succeed())
			})

			AfterEach(func() {
				Expect(os.Chdir(origDir)).To(Succeed())
			})

			It("should find routepulse.yaml in ./config", func() {
				Expect(os.Mkdir(filepath.Join(tempDir, "config"), 0755)).To(Succeed())
				writeConfig("config/routepulse.yaml", "database:\n  url: postgres://found/uptime\n")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Database.URL).To(Equal("postgres://found/uptime"))
			})

			It("should fall back to defaults and environment when no file exists", func() {
				os.Setenv("DATABASE_URL", "postgres://env-only/uptime")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Database.URL).To(Equal("postgres://env-only/uptime"))
			})
		})

		Context("with invalid input", func() {
			It("should fail when an explicit file is missing", func() {
				_, err := config.Load(filepath.Join(tempDir, "absent.yaml"))
				Expect(err).To(MatchError(ContainSubstring("failed to read config file")))
			})

			It("should fail on malformed YAML", func() {
				path := writeConfig("bad.yaml", "database: [")
				_, err := config.Load(path)
				Expect(err).To(HaveOccurred())
			})

			It("should require a database url", func() {
				path := writeConfig("nourl.yaml", "logging:\n  level: info\n")
				_, err := config.Load(path)
				Expect(err).To(MatchError(ContainSubstring("url")))
			})

			DescribeTable("rejecting invalid values",
				func(content, field string) {
					path := writeConfig("invalid.yaml", "database:\n  url: postgres://localhost/uptime\n"+content)
					_, err := config.Load(path)
					Expect(err).To(MatchError(ContainSubstring(field)))
				},
				Entry("unknown driver", "  driver: mysql\n", "driver"),
				Entry("unknown source kind", "source:\n  kind: consul\n", "kind"),
				Entry("file source without a path", "source:\n  kind: file\n", "routes_file"),
				Entry("zero http timeout", "scheduler:\n  http_timeout: 0s\n", "http_timeout"),
				Entry("negative backoff", "scheduler:\n  retry_backoff: -1s\n", "retry_backoff"),
				Entry("sub-second watch period", "scheduler:\n  watch_period: 100ms\n", "watch_period"),
				Entry("negative concurrency", "scheduler:\n  max_concurrency: -1\n", "max_concurrency"),
				Entry("server port out of range", "server:\n  enabled: true\n  port: 70000\n", "port"),
				Entry("unknown log level", "logging:\n  level: verbose\n", "level"),
				Entry("unknown log format", "logging:\n  format: xml\n", "format"),
			)
		})
	})

	Describe("Validate", func() {
		It("should ignore the port while the server is disabled", func() {
			cfg := config.Config{
				Database:  config.DatabaseConfig{Driver: config.DriverPostgres, URL: "postgres://x"},
				Source:    config.SourceConfig{Kind: config.SourceDatabase},
				Scheduler: config.SchedulerConfig{HTTPTimeout: time.Second, WatchPeriod: time.Second},
				Server:    config.ServerConfig{Enabled: false, Port: -1},
			}
			Expect(cfg.Validate()).To(Succeed())
		})
	})

	Describe("LoggingConfig.NewLogger", func() {
		It("should write JSON at the configured level", func() {
			var buf bytes.Buffer
			logger := config.LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

			logger.Info("hidden")
			logger.Warn("shown", "route_id", "a")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			Expect(lines).To(HaveLen(1))

			var entry map[string]any
			Expect(json.Unmarshal([]byte(lines[0]), &entry)).To(Succeed())
			Expect(entry).To(HaveKeyWithValue("msg", "shown"))
			Expect(entry).To(HaveKeyWithValue("route_id", "a"))
		})

		It("should fall back to info text logging", func() {
			var buf bytes.Buffer
			logger := config.LoggingConfig{Level: "chatty"}.NewLogger(&buf)

			logger.Debug("hidden")
			logger.Info("shown")

			Expect(buf.String()).To(ContainSubstring("msg=shown"))
			Expect(buf.String()).NotTo(ContainSubstring("hidden"))
		})
	})
})
