package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/k-code-yt/go-storefront/internal/jobs"
	"github.com/k-code-yt/go-storefront/pkg/db/postgres"
	"github.com/sirupsen/logrus"
)

type AppConfig struct {
	Port               string
	MetricsPort        string
	WebhookSecret      string
	SignatureTolerance time.Duration
	MaxBodyBytes       int64

	JobsMaxAttempts    int
	JobsBaseBackoff    time.Duration
	JobsMaxBackoff     time.Duration
	JobsConcurrency    int
	JobsHandlerTimeout time.Duration

	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
	ReconcileBatch    int

	LogLevel  string
	LogFormat string
}

func NewAppConfig() *AppConfig {
	return &AppConfig{
		Port:               getEnv("PORT", "3000"),
		MetricsPort:        getEnv("METRICS_PORT", "2112"),
		WebhookSecret:      os.Getenv("STRIPE_WEBHOOK_SECRET"),
		SignatureTolerance: getEnvDuration("STRIPE_SIGNATURE_TOLERANCE", 300*time.Second),
		MaxBodyBytes:       int64(getEnvInt("WEBHOOK_MAX_BODY_BYTES", 1<<20)),

		JobsMaxAttempts:    getEnvInt("JOBS_MAX_ATTEMPTS", jobs.DefaultRetryPolicy.MaxAttempts),
		JobsBaseBackoff:    getEnvDuration("JOBS_BASE_BACKOFF", jobs.DefaultRetryPolicy.BaseDelay),
		JobsMaxBackoff:     getEnvDuration("JOBS_MAX_BACKOFF", jobs.DefaultRetryPolicy.MaxDelay),
		JobsConcurrency:    getEnvInt("JOBS_CONCURRENCY", 4),
		JobsHandlerTimeout: getEnvDuration("JOBS_HANDLER_TIMEOUT", 30*time.Second),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 30*time.Second),
		ReconcileGrace:    getEnvDuration("RECONCILE_GRACE", 2*time.Minute),
		ReconcileBatch:    getEnvInt("RECONCILE_BATCH", 100),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate reports settings the ingest path cannot run without.
func (c *AppConfig) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if c.JobsMaxAttempts < 1 {
		return fmt.Errorf("JOBS_MAX_ATTEMPTS must be positive, got %d", c.JobsMaxAttempts)
	}
	return nil
}

func (c *AppConfig) RetryPolicy() jobs.RetryPolicy {
	return jobs.RetryPolicy{
		MaxAttempts: c.JobsMaxAttempts,
		BaseDelay:   c.JobsBaseBackoff,
		MaxDelay:    c.JobsMaxBackoff,
	}
}

func (c *AppConfig) RunnerConfig() jobs.RunnerConfig {
	return jobs.RunnerConfig{
		Policy:         c.RetryPolicy(),
		Concurrency:    c.JobsConcurrency,
		HandlerTimeout: c.JobsHandlerTimeout,
	}
}

// JobsPostgresConfig points the job ledger at JOBS_DATABASE_URL when set,
// otherwise at the storefront database.
func JobsPostgresConfig(base *postgres.PostgresConfig) *postgres.PostgresConfig {
	cfg := *base
	if url := os.Getenv("JOBS_DATABASE_URL"); url != "" {
		cfg.URL = url
	}
	return &cfg
}

// OpenJobsDB reuses db unless the ledger lives in another database.
func OpenJobsDB(db *sqlx.DB, base *postgres.PostgresConfig) (*sqlx.DB, error) {
	jobsOpts := JobsPostgresConfig(base)
	if jobsOpts.URL == base.URL {
		return db, nil
	}
	return postgres.NewDBConn(jobsOpts)
}

// ConfigureLogger applies LOG_LEVEL and LOG_FORMAT to the standard logrus
// logger.
func ConfigureLogger(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	logrus.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("LOG_FORMAT: unknown format %q", format)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
