package config

import (
	"testing"
	"time"

	"github.com/k-code-yt/go-storefront/pkg/db/postgres"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppConfigDefaults(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	cfg := NewAppConfig()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "2112", cfg.MetricsPort)
	assert.Equal(t, 300*time.Second, cfg.SignatureTolerance)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 5, cfg.JobsMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.JobsBaseBackoff)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 2*time.Minute, cfg.ReconcileGrace)
	assert.ErrorContains(t, cfg.Validate(), "STRIPE_WEBHOOK_SECRET")
}

func TestNewAppConfigFromEnv(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_x")
	t.Setenv("PORT", "8080")
	t.Setenv("JOBS_MAX_ATTEMPTS", "3")
	t.Setenv("JOBS_MAX_BACKOFF", "1m")
	t.Setenv("JOBS_CONCURRENCY", "not-a-number")

	cfg := NewAppConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 4, cfg.JobsConcurrency)

	rc := cfg.RunnerConfig()
	assert.Equal(t, 3, rc.Policy.MaxAttempts)
	assert.Equal(t, time.Minute, rc.Policy.MaxDelay)
	assert.Equal(t, 30*time.Second, rc.HandlerTimeout)
}

func TestConfigureLogger(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetFormatter(&logrus.TextFormatter{})

	require.NoError(t, ConfigureLogger("debug", "json"))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	assert.Error(t, ConfigureLogger("loud", "text"))
	assert.Error(t, ConfigureLogger("info", "xml"))
}

func TestJobsPostgresConfig(t *testing.T) {
	base := &postgres.PostgresConfig{URL: "postgres://app@db/storefront"}

	t.Setenv("JOBS_DATABASE_URL", "")
	assert.Equal(t, base.URL, JobsPostgresConfig(base).URL)

	t.Setenv("JOBS_DATABASE_URL", "postgres://jobs@queue/jobs")
	jobsCfg := JobsPostgresConfig(base)
	assert.Equal(t, "postgres://jobs@queue/jobs", jobsCfg.URL)
	assert.Equal(t, "postgres://app@db/storefront", base.URL)
}
