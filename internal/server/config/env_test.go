package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv_OverridesFromEnvironment(t *testing.T) {
	orig := loadDotEnv
	loadDotEnv = func() error { return nil }
	t.Cleanup(func() { loadDotEnv = orig })

	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("WEBHOOK_TOLERANCE", "90s")
	t.Setenv("REDIS_DB", "4")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, ":9999", cfg.EndpointAddrHTTP)
	assert.Equal(t, "whsec_env", cfg.PaymentWebhookSecret)
	assert.Equal(t, 90*time.Second, cfg.WebhookTolerance)
	assert.Equal(t, 4, cfg.RedisDB)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParseEnv_BadDurationPanics(t *testing.T) {
	orig := loadDotEnv
	loadDotEnv = func() error { return nil }
	t.Cleanup(func() { loadDotEnv = orig })

	t.Setenv("REQUEST_TIMEOUT", "forever")
	require.Panics(t, func() { parseEnv(&Config{}) })
}

func TestParseEnv_ReadsDotEnvFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("IDENTITY_WEBHOOK_SECRET=whsec_file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("IDENTITY_WEBHOOK_SECRET") })

	os.Args = []string{"testbin", "-env", path}

	cfg := &Config{}
	parseEnv(cfg)

	assert.Equal(t, "whsec_file", cfg.IdentityWebhookSecret)
}
