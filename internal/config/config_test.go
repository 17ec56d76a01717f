package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.False(t, cfg.AllowNegativeTill)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
store_driver: bolt
bolt_path: /var/lib/ledger.db
max_attempts: 8
idempotency_ttl: 2h
alert_email_to:
  - accounts@example.com
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("LEDGER_ALLOW_NEGATIVE_TILL", "true")
	t.Setenv("ALERT_EMAIL_TO", "a@example.com, b@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, DriverBolt, cfg.StoreDriver)
	assert.Equal(t, "/var/lib/ledger.db", cfg.BoltPath)
	assert.Equal(t, 8, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Hour, cfg.IdempotencyTTL)
	assert.True(t, cfg.AllowNegativeTill)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.AlertEmailTo)
}

func TestLoad_BadEnvValues(t *testing.T) {
	t.Setenv("LEDGER_MAX_ATTEMPTS", "many")
	t.Setenv("IDEMPOTENCY_TTL", "forever")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEDGER_MAX_ATTEMPTS")
	assert.Contains(t, err.Error(), "IDEMPOTENCY_TTL")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	require.NoError(t, cfg.Validate())

	cfg.StoreDriver = "sqlite"
	cfg.MaxAttempts = 0
	cfg.LogFormat = "text"
	cfg.SMTPHost = "smtp.example.com"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"store_driver", "max_attempts", "log_format", "alert_email_to"} {
		assert.Contains(t, err.Error(), want)
	}
}
