package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargepark/backend/services/sessions-service/internal/service"
)

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: "9090"
database:
  dsn: postgres://file
rules:
  parkingGrace: 20m
  banThreshold: 5
fees:
  noShow: 60000
monitors:
  enabled: false
  parkingInterval: 2m
`), 0o600))
	t.Setenv("SESSIONS_POSTGRES_DSN", "postgres://env")
	t.Setenv("SESSIONS_JWT_SECRET", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddress())
	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.NoError(t, cfg.ValidateServe())
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.Monitors.Enabled)
	assert.True(t, cfg.Metrics.Enabled)

	rules := cfg.ServiceRules()
	assert.Equal(t, 20*time.Minute, rules.ParkingGrace)
	assert.Equal(t, 5, rules.BanThreshold)
	assert.Equal(t, service.DefaultRules().NoShowThreshold, rules.NoShowThreshold)

	fees := cfg.FeeSchedule()
	assert.Equal(t, 60000.0, fees.NoShowFee)
	assert.Equal(t, service.DefaultFeeSchedule().CancelFee, fees.CancelFee)

	assert.Equal(t, 2*time.Minute, cfg.MonitorConfig().ParkingInterval)
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SESSIONS_POSTGRES_DSN", "")
	_, err := Load("")
	require.Error(t, err)
}

func TestValidateServeRequiresSecret(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SESSIONS_POSTGRES_DSN", "postgres://env")
	t.Setenv("SESSIONS_JWT_SECRET", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateServe())
	assert.Equal(t, ":8082", cfg.HTTPAddress())
}
