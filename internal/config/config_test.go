package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("MAX_RECORDING_SECONDS", "")
	t.Setenv("STORAGE_TYPE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 300*time.Second, cfg.Session.MaxRecording)
	assert.Equal(t, 800*time.Millisecond, cfg.Session.TextSaveDebounce)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, "minio", cfg.Storage.Type)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("MAX_TIMED_SECONDS", "120")
	t.Setenv("AUTH_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")
	t.Setenv("SESSION_IDLE_MINUTES", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 2*time.Minute, cfg.Session.MaxTimedQuestion)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Events.GetKafkaBrokers())
	assert.Equal(t, int64(100*1024*1024), cfg.Session.MaxUploadBytes)
	assert.Equal(t, 5*time.Minute, cfg.Session.IdleTimeout)
}
