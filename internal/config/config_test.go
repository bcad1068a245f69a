package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/omnicore")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, RoleAll, cfg.Role)
	assert.Equal(t, ModeQueued, cfg.Queue.Mode)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.BackoffBase)
	assert.Equal(t, 100, cfg.Queue.CompletedHistory)
	assert.Equal(t, 60*time.Second, cfg.Dedup.Window)
	assert.Equal(t, 120*time.Second, cfg.Dedup.SweepInterval)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, "/api/v0", cfg.API.BasePath)
	assert.True(t, cfg.Telegram.Polling)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/omnicore")
	t.Setenv("QUEUE_MODE", ModeSync)
	t.Setenv("QUEUE_BACKOFF_BASE", "500ms")
	t.Setenv("SMTP_SECURE", "true")
	t.Setenv("ROLE", RoleAPI)
	t.Setenv("TELEGRAM_POLLING", "false")
	t.Setenv("TELEGRAM_BOT_USERNAME", "omnicore_bot")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeSync, cfg.Queue.Mode)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.BackoffBase)
	assert.True(t, cfg.Email.SMTPSecure)
	assert.Equal(t, RoleAPI, cfg.Role)
	assert.False(t, cfg.Telegram.Polling)
	assert.Equal(t, "omnicore_bot", cfg.Telegram.BotUsername)
}

func TestValidateReportsMissing(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Kafka.Broker = "localhost:9092"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
	assert.Contains(t, err.Error(), "REDIS_ADDR")
	assert.Contains(t, err.Error(), "KAFKA_TOPIC")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.DB.DSN = "postgres://localhost/omnicore"
	cfg.Queue.Mode = "batch"

	assert.ErrorContains(t, cfg.Validate(), "QUEUE_MODE")
}
