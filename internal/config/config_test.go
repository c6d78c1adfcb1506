package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/hub-sales-bot/types"
)

var allKeys = []string{
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_USERNAME", "CLUB_CHANNEL_ID", "ADMIN_USER_IDS", "DATABASE_URL",
	"POSTGRES_HOST", "USE_MEMORY_STORE", "REDIS_ADDR", "REDIS_DB", "BEDROCK_ALT_MODEL_IDS",
	"LLM_CALL_TIMEOUT", "BROADCAST_RATE_PER_SECOND", "HTTP_ADDR", "PUBLIC_BASE_URL", "GRACE_PERIOD_DAYS",
	"SWEEP_INTERVAL", "ACCESS_LINK_TTL", "LOG_LEVEL", "STRIPE_STATIC_PREMIUM_LINK",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 25, cfg.BroadcastRatePerSecond)
	assert.Equal(t, 3, cfg.GracePeriodDays)
	assert.Equal(t, 72*time.Hour, cfg.GracePeriod())
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.AccessLinkTTL)
	assert.Equal(t, 30*time.Second, cfg.LLMCallTimeout)
	assert.Equal(t, "hub", cfg.RedisPrefix)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.AdminUserIDs)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_USERNAME", "@hub_sales_bot")
	t.Setenv("CLUB_CHANNEL_ID", "-1001234567890")
	t.Setenv("ADMIN_USER_IDS", "111, 222,oops,")
	t.Setenv("BEDROCK_ALT_MODEL_IDS", "model-a,model-b")
	t.Setenv("GRACE_PERIOD_DAYS", "5")
	t.Setenv("SWEEP_INTERVAL", "15m")
	t.Setenv("PUBLIC_BASE_URL", "https://hub.example/")
	t.Setenv("USE_MEMORY_STORE", "true")

	cfg := Load()
	assert.Equal(t, "hub_sales_bot", cfg.TelegramBotUsername)
	assert.Equal(t, int64(-1001234567890), cfg.ClubChannelID)
	assert.Equal(t, []int64{111, 222}, cfg.AdminUserIDs)
	assert.True(t, cfg.IsAdmin(222))
	assert.False(t, cfg.IsAdmin(333))
	assert.Equal(t, []string{"model-a", "model-b"}, cfg.BedrockAltModelIDs)
	assert.Equal(t, 5*24*time.Hour, cfg.GracePeriod())
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.Equal(t, "https://hub.example", cfg.PublicBaseURL)
	assert.True(t, cfg.UseMemoryStore)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SWEEP_INTERVAL", "hourly")
	t.Setenv("REDIS_DB", "x")

	cfg := Load()
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestValidate(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("USE_MEMORY_STORE", "true")
		err := Load().Validate()
		var missing *types.ConfigMissingError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "TELEGRAM_BOT_TOKEN", missing.Setting)
	})

	t.Run("missing database", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
		err := Load().Validate()
		var missing *types.ConfigMissingError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "DATABASE_URL", missing.Setting)
	})

	t.Run("postgres host is enough", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
		t.Setenv("POSTGRES_HOST", "db")
		assert.NoError(t, Load().Validate())
	})

	t.Run("out of range values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
		t.Setenv("DATABASE_URL", "postgres://localhost/hub")
		t.Setenv("BROADCAST_RATE_PER_SECOND", "100")
		t.Setenv("LOG_LEVEL", "loud")
		err := Load().Validate()
		require.Error(t, err)
		assert.NotErrorIs(t, err, types.ErrConfigMissing)
		assert.Contains(t, err.Error(), "BROADCAST_RATE_PER_SECOND")
		assert.Contains(t, err.Error(), "LOG_LEVEL")
	})
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nHTTP_ADDR=:9090\nexport LOG_LEVEL=\"debug\"\n"), 0o600))
	t.Setenv("HTTP_ADDR", ":7070")
	require.NoError(t, os.Unsetenv("LOG_LEVEL"))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, ":7070", os.Getenv("HTTP_ADDR"))
	assert.Equal(t, "debug", os.Getenv("LOG_LEVEL"))

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, LoadEnvFile(""))
}
