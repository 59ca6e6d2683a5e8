package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load("")

	assert.Equal(t, "tcp://127.0.0.1:1883", cfg.LocalBroker)
	assert.Equal(t, []string{"gateway/#", "gps", "bike/light"}, cfg.LocalTopics)
	assert.Equal(t, "gateway/", cfg.InboundPrefix)
	assert.Equal(t, "sensors/", cfg.OutboundPrefix)
	assert.Equal(t, map[string]string{
		"gps":        "sensors/pi9/gps",
		"bike/light": "sensors/light/brightness",
	}, cfg.TopicAliases)
	assert.Equal(t, "pi9", cfg.FallbackDeviceID)
	assert.Equal(t, 10*time.Second, cfg.RateLimitCooldown)
	assert.Equal(t, 10.0, cfg.TheftThresholdMeters)
	assert.Equal(t, 5*time.Second, cfg.WebhookTimeout)
	assert.False(t, cfg.RedisEnabled)
	assert.False(t, cfg.DBEnabled)
	assert.Empty(t, cfg.JobAPIURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_COOLDOWN", "30s")
	t.Setenv("THEFT_THRESHOLD_METERS", "25.5")
	t.Setenv("TOPIC_ALIASES", "gps=cloud/bike/gps, broken ,x=")
	t.Setenv("GPS_TOPICS", "gateway/pi3/gps")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("JOB_API_URL", "https://bike-api.example.dev/")

	cfg := Load("")

	assert.Equal(t, 30*time.Second, cfg.RateLimitCooldown)
	assert.Equal(t, 25.5, cfg.TheftThresholdMeters)
	assert.Equal(t, map[string]string{"gps": "cloud/bike/gps"}, cfg.TopicAliases)
	assert.True(t, cfg.IsGPSTopic("gateway/pi3/gps"))
	assert.False(t, cfg.IsGPSTopic("gps"))
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "https://bike-api.example.dev", cfg.JobAPIURL)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_COOLDOWN", "ten seconds")
	t.Setenv("NOTIFY_WORKERS", "many")
	t.Setenv("DB_ENABLED", "maybe")
	t.Setenv("THEFT_THRESHOLD_METERS", "far")

	cfg := Load("")

	assert.Equal(t, 10*time.Second, cfg.RateLimitCooldown)
	assert.Equal(t, 2, cfg.NotifyWorkers)
	assert.False(t, cfg.DBEnabled)
	assert.Equal(t, 10.0, cfg.TheftThresholdMeters)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FALLBACK_DEVICE_ID=pi4\n"), 0o600))
	// godotenv never overrides a variable that exists, even empty
	t.Setenv("FALLBACK_DEVICE_ID", "")
	require.NoError(t, os.Unsetenv("FALLBACK_DEVICE_ID"))

	cfg := Load(path)
	assert.Equal(t, "pi4", cfg.FallbackDeviceID)
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.Equal(t, "pi9", cfg.FallbackDeviceID)
}
