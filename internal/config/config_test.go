package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8077", cfg.Port)
	assert.Equal(t, "./state", cfg.StateDir)
	assert.Equal(t, "https://api.openai.com", cfg.AIBaseURL)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 10*time.Second, cfg.ResetDelay)
	assert.Equal(t, 5*time.Second, cfg.SettleDelay)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("API_KEY", "  secret  ")
	t.Setenv("ADMIN_URL", "https://billing.example.com/addon.php")
	t.Setenv("RECONNECT_DELAY", "250ms")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "secret", cfg.APIKey, "api key should be trimmed")
	assert.Equal(t, "https://billing.example.com/addon.php", cfg.AdminURL)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	t.Setenv("RESET_DELAY", "not-a-duration")

	cfg := Load()

	assert.Equal(t, 10*time.Second, cfg.ResetDelay)
}
