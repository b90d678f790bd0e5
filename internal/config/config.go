package config

import (
	"os"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Shared secret and base URL for the external admin system. Both may be
	// empty at startup; the control API adopts them from the first request
	// that supplies them.
	APIKey   string
	AdminURL string

	// Directory holding session credentials and the singleton lock file.
	StateDir string

	// Endpoints of the external protocol engine hosting the session.
	EngineURL        string
	EngineVersionURL string

	// Base URL of the AI completion provider (OpenAI-compatible).
	AIBaseURL string
	AITimeout time.Duration

	// Lifecycle timing policy.
	ReconnectDelay time.Duration
	ResetDelay     time.Duration
	SettleDelay    time.Duration

	AdminTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8077"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIKey:   strings.TrimSpace(getEnv("API_KEY", "")),
		AdminURL: strings.TrimSpace(getEnv("ADMIN_URL", "")),

		StateDir: getEnv("STATE_DIR", "./state"),

		EngineURL:        getEnv("ENGINE_URL", "ws://127.0.0.1:3441/session"),
		EngineVersionURL: getEnv("ENGINE_VERSION_URL", "http://127.0.0.1:3441/version"),

		AIBaseURL: getEnv("AI_BASE_URL", "https://api.openai.com"),
		AITimeout: getEnvAsDuration("AI_TIMEOUT", 60*time.Second),

		ReconnectDelay: getEnvAsDuration("RECONNECT_DELAY", 5*time.Second),
		ResetDelay:     getEnvAsDuration("RESET_DELAY", 10*time.Second),
		SettleDelay:    getEnvAsDuration("SETTLE_DELAY", 5*time.Second),

		AdminTimeout: getEnvAsDuration("ADMIN_TIMEOUT", 15*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
