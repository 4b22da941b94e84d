package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod" yaml:"is_prod"`

	// Predictor backend API
	PredictorAPI PredictorAPIConfig `json:"predictor_api" yaml:"predictor_api"`

	// Data access cache
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Dashboard HTTP server
	Dashboard DashboardConfig `json:"dashboard" yaml:"dashboard"`

	// Trending picks digest
	Digest DigestConfig `json:"digest" yaml:"digest"`

	// Discord
	Discord DiscordConfig `json:"discord" yaml:"discord"`

	// Telegram
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

// PredictorAPIConfig holds backend API configuration.
type PredictorAPIConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// CacheConfig holds data access cache configuration.
type CacheConfig struct {
	Lifetime time.Duration `json:"lifetime" yaml:"lifetime"` // How long a fetched resource is served from memory
}

// DashboardConfig holds dashboard server configuration.
type DashboardConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	Port           int           `json:"port" yaml:"port"`
	AllowedOrigins []string      `json:"allowed_origins" yaml:"allowed_origins"`
	PushInterval   time.Duration `json:"push_interval" yaml:"push_interval"` // Websocket performance snapshot interval
}

// DigestConfig holds trending digest configuration.
type DigestConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Interval     time.Duration `json:"interval" yaml:"interval"`
	DashboardURL string        `json:"dashboard_url" yaml:"dashboard_url"` // Linked from digest messages when set
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	BotToken      string `json:"-" yaml:"-"` // Excluded - env var only
	ProdChannelID string `json:"prod_channel_id" yaml:"prod_channel_id"`
	BetaChannelID string `json:"beta_channel_id" yaml:"beta_channel_id"`
}

// TelegramConfig holds Telegram-related configuration.
type TelegramConfig struct {
	BotToken   string `json:"-" yaml:"-"` // Excluded - env var only
	ProdChatID string `json:"prod_chat_id" yaml:"prod_chat_id"`
	BetaChatID string `json:"beta_chat_id" yaml:"beta_chat_id"`
}

// Clone creates a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Dashboard.AllowedOrigins != nil {
		clone.Dashboard.AllowedOrigins = make([]string, len(c.Dashboard.AllowedOrigins))
		copy(clone.Dashboard.AllowedOrigins, c.Dashboard.AllowedOrigins)
	}
	return &clone
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd: false,
		PredictorAPI: PredictorAPIConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Lifetime: 5 * time.Minute,
		},
		Dashboard: DashboardConfig{
			Enabled:        true,
			Port:           8080,
			AllowedOrigins: []string{"*"},
			PushInterval:   30 * time.Second,
		},
		Digest: DigestConfig{
			Enabled:  false,
			Interval: 1 * time.Hour,
		},
	}
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		PredictorAPI: PredictorAPIConfig{
			BaseURL: strings.TrimRight(envString("PREDICTOR_API_URL", "http://localhost:5000"), "/"),
			Timeout: envDuration("PREDICTOR_API_TIMEOUT", 30*time.Second),
		},

		Cache: CacheConfig{
			Lifetime: envDuration("CACHE_LIFETIME", 5*time.Minute),
		},

		Dashboard: DashboardConfig{
			Enabled:        envBoolDefault("DASHBOARD_ENABLED", true),
			Port:           envInt("DASHBOARD_PORT", 8080),
			AllowedOrigins: envStringSliceDefault("DASHBOARD_ALLOWED_ORIGINS", []string{"*"}),
			PushInterval:   envDuration("DASHBOARD_PUSH_INTERVAL", 30*time.Second),
		},

		Digest: DigestConfig{
			Enabled:      envBoolDefault("DIGEST_ENABLED", false),
			Interval:     envDuration("DIGEST_INTERVAL", 1*time.Hour),
			DashboardURL: envString("DIGEST_DASHBOARD_URL", ""),
		},

		Discord: DiscordConfig{
			BotToken:      envString("DISCORD_BOT_TOKEN", ""),
			ProdChannelID: envString("DISCORD_PROD_CHANNEL_ID", ""),
			BetaChannelID: envString("DISCORD_BETA_CHANNEL_ID", ""),
		},

		Telegram: TelegramConfig{
			BotToken:   envString("TELEGRAM_BOT_KEY", ""),
			ProdChatID: envString("TELEGRAM_PROD_CHAT_ID", ""),
			BetaChatID: envString("TELEGRAM_BETA_CHAT_ID", ""),
		},
	}
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}

func envStringSliceDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
