package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

func TestFilePath(t *testing.T) {
	os.Setenv("CONFIG_FILE", " /etc/predictor.yaml ")
	defer os.Unsetenv("CONFIG_FILE")

	if got := FilePath(); got != "/etc/predictor.yaml" {
		t.Errorf("unexpected path: %q", got)
	}
}

func TestLoadFile_EmptyPathUsesEnvironment(t *testing.T) {
	os.Setenv("CACHE_LIFETIME", "3m")
	defer os.Unsetenv("CACHE_LIFETIME")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.Lifetime != 3*time.Minute {
		t.Errorf("expected env lifetime, got %v", cfg.Cache.Lifetime)
	}
}

func TestLoadFile_OverlaysEnvironment(t *testing.T) {
	os.Setenv("DASHBOARD_PORT", "9090")
	os.Setenv("DISCORD_BOT_TOKEN", "env-token")
	defer os.Unsetenv("DASHBOARD_PORT")
	defer os.Unsetenv("DISCORD_BOT_TOKEN")

	path := filepath.Join(t.TempDir(), "predictor.yaml")
	writeConfigFile(t, path, `
predictor_api:
  base_url: https://predictor.example.com/
cache:
  lifetime: 90s
dashboard:
  allowed_origins:
    - https://dash.example.com
digest:
  enabled: true
  interval: 30m
discord:
  bot_token: file-token
  prod_channel_id: "123"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.PredictorAPI.BaseURL != "https://predictor.example.com" {
		t.Errorf("expected trimmed base URL, got %q", cfg.PredictorAPI.BaseURL)
	}
	if cfg.Cache.Lifetime != 90*time.Second {
		t.Errorf("expected file lifetime, got %v", cfg.Cache.Lifetime)
	}
	if cfg.Dashboard.Port != 9090 {
		t.Errorf("expected env port to survive, got %d", cfg.Dashboard.Port)
	}
	if len(cfg.Dashboard.AllowedOrigins) != 1 || cfg.Dashboard.AllowedOrigins[0] != "https://dash.example.com" {
		t.Errorf("unexpected origins: %v", cfg.Dashboard.AllowedOrigins)
	}
	if !cfg.Digest.Enabled || cfg.Digest.Interval != 30*time.Minute {
		t.Errorf("unexpected digest config: %+v", cfg.Digest)
	}
	if cfg.Discord.BotToken != "env-token" {
		t.Errorf("expected bot token from env only, got %q", cfg.Discord.BotToken)
	}
	if cfg.Discord.ProdChannelID != "123" {
		t.Errorf("unexpected channel: %q", cfg.Discord.ProdChannelID)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil || !strings.Contains(err.Error(), "read") {
		t.Errorf("expected read error, got %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	writeConfigFile(t, bad, "cache:\n  lifetime: soon\n")
	if _, err := LoadFile(bad); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}
