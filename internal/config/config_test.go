package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marlowe.yaml")

	content := `
api:
  base_url: http://localhost:8000/v1
  api_key: ${MARLOWE_TEST_KEY}
  model: test-model
  max_turns: 8
  system_prompt: "You are a test."
channels:
  cli:
    enabled: true
  discord:
    token: abc123
shell:
  enabled: true
  default_timeout_sec: 10
data_dir: /tmp/marlowe
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MARLOWE_TEST_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:8000/v1" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, env expansion failed", cfg.API.APIKey)
	}
	if cfg.API.MaxTurns != 8 {
		t.Errorf("MaxTurns = %d, want 8", cfg.API.MaxTurns)
	}
	if cfg.Channels.Discord.Token != "abc123" {
		t.Errorf("Discord token = %q", cfg.Channels.Discord.Token)
	}
	if !cfg.Shell.Enabled {
		t.Error("Shell.Enabled = false, want true")
	}
	if cfg.Channels.MQTT.TopicPrefix != "marlowe" {
		t.Errorf("MQTT topic prefix default = %q", cfg.Channels.MQTT.TopicPrefix)
	}
}

func TestLoadDefaultsMaxTurns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marlowe.yaml")
	if err := os.WriteFile(path, []byte("api:\n  model: m\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.MaxTurns != 20 {
		t.Errorf("MaxTurns = %d, want default 20", cfg.API.MaxTurns)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/marlowe.yaml"); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
