// Package config handles Marlowe configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./marlowe.yaml, ~/.config/marlowe/marlowe.yaml, /etc/marlowe/marlowe.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"marlowe.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "marlowe", "marlowe.yaml"))
	}

	paths = append(paths, "/etc/marlowe/marlowe.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Marlowe configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Channels ChannelsConfig `yaml:"channels"`
	Shell    ShellConfig    `yaml:"shell"`
	DataDir  string         `yaml:"data_dir"`
	LogLevel string         `yaml:"log_level"`
}

// APIConfig defines the chat-completions backend connection and the
// conversation parameters used on every request.
type APIConfig struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1" or a
	// local OpenAI-compatible server.
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	// MaxTurns bounds the conversation context. Oldest turns are evicted
	// first. Default 20.
	MaxTurns int `yaml:"max_turns"`
	// SystemPrompt is the agent's identity, injected at the head of every
	// context-bearing request.
	SystemPrompt string `yaml:"system_prompt"`
}

// ChannelsConfig enables and configures the chat front ends.
type ChannelsConfig struct {
	CLI     CLIConfig     `yaml:"cli"`
	Discord DiscordConfig `yaml:"discord"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// CLIConfig defines the interactive terminal channel.
type CLIConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DiscordConfig defines the Discord bot channel. An empty token disables it.
type DiscordConfig struct {
	Token string `yaml:"token"`
}

// MQTTConfig defines the MQTT channel. An empty broker URL disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. "mqtt://host:1883"
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"` // default "marlowe"
}

// ShellConfig defines shell execution capabilities.
type ShellConfig struct {
	// Enabled allows shell command execution. Disabled by default for safety.
	Enabled bool `yaml:"enabled"`
	// DeniedPatterns are command patterns to block (e.g., "rm -rf /").
	DeniedPatterns []string `yaml:"denied_patterns"`
	// DefaultTimeoutSec is the default timeout in seconds (default 30).
	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	if cfg.API.MaxTurns <= 0 {
		cfg.API.MaxTurns = 20
	}
	if cfg.Channels.MQTT.TopicPrefix == "" {
		cfg.Channels.MQTT.TopicPrefix = "marlowe"
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
			MaxTurns: 20,
		},
		Channels: ChannelsConfig{
			CLI:  CLIConfig{Enabled: true},
			MQTT: MQTTConfig{TopicPrefix: "marlowe"},
		},
		DataDir: "data",
	}
}
