// ABOUTME: Configuration loading and parsing for warren-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete warren-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Agent     AgentConfig     `yaml:"agent"`
	Providers ProvidersConfig `yaml:"providers"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AgentConfig holds agent loop configuration
type AgentConfig struct {
	Model           string  `yaml:"model"`
	SystemPrompt    string  `yaml:"system_prompt"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
	MemoryWindow    int     `yaml:"memory_window"`
	ProgressUpdates bool    `yaml:"progress_updates"`
}

// ProviderConfig holds credentials for one LLM provider. For Vertex AI the
// api_key carries the GCP project and api_base the location.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	APIBase string `yaml:"api_base"`
}

// ProvidersConfig holds configuration for all LLM providers
type ProvidersConfig struct {
	Gemini   ProviderConfig `yaml:"gemini"`
	VertexAI ProviderConfig `yaml:"vertex_ai"`
}

// ChannelsConfig holds configuration for all channels
type ChannelsConfig struct {
	HTTP HTTPRelayConfig `yaml:"http"`
}

// HTTPRelayConfig holds the HTTP relay channel configuration
type HTTPRelayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`

	// StreamTimeout bounds the wait for the next outbound message on an open
	// stream. It resets after every delivered event.
	StreamTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	StreamTimeoutRaw string `yaml:"stream_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the corresponding fields are unset.
const (
	DefaultRelayPath     = "/message"
	DefaultStreamTimeout = 900 * time.Second
	DefaultModel         = "gemini-2.5-flash"
	DefaultMaxTokens     = 8192
	DefaultMemoryWindow  = 50
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills in zero-valued fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Channels.HTTP.Path == "" {
		c.Channels.HTTP.Path = DefaultRelayPath
	}
	if c.Channels.HTTP.StreamTimeout == 0 {
		c.Channels.HTTP.StreamTimeout = DefaultStreamTimeout
	}
	if c.Agent.Model == "" {
		c.Agent.Model = DefaultModel
	}
	if c.Agent.MaxTokens == 0 {
		c.Agent.MaxTokens = DefaultMaxTokens
	}
	if c.Agent.MemoryWindow == 0 {
		c.Agent.MemoryWindow = DefaultMemoryWindow
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale provides the listener
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Channels.HTTP.StreamTimeout < 0 {
		return fmt.Errorf("channels.http.stream_timeout must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Channels.HTTP.StreamTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Channels.HTTP.StreamTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing stream_timeout %q: %w", cfg.Channels.HTTP.StreamTimeoutRaw, err)
		}
		cfg.Channels.HTTP.StreamTimeout = d
	}

	return nil
}
