package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Vesper configuration
type Config struct {
	// Shell session settings
	Shell ShellConfig `json:"shell" mapstructure:"shell"`

	// Agent runner settings
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// AI provider configuration
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// HTTP server configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Audit trail configuration
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ShellConfig holds persistent shell session configuration
type ShellConfig struct {
	// ExecPath pins the shell executable. Empty means resolve via the
	// VESPER_SHELL_PATH environment variable, then the per-platform
	// search rules, then PATH lookup of FallbackName.
	ExecPath     string `json:"exec_path" mapstructure:"exec_path"`
	FallbackName string `json:"fallback_name" mapstructure:"fallback_name"`

	// WorkingDir is the initial working directory of the session.
	// Empty means the user's home directory.
	WorkingDir string `json:"working_dir" mapstructure:"working_dir"`

	DefaultTimeoutSeconds int `json:"default_timeout_seconds" mapstructure:"default_timeout_seconds"`
	StartupTimeoutSeconds int `json:"startup_timeout_seconds" mapstructure:"startup_timeout_seconds"`

	// DeniedPrefixes blocks commands before they reach the session.
	// Nil means the built-in denylist; an empty list disables the guard.
	DeniedPrefixes []string `json:"denied_prefixes" mapstructure:"denied_prefixes"`
}

// AgentConfig holds agent runner configuration
type AgentConfig struct {
	Model        string  `json:"model" mapstructure:"model"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
	MaxTurns     int     `json:"max_turns" mapstructure:"max_turns"`
	SystemPrompt string  `json:"system_prompt" mapstructure:"system_prompt"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// ServerConfig holds HTTP API server configuration
type ServerConfig struct {
	Enabled            bool   `json:"enabled" mapstructure:"enabled"`
	Host               string `json:"host" mapstructure:"host"`
	Port               int    `json:"port" mapstructure:"port"`
	TimeoutSeconds     int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// AuditConfig holds command audit trail configuration
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	DBPath  string `json:"db_path" mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Shell: ShellConfig{
			FallbackName:          "bash",
			DefaultTimeoutSeconds: 20,
			StartupTimeoutSeconds: 10,
		},
		Agent: AgentConfig{
			Model:       "gpt-4o",
			Temperature: 0.2,
			MaxTokens:   4096,
			MaxTurns:    12,
		},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Server: ServerConfig{
			Enabled:            false,
			Host:               "127.0.0.1",
			Port:               8080,
			TimeoutSeconds:     120,
			RateLimitPerMinute: 60,
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider == "" {
			return fmt.Errorf("AI profile %s: provider is required", profile.ID)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		if profile.Provider != "anthropic" && profile.Provider != "openai" {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: anthropic, openai)", profile.ID, profile.Provider)
		}
	}

	if c.Shell.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("shell.default_timeout_seconds must be positive")
	}
	if c.Shell.StartupTimeoutSeconds <= 0 {
		return fmt.Errorf("shell.startup_timeout_seconds must be positive")
	}

	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent.max_turns must be positive")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
		}
	}

	return nil
}
