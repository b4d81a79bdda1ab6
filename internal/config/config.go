// Package config provides configuration loading for dealsense.
package config

import (
	"fmt"
)

// Config is the root configuration for the dealsense daemon and CLI.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Providers  ProvidersConfig  `koanf:"providers"`
	Confidence ConfidenceConfig `koanf:"confidence"`
	Budget     BudgetConfig     `koanf:"budget"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string            `koanf:"level"`
	Format string            `koanf:"format"`
	Fields map[string]string `koanf:"fields"`
}

// ProvidersConfig holds LLM provider settings.
type ProvidersConfig struct {
	Preferred string         `koanf:"preferred"`
	OpenAI    ProviderConfig `koanf:"openai"`
	Anthropic ProviderConfig `koanf:"anthropic"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	APIKey    Secret   `koanf:"api_key"`
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	MaxTokens int      `koanf:"max_tokens"`
	Timeout   Duration `koanf:"timeout"`
}

// ConfidenceConfig holds confidence-level thresholds.
type ConfidenceConfig struct {
	HighThreshold   float64 `koanf:"high_threshold"`
	MediumThreshold float64 `koanf:"medium_threshold"`
}

// BudgetConfig holds token budget defaults used when no external
// user-config service is wired in (single-tenant deployments).
type BudgetConfig struct {
	HasConsent                 bool `koanf:"has_consent"`
	UsePlatformAllowance       bool `koanf:"use_platform_allowance"`
	PlatformAllowanceRemaining int  `koanf:"platform_allowance_remaining"`
	// MonthlyLimit of 0 means unlimited.
	MonthlyLimit int `koanf:"monthly_limit"`
	TokensUsed   int `koanf:"tokens_used"`
}

// applyDefaults fills in defaults for unset values.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9450
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Providers.Preferred == "" {
		cfg.Providers.Preferred = "anthropic"
	}
	if cfg.Confidence.HighThreshold == 0 {
		cfg.Confidence.HighThreshold = 0.8
	}
	if cfg.Confidence.MediumThreshold == 0 {
		cfg.Confidence.MediumThreshold = 0.5
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch c.Providers.Preferred {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown preferred provider %q", c.Providers.Preferred)
	}
	if c.Confidence.HighThreshold < c.Confidence.MediumThreshold {
		return fmt.Errorf("high threshold %.2f below medium threshold %.2f",
			c.Confidence.HighThreshold, c.Confidence.MediumThreshold)
	}
	if c.Confidence.HighThreshold > 1 || c.Confidence.MediumThreshold < 0 {
		return fmt.Errorf("confidence thresholds must lie in [0,1]")
	}
	if c.Budget.MonthlyLimit < 0 {
		return fmt.Errorf("budget monthly limit cannot be negative")
	}
	return nil
}
