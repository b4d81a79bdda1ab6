package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DEALSENSE_SERVER_PORT, DEALSENSE_LOGGING_LEVEL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// If configPath is empty, no file is read and configuration comes from
// environment variables and defaults only.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open config file: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}

			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	// Override with environment variables.
	if err := k.Load(env.Provider("DEALSENSE_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps a DEALSENSE_* variable name to its config path.
//
//	DEALSENSE_SERVER_PORT               -> server.port
//	DEALSENSE_PROVIDERS_PREFERRED       -> providers.preferred
//	DEALSENSE_PROVIDERS_OPENAI_API_KEY  -> providers.openai.api_key
//
// Provider settings nest an extra level; everything else splits on the
// first underscore into section and field, keeping underscores inside the
// field name.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, "DEALSENSE_"))
	for _, provider := range []string{"openai", "anthropic"} {
		prefix := "providers_" + provider + "_"
		if strings.HasPrefix(key, prefix) {
			return "providers." + provider + "." + strings.TrimPrefix(key, prefix)
		}
	}
	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 1 {
		return key
	}
	return parts[0] + "." + parts[1]
}
