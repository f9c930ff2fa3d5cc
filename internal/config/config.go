// Package config resolves settings from CLI flags, environment variables,
// and the TOML config file, in that precedence order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chetcli/chet/internal/llm/anthropic"
	"github.com/chetcli/chet/internal/permission"
	"github.com/spf13/viper"
)

// Defaults applied when no other source provides a value.
const (
	DefaultModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens = 16384
)

// Config is the fully resolved configuration for a session.
type Config struct {
	APIKey         string
	Model          string
	MaxTokens      int
	BaseURL        string
	ThinkingBudget int
	ConfigDir      string
	Retry          anthropic.RetryConfig
	Rules          []permission.Rule
	Hooks          []permission.HookConfig
}

// Overrides are CLI flag values that take highest precedence.
type Overrides struct {
	APIKey         string
	Model          string
	MaxTokens      int
	ThinkingBudget int
}

// settingsFile mirrors the TOML config file layout.
type settingsFile struct {
	API struct {
		APIKey         string `mapstructure:"api_key"`
		Model          string `mapstructure:"model"`
		MaxTokens      int    `mapstructure:"max_tokens"`
		BaseURL        string `mapstructure:"base_url"`
		ThinkingBudget int    `mapstructure:"thinking_budget"`
		Retry          struct {
			MaxRetries     *int `mapstructure:"max_retries"`
			InitialDelayMS *int `mapstructure:"initial_delay_ms"`
			MaxDelayMS     *int `mapstructure:"max_delay_ms"`
		} `mapstructure:"retry"`
	} `mapstructure:"api"`
	Permissions struct {
		Rules []permission.Rule `mapstructure:"rules"`
	} `mapstructure:"permissions"`
	Hooks []permission.HookConfig `mapstructure:"hooks"`
}

// Load resolves configuration from all sources. Precedence: flags > env >
// config file > defaults. A malformed config file or rule pattern fails the
// load; missing files do not.
func Load(overrides Overrides) (*Config, error) {
	configDir := Dir()
	settings, err := readSettingsFile(filepath.Join(configDir, "config.toml"))
	if err != nil {
		return nil, err
	}

	apiKey := firstNonEmpty(overrides.APIKey, os.Getenv("ANTHROPIC_API_KEY"), settings.API.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key: set ANTHROPIC_API_KEY, --api-key, or api.api_key in %s",
			filepath.Join(configDir, "config.toml"))
	}

	config := &Config{
		APIKey:         apiKey,
		Model:          firstNonEmpty(overrides.Model, os.Getenv("CHET_MODEL"), settings.API.Model, DefaultModel),
		MaxTokens:      firstPositive(overrides.MaxTokens, settings.API.MaxTokens, DefaultMaxTokens),
		BaseURL:        firstNonEmpty(os.Getenv("ANTHROPIC_API_BASE_URL"), settings.API.BaseURL, anthropic.DefaultBaseURL),
		ThinkingBudget: firstPositive(overrides.ThinkingBudget, settings.API.ThinkingBudget, 0),
		ConfigDir:      configDir,
		Retry:          anthropic.DefaultRetryConfig(),
		Rules:          settings.Permissions.Rules,
		Hooks:          settings.Hooks,
	}

	if v := settings.API.Retry.MaxRetries; v != nil {
		config.Retry.MaxRetries = *v
	}
	if v := settings.API.Retry.InitialDelayMS; v != nil {
		config.Retry.InitialDelay = time.Duration(*v) * time.Millisecond
	}
	if v := settings.API.Retry.MaxDelayMS; v != nil {
		config.Retry.MaxDelay = time.Duration(*v) * time.Millisecond
	}

	// Rule patterns compile now so a bad glob aborts startup, not a turn.
	if err := permission.CompileRules(config.Rules); err != nil {
		return nil, err
	}

	return config, nil
}

// Dir returns the chet config directory, honoring CHET_CONFIG_DIR.
func Dir() string {
	if dir := os.Getenv("CHET_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chet"
	}
	return filepath.Join(home, ".chet")
}

// readSettingsFile parses the TOML settings file. A missing file yields
// empty settings; a malformed one is a configuration error.
func readSettingsFile(path string) (*settingsFile, error) {
	settings := &settingsFile{}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return settings, nil
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// firstPositive returns the first positive int.
func firstPositive(values ...int) int {
	for _, value := range values {
		if value > 0 {
			return value
		}
	}
	return 0
}
