// Package config handles configuration loading for Parley.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for Parley.
type Config struct {
	Anthropic   AnthropicConfig   `mapstructure:"anthropic"`
	Bedrock     BedrockConfig     `mapstructure:"bedrock"`
	Negotiation NegotiationConfig `mapstructure:"negotiation"`
	Limits      LimitsConfig      `mapstructure:"limits"`
	Server      ServerConfig      `mapstructure:"server"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// BedrockConfig holds AWS Bedrock transport settings.
type BedrockConfig struct {
	// Enabled routes model calls through Bedrock instead of the API.
	Enabled bool `mapstructure:"enabled"`
	// Region is the AWS region, empty for the SDK default chain.
	Region string `mapstructure:"region"`
}

// NegotiationConfig holds default negotiation parameters.
type NegotiationConfig struct {
	// MaxRounds is the default round budget.
	MaxRounds int `mapstructure:"max_rounds"`
	// WeightProfile is the default decision weight profile.
	WeightProfile string `mapstructure:"weight_profile"`
	// RunDir is where halt signal files are watched.
	RunDir string `mapstructure:"run_dir"`
}

// LimitsConfig holds rate limiter slot counts per model tier.
type LimitsConfig struct {
	FastSlots      int `mapstructure:"fast_slots"`
	ReasoningSlots int `mapstructure:"reasoning_slots"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address for parley serve.
	Addr string `mapstructure:"addr"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (PARLEY_*, ANTHROPIC_API_KEY)
// 2. Project config (.parley.yaml in current directory or parent)
// 3. User config (~/.config/parley/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("PARLEY")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("bedrock.enabled", "PARLEY_BEDROCK")
	v.BindEnv("bedrock.region", "AWS_REGION")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("bedrock.enabled", false)
	v.SetDefault("bedrock.region", "")

	v.SetDefault("negotiation.max_rounds", 3)
	v.SetDefault("negotiation.weight_profile", "balanced")
	v.SetDefault("negotiation.run_dir", defaultRunDir())

	v.SetDefault("limits.fast_slots", 8)
	v.SetDefault("limits.reasoning_slots", 2)

	v.SetDefault("server.addr", ":8321")
}

// getUserConfigDir returns the XDG config directory for Parley.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "parley")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "parley")
	}
	return filepath.Join(home, ".config", "parley")
}

// defaultRunDir returns the XDG state directory for run signals.
func defaultRunDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "parley")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".parley")
	}
	return filepath.Join(home, ".local", "state", "parley")
}

// findProjectConfig searches for .parley.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".parley.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
