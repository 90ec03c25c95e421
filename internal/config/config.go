// Package config loads the settings shared by the CLI and the server from a
// file, GTM_* environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonathan/gtm-copilot/internal/llm"
	"github.com/jonathan/gtm-copilot/internal/pipeline"
	"github.com/jonathan/gtm-copilot/internal/quality"
)

// EnvPrefix is prepended to every environment override (GTM_MODEL, GTM_RETRY_MAX_ATTEMPTS).
const EnvPrefix = "GTM"

// RetryConfig mirrors llm.RetryPolicy.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	RetryableStatuses []int         `mapstructure:"retryable_statuses"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
}

// Policy converts the section into a retry policy.
func (r RetryConfig) Policy() llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts:       r.MaxAttempts,
		BaseDelay:         r.BaseDelay,
		MaxDelay:          r.MaxDelay,
		RetryableStatuses: r.RetryableStatuses,
		AttemptTimeout:    r.AttemptTimeout,
	}
}

// Config represents the application configuration.
type Config struct {
	// Model overrides the model of every tier when set.
	Model       string `mapstructure:"model"`
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	// Transport is "rest" or "sdk".
	Transport   string `mapstructure:"transport"`
	KeyInHeader bool   `mapstructure:"key_in_header"`

	Retry       RetryConfig `mapstructure:"retry"`
	RepairRetry RetryConfig `mapstructure:"repair_retry"`

	// Pipeline
	UncertaintyThreshold float64       `mapstructure:"uncertainty_threshold"`
	ConfidenceThreshold  float64       `mapstructure:"confidence_threshold"`
	RunTimeout           time.Duration `mapstructure:"run_timeout"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Storage and outputs
	RedisURL    string `mapstructure:"redis_url"`
	DatabaseURL string `mapstructure:"database_url"`
	OutputDir   string `mapstructure:"output_dir"`

	// Server
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	policy := llm.DefaultRetryPolicy()
	v.SetDefault("model", "")
	v.SetDefault("base_url", llm.DefaultBaseURL)
	v.SetDefault("api_key", "")
	v.SetDefault("transport", string(llm.TransportREST))
	v.SetDefault("key_in_header", false)

	v.SetDefault("retry.max_attempts", policy.MaxAttempts)
	v.SetDefault("retry.base_delay", policy.BaseDelay)
	v.SetDefault("retry.max_delay", policy.MaxDelay)
	v.SetDefault("retry.retryable_statuses", policy.RetryableStatuses)
	v.SetDefault("retry.attempt_timeout", policy.AttemptTimeout)

	// The repair call gets fewer attempts: the original strategy is kept anyway.
	v.SetDefault("repair_retry.max_attempts", 2)
	v.SetDefault("repair_retry.base_delay", policy.BaseDelay)
	v.SetDefault("repair_retry.max_delay", policy.MaxDelay)
	v.SetDefault("repair_retry.retryable_statuses", policy.RetryableStatuses)
	v.SetDefault("repair_retry.attempt_timeout", policy.AttemptTimeout)

	v.SetDefault("uncertainty_threshold", pipeline.DefaultUncertaintyThreshold)
	v.SetDefault("confidence_threshold", quality.DefaultThresholds().Confidence)
	v.SetDefault("run_timeout", pipeline.DefaultRunTimeout)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	v.SetDefault("redis_url", "")
	v.SetDefault("database_url", "")
	v.SetDefault("output_dir", "")
	v.SetDefault("addr", ":8080")
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads the configuration. path may be empty, in which case only the
// environment and defaults apply. The file format follows its extension
// (yaml, json, toml).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration has valid values. A missing API key
// is not an error here since it may still come from the key store.
func (c *Config) Validate() error {
	switch llm.TransportKind(c.Transport) {
	case llm.TransportREST, llm.TransportSDK:
	default:
		return fmt.Errorf("config error: 'transport' must be rest or sdk, got %q", c.Transport)
	}

	for name, r := range map[string]RetryConfig{"retry": c.Retry, "repair_retry": c.RepairRetry} {
		if r.MaxAttempts < 1 {
			return fmt.Errorf("config error: '%s.max_attempts' must be at least 1", name)
		}
		if r.BaseDelay < 0 || r.MaxDelay < 0 || r.AttemptTimeout < 0 {
			return fmt.Errorf("config error: '%s' durations must be non-negative", name)
		}
		if r.MaxDelay > 0 && r.BaseDelay > r.MaxDelay {
			return fmt.Errorf("config error: '%s.base_delay' exceeds '%s.max_delay'", name, name)
		}
		for _, status := range r.RetryableStatuses {
			if status < 100 || status > 599 {
				return fmt.Errorf("config error: '%s.retryable_statuses' has invalid status %d", name, status)
			}
		}
	}

	if c.UncertaintyThreshold < 0 || c.UncertaintyThreshold > 1 {
		return fmt.Errorf("config error: 'uncertainty_threshold' must be between 0.0 and 1.0")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("config error: 'confidence_threshold' must be between 0.0 and 1.0")
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("config error: 'run_timeout' must be non-negative")
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("config error: 'log_format' must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// LLMConfig returns the transport configuration.
func (c *Config) LLMConfig() *llm.Config {
	cfg := llm.DefaultConfig()
	cfg.Transport = llm.TransportKind(c.Transport)
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	cfg.KeyInHeader = c.KeyInHeader
	if c.Model != "" {
		for _, tier := range []llm.ModelTier{llm.TierLite, llm.TierStandard, llm.TierAdvanced} {
			cfg = cfg.WithModel(tier, c.Model)
		}
	}
	return cfg
}

// PipelineOptions returns the orchestrator options the configuration controls.
func (c *Config) PipelineOptions() pipeline.Options {
	th := quality.DefaultThresholds()
	th.Confidence = c.ConfidenceThreshold
	return pipeline.Options{
		UncertaintyThreshold: c.UncertaintyThreshold,
		Thresholds:           th,
		RunTimeout:           c.RunTimeout,
	}
}
