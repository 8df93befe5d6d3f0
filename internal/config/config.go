// Package config loads library and CLI settings from an optional YAML file and
// INTENT_VERIFICATION_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	errs "github.com/VAR-META-Tech/intent-verification/internal/errors"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "INTENT_VERIFICATION"

// ConfigEnv names the variable that points at an explicit config file.
const ConfigEnv = EnvPrefix + "_CONFIG"

// Config holds every tunable of the library.
type Config struct {
	Provider  string       `mapstructure:"provider" yaml:"provider"`
	OpenAI    OpenAIConfig `mapstructure:"openai" yaml:"openai"`
	Gemini    ModelConfig  `mapstructure:"gemini" yaml:"gemini"`
	Anthropic ModelConfig  `mapstructure:"anthropic" yaml:"anthropic"`
	Review    ReviewConfig `mapstructure:"review" yaml:"review"`
	GitHub    GitHubConfig `mapstructure:"github" yaml:"github"`
	Log       LogConfig    `mapstructure:"log" yaml:"log"`
}

// OpenAIConfig configures the OpenAI chat completions adapter.
// APIKey is only read by the CLI; library calls always pass the credential explicitly.
type OpenAIConfig struct {
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string `mapstructure:"api_key" yaml:"-"`
}

// ModelConfig selects the model of a provider.
type ModelConfig struct {
	Model string `mapstructure:"model" yaml:"model"`
}

// ReviewConfig tunes the reviewer and its completion requests.
type ReviewConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	CallTimeout       time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	SplitThreshold    int           `mapstructure:"split_threshold" yaml:"split_threshold"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// StrictSanitize rewrites comments that look like prompt injection
	// instead of only reporting them.
	StrictSanitize bool `mapstructure:"strict_sanitize" yaml:"strict_sanitize"`
}

// GitHubConfig enables the GitHub compare API for github.com repositories.
type GitHubConfig struct {
	Token   string `mapstructure:"token" yaml:"-"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file,omitempty"`
}

// Key describes a config key for display purposes.
type Key struct {
	Key    string
	EnvVar string
	Secret bool
}

// Keys lists every supported key in display order.
var Keys = []Key{
	{Key: "provider"},
	{Key: "openai.model"},
	{Key: "openai.base_url"},
	{Key: "openai.api_key", Secret: true},
	{Key: "gemini.model"},
	{Key: "anthropic.model"},
	{Key: "review.max_attempts"},
	{Key: "review.concurrency"},
	{Key: "review.request_timeout"},
	{Key: "review.call_timeout"},
	{Key: "review.requests_per_second"},
	{Key: "review.split_threshold"},
	{Key: "review.max_tokens"},
	{Key: "review.strict_sanitize"},
	{Key: "github.token", Secret: true},
	{Key: "github.base_url"},
	{Key: "log.level"},
	{Key: "log.file"},
}

func init() {
	for i := range Keys {
		Keys[i].EnvVar = EnvName(Keys[i].Key)
	}
}

// EnvName returns the environment variable bound to key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: constants.DefaultProvider,
		OpenAI: OpenAIConfig{
			Model:   constants.DefaultOpenAIModel,
			BaseURL: constants.DefaultOpenAIBaseURL,
		},
		Gemini:    ModelConfig{Model: constants.DefaultGeminiModel},
		Anthropic: ModelConfig{Model: constants.DefaultAnthropicModel},
		Review: ReviewConfig{
			MaxAttempts:    constants.MaxRetryAttempts,
			Concurrency:    constants.DefaultConcurrency,
			RequestTimeout: constants.DefaultRequestTimeout,
			CallTimeout:    constants.DefaultCallTimeout,
			SplitThreshold: constants.DefaultSplitThreshold,
			MaxTokens:      constants.DefaultMaxTokens,
		},
		Log: LogConfig{Level: "warn"},
	}
}

// New returns a viper instance with defaults, env binding and the config file
// search path set up. path overrides the search when non-empty.
func New(path string) *viper.Viper {
	v := viper.New()

	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("provider", d.Provider)
	v.SetDefault("openai.model", d.OpenAI.Model)
	v.SetDefault("openai.base_url", d.OpenAI.BaseURL)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("gemini.model", d.Gemini.Model)
	v.SetDefault("anthropic.model", d.Anthropic.Model)
	v.SetDefault("review.max_attempts", d.Review.MaxAttempts)
	v.SetDefault("review.concurrency", d.Review.Concurrency)
	v.SetDefault("review.request_timeout", d.Review.RequestTimeout)
	v.SetDefault("review.call_timeout", d.Review.CallTimeout)
	v.SetDefault("review.requests_per_second", d.Review.RequestsPerSecond)
	v.SetDefault("review.split_threshold", d.Review.SplitThreshold)
	v.SetDefault("review.max_tokens", d.Review.MaxTokens)
	v.SetDefault("review.strict_sanitize", d.Review.StrictSanitize)
	v.SetDefault("github.token", "")
	v.SetDefault("github.base_url", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", "")

	return v
}

// Load reads configuration from path (or the default location) and the environment.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := New(path)
	if err := ReadInto(v); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// ReadInto reads the config file of v, ignoring a missing file.
func ReadInto(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dir returns the default config directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot find home directory: %w", err)
	}
	return filepath.Join(home, ".config", "intent-verification"), nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Provider {
	case constants.ProviderOpenAI, constants.ProviderGemini, constants.ProviderAnthropic:
	default:
		return &errs.ValidationError{Field: "provider", Value: c.Provider, Msg: "must be one of openai, gemini, anthropic"}
	}

	if c.Provider == constants.ProviderOpenAI && c.OpenAI.BaseURL == "" {
		return &errs.ValidationError{Field: "openai.base_url", Value: c.OpenAI.BaseURL, Msg: "must not be empty"}
	}

	if c.Review.MaxAttempts < 1 || c.Review.MaxAttempts > 10 {
		return &errs.ValidationError{Field: "review.max_attempts", Value: c.Review.MaxAttempts, Msg: "must be between 1 and 10"}
	}

	if c.Review.Concurrency < 1 || c.Review.Concurrency > 64 {
		return &errs.ValidationError{Field: "review.concurrency", Value: c.Review.Concurrency, Msg: "must be between 1 and 64"}
	}

	if c.Review.RequestTimeout <= 0 {
		return &errs.ValidationError{Field: "review.request_timeout", Value: c.Review.RequestTimeout, Msg: "must be positive"}
	}

	if c.Review.CallTimeout < c.Review.RequestTimeout {
		return &errs.ValidationError{Field: "review.call_timeout", Value: c.Review.CallTimeout, Msg: "must not be shorter than review.request_timeout"}
	}

	if c.Review.RequestsPerSecond < 0 {
		return &errs.ValidationError{Field: "review.requests_per_second", Value: c.Review.RequestsPerSecond, Msg: "must not be negative"}
	}

	if c.Review.SplitThreshold < 1000 {
		return &errs.ValidationError{Field: "review.split_threshold", Value: c.Review.SplitThreshold, Msg: "must be at least 1000"}
	}

	if c.Review.MaxTokens < 1 {
		return &errs.ValidationError{Field: "review.max_tokens", Value: c.Review.MaxTokens, Msg: "must be positive"}
	}

	return nil
}

// Model returns the model configured for the selected provider.
func (c *Config) Model() string {
	switch c.Provider {
	case constants.ProviderGemini:
		return c.Gemini.Model
	case constants.ProviderAnthropic:
		return c.Anthropic.Model
	default:
		return c.OpenAI.Model
	}
}
