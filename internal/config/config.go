// Package config loads exsim settings from a config file, the environment
// and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rcliao/exsim/internal/compact"
	"github.com/rcliao/exsim/internal/fragment"
	"github.com/rcliao/exsim/internal/pacing"
	"github.com/rcliao/exsim/internal/prompt"
	"github.com/rcliao/exsim/internal/provider"
)

// EnvPrefix prefixes every environment override, e.g. EXSIM_DB_PATH.
const EnvPrefix = "EXSIM"

// Config stores all configuration of the application.
type Config struct {
	DB       DBConfig       `mapstructure:"db"`
	Log      LogConfig      `mapstructure:"log"`
	Provider ProviderConfig `mapstructure:"provider"`
	Pacing   PacingConfig   `mapstructure:"pacing"`
	Fragment FragmentConfig `mapstructure:"fragment"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Prompt   PromptConfig   `mapstructure:"prompt"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // zerolog level name
}

type ProviderConfig struct {
	Name       string        `mapstructure:"name"` // openai, gemini, anthropic, echo
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type PacingConfig struct {
	InitialBase  time.Duration `mapstructure:"initial_base"`
	PerInputChar time.Duration `mapstructure:"per_input_char"`
	InitialMin   time.Duration `mapstructure:"initial_min"`
	InitialMax   time.Duration `mapstructure:"initial_max"`
	Jitter       float64       `mapstructure:"jitter"`
	PerChar      time.Duration `mapstructure:"per_char"`
	Floor        time.Duration `mapstructure:"floor"`
	Observation  time.Duration `mapstructure:"observation"`
}

type FragmentConfig struct {
	MinSize           int `mapstructure:"min_size"`
	MergeSize         int `mapstructure:"merge_size"`
	SentenceSplitSize int `mapstructure:"sentence_split_size"`
}

type MemoryConfig struct {
	Cap int `mapstructure:"cap"` // runes
}

type PromptConfig struct {
	HistoryBudget int `mapstructure:"history_budget"` // runes
}

// apiKeyEnv is consulted when provider.api_key is unset.
var apiKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// DefaultDBPath is ~/.exsim/exsim.db.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".exsim", "exsim.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.path", DefaultDBPath())
	v.SetDefault("log.level", "warn")

	v.SetDefault("provider.name", "echo")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.timeout", "30s")
	v.SetDefault("provider.max_retries", 2)

	p := pacing.DefaultConfig()
	v.SetDefault("pacing.initial_base", p.InitialBase)
	v.SetDefault("pacing.per_input_char", p.PerInputChar)
	v.SetDefault("pacing.initial_min", p.InitialMin)
	v.SetDefault("pacing.initial_max", p.InitialMax)
	v.SetDefault("pacing.jitter", 0.0)
	v.SetDefault("pacing.per_char", p.PerChar)
	v.SetDefault("pacing.floor", p.Floor)
	v.SetDefault("pacing.observation", p.Observation)

	v.SetDefault("fragment.min_size", fragment.DefaultMinSize)
	v.SetDefault("fragment.merge_size", fragment.DefaultMergeSize)
	v.SetDefault("fragment.sentence_split_size", fragment.DefaultSentenceSplitSize)

	v.SetDefault("memory.cap", compact.DefaultCap)
	v.SetDefault("prompt.history_budget", prompt.DefaultHistoryBudget)
}

// Load reads configuration. With an empty path it looks for config.yaml in
// the working directory and in ~/.exsim; a missing file is not an error.
// Environment variables (EXSIM_PROVIDER_NAME, EXSIM_PACING_FLOOR, ...)
// override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".exsim"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// provider.api_key -> EXSIM_PROVIDER_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Provider.Name = strings.ToLower(strings.TrimSpace(cfg.Provider.Name))
	if cfg.Provider.APIKey == "" {
		if env, ok := apiKeyEnv[cfg.Provider.Name]; ok {
			cfg.Provider.APIKey = os.Getenv(env)
		}
	}
	return &cfg, nil
}

// PacingConfig converts to the pacing package's policy.
func (c *Config) PacingConfig() pacing.Config {
	return pacing.Config{
		InitialBase:  c.Pacing.InitialBase,
		PerInputChar: c.Pacing.PerInputChar,
		InitialMin:   c.Pacing.InitialMin,
		InitialMax:   c.Pacing.InitialMax,
		Jitter:       c.Pacing.Jitter,
		PerChar:      c.Pacing.PerChar,
		Floor:        c.Pacing.Floor,
		Observation:  c.Pacing.Observation,
	}
}

func (c *Config) FragmentOptions() fragment.Options {
	return fragment.Options{
		MinSize:           c.Fragment.MinSize,
		MergeSize:         c.Fragment.MergeSize,
		SentenceSplitSize: c.Fragment.SentenceSplitSize,
	}
}

func (c *Config) ProviderConfig() provider.Config {
	return provider.Config{
		Name:       c.Provider.Name,
		APIKey:     c.Provider.APIKey,
		Model:      c.Provider.Model,
		BaseURL:    c.Provider.BaseURL,
		Timeout:    c.Provider.Timeout,
		MaxRetries: c.Provider.MaxRetries,
	}
}
