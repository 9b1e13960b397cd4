// Package config loads and validates the runtime configuration: the
// credential set, the model binding, pool timings, loop limits and storage
// drivers. Values come from an optional TOML file overridden by AGENTPOOL_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CredentialConfig describes one external API credential and its token budget.
type CredentialConfig struct {
	Name     string `mapstructure:"name"`
	APIKey   string `mapstructure:"api_key"`
	Capacity int64  `mapstructure:"capacity"`
}

// ModelConfig selects the provider adapter and model name.
type ModelConfig struct {
	Provider string `mapstructure:"provider"` // openai | anthropic
	Name     string `mapstructure:"name"`
}

// PoolConfig tunes slot borrowing.
type PoolConfig struct {
	LockExpiry     time.Duration `mapstructure:"lock_expiry"`
	RescanInterval time.Duration `mapstructure:"rescan_interval"`
	BorrowTimeout  time.Duration `mapstructure:"borrow_timeout"`
}

// LoopConfig tunes the agent loop caps.
type LoopConfig struct {
	MaxIterations int `mapstructure:"max_iterations"`
	MaxRetries    int `mapstructure:"max_retries"`
	MinToolCalls  int `mapstructure:"min_tool_calls"`
	BatchSoftCap  int `mapstructure:"batch_soft_cap"`
	TokenBuffer   int `mapstructure:"token_buffer"`
	RecentWindow  int `mapstructure:"recent_window"`
}

// StoreConfig selects the shared coordination and transcript storage.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory | sqlite
	DSN    string `mapstructure:"dsn"`
}

// LogConfig tunes the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // json | text
}

// Config is the validated top-level configuration.
type Config struct {
	Credentials []CredentialConfig `mapstructure:"credentials"`
	Model       ModelConfig        `mapstructure:"model"`
	Pool        PoolConfig         `mapstructure:"pool"`
	Loop        LoopConfig         `mapstructure:"loop"`
	Store       StoreConfig        `mapstructure:"store"`
	Log         LogConfig          `mapstructure:"log"`
}

const envPrefix = "AGENTPOOL"

// Load reads the configuration from the given directory (or the working
// directory when empty), applies defaults and environment overrides, and
// validates the result. A missing config file is fine; missing credentials
// are not.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("agentpool")
	v.SetConfigType("toml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.name", "gpt-4o")

	v.SetDefault("pool.lock_expiry", 30*time.Second)
	v.SetDefault("pool.rescan_interval", 250*time.Millisecond)
	v.SetDefault("pool.borrow_timeout", 30*time.Second)

	v.SetDefault("loop.max_iterations", 10)
	v.SetDefault("loop.max_retries", 2)
	v.SetDefault("loop.min_tool_calls", 2)
	v.SetDefault("loop.batch_soft_cap", 7)
	v.SetDefault("loop.token_buffer", 5000)
	v.SetDefault("loop.recent_window", 5)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "file:agentpool.db?_busy_timeout=5000")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.Credentials) == 0 {
		return errors.New("config: at least one credential is required")
	}
	seen := make(map[string]struct{}, len(c.Credentials))
	for i, cred := range c.Credentials {
		if cred.Name == "" {
			return fmt.Errorf("config: credential %d has no name", i)
		}
		if _, dup := seen[cred.Name]; dup {
			return fmt.Errorf("config: duplicate credential name %q", cred.Name)
		}
		seen[cred.Name] = struct{}{}
		if cred.APIKey == "" {
			return fmt.Errorf("config: credential %q has no api_key", cred.Name)
		}
		if cred.Capacity <= 0 {
			return fmt.Errorf("config: credential %q needs a positive capacity", cred.Name)
		}
	}

	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown model provider %q", c.Model.Provider)
	}

	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		return errors.New("config: sqlite store requires a dsn")
	}

	return nil
}
