package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Pages     PagesConfig     `mapstructure:"pages"`
	Injector  InjectorConfig  `mapstructure:"injector"`
	Models    ModelsConfig    `mapstructure:"models"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AnthropicConfig holds model API configuration
type AnthropicConfig struct {
	// APIKey seeds the stored credential at startup when none is stored yet
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	DefaultModel      string        `mapstructure:"default_model"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// PagesConfig holds configuration for fetching hosted pages
type PagesConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// InjectorConfig holds style injection configuration
type InjectorConfig struct {
	FallbackTimeout time.Duration `mapstructure:"fallback_timeout"`
}

// ModelsConfig holds model list configuration
type ModelsConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Config file is optional
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return unmarshal(v)
}

// LoadFromEnv loads configuration primarily from environment variables
func LoadFromEnv() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Read from .env file if it exists
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("PAGEMAGIC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	// Database defaults
	v.SetDefault("database.path", "./data/pagemagic.db")

	// Model API defaults
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("anthropic.default_model", "claude-3-5-haiku-20241022")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.timeout", 2*time.Minute)
	v.SetDefault("anthropic.requests_per_second", 2.0)

	// Page fetch defaults
	v.SetDefault("pages.fetch_timeout", 30*time.Second)
	v.SetDefault("pages.max_body_bytes", int64(10<<20))
	v.SetDefault("pages.user_agent", "pagemagic/1.0")

	// Injector defaults
	v.SetDefault("injector.fallback_timeout", 100*time.Millisecond)

	// Model list defaults
	v.SetDefault("models.cache_size", 128)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	// Helper to bind and log errors (BindEnv errors are non-fatal but should be logged)
	bindEnv := func(key string, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			slog.Warn("failed to bind environment variable",
				slog.String("key", key),
				slog.String("env_var", envVar),
				slog.String("error", err.Error()))
		}
	}

	// Model API credentials and endpoint
	bindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	bindEnv("anthropic.base_url", "ANTHROPIC_BASE_URL")
	bindEnv("anthropic.default_model", "PAGEMAGIC_DEFAULT_MODEL")

	// Database path
	bindEnv("database.path", "DATABASE_PATH")

	// Server config
	bindEnv("server.host", "SERVER_HOST")
	bindEnv("server.port", "SERVER_PORT")

	// Logging
	bindEnv("logging.level", "LOG_LEVEL")
	bindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Anthropic.BaseURL == "" {
		return fmt.Errorf("anthropic.base_url is required")
	}
	if u, err := url.Parse(c.Anthropic.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("anthropic.base_url %q must be an http(s) URL", c.Anthropic.BaseURL)
	}
	if c.Anthropic.MaxTokens <= 0 {
		return fmt.Errorf("anthropic.max_tokens must be positive")
	}
	if c.Anthropic.Timeout <= 0 {
		return fmt.Errorf("anthropic.timeout must be positive")
	}
	if c.Anthropic.RequestsPerSecond <= 0 {
		return fmt.Errorf("anthropic.requests_per_second must be positive")
	}

	if c.Pages.FetchTimeout <= 0 {
		return fmt.Errorf("pages.fetch_timeout must be positive")
	}
	if c.Pages.MaxBodyBytes <= 0 {
		return fmt.Errorf("pages.max_body_bytes must be positive")
	}
	if c.Models.CacheSize <= 0 {
		return fmt.Errorf("models.cache_size must be positive")
	}
	if c.Injector.FallbackTimeout <= 0 {
		return fmt.Errorf("injector.fallback_timeout must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q must be json or text", c.Logging.Format)
	}

	return nil
}
