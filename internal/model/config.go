package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides, e.g.
// COMPLAINTDESK_API_BASE_URL.
const envPrefix = "COMPLAINTDESK"

// APIConfig holds settings for the REST backend.
type APIConfig struct {
	// BaseURL is the root of the REST API, including any path prefix.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds a single request round trip.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// ListConfig holds listing preferences.
type ListConfig struct {
	PageSize          int `mapstructure:"page_size" yaml:"page_size"`
	DashboardPageSize int `mapstructure:"dashboard_page_size" yaml:"dashboard_page_size"`
	SearchDebounceMs  int `mapstructure:"search_debounce_ms" yaml:"search_debounce_ms"`
}

// CacheConfig controls the local snapshot cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables it.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	List    ListConfig    `mapstructure:"list" yaml:"list"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ConfigDir returns ~/.config/complaintdesk, falling back to the working
// directory when the home directory is unknown.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "complaintdesk")
}

// DefaultConfigPath returns the default path for the configuration file.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:5000/api",
			TimeoutSec: 30,
		},
		List: ListConfig{
			PageSize:          DefaultPageSize,
			DashboardPageSize: 3,
			SearchDebounceMs:  500,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "cache.db"),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "client.log"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. A .env file in the working directory is loaded first so its
// values can override the file through COMPLAINTDESK_* variables. If the
// config file does not exist, defaults (plus environment) are used.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values and so
	// AutomaticEnv knows every key.
	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout_sec", def.API.TimeoutSec)
	v.SetDefault("list.page_size", def.List.PageSize)
	v.SetDefault("list.dashboard_page_size", def.List.DashboardPageSize)
	v.SetDefault("list.search_debounce_ms", def.List.SearchDebounceMs)
	v.SetDefault("cache.enabled", def.Cache.Enabled)
	v.SetDefault("cache.path", def.Cache.Path)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("metrics.addr", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.List.PageSize < 1 {
		cfg.List.PageSize = DefaultPageSize
	}
	if cfg.List.DashboardPageSize < 1 {
		cfg.List.DashboardPageSize = def.List.DashboardPageSize
	}
	if cfg.List.SearchDebounceMs < 0 {
		cfg.List.SearchDebounceMs = def.List.SearchDebounceMs
	}
	if cfg.API.TimeoutSec <= 0 {
		cfg.API.TimeoutSec = def.API.TimeoutSec
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("list", cfg.List)
	v.Set("cache", cfg.Cache)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
