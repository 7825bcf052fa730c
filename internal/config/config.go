// Package config handles configuration loading for the profile engine.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	Store        StoreConfig        `mapstructure:"store"        yaml:"store"        json:"store"`
	Edgar        EdgarConfig        `mapstructure:"edgar"        yaml:"edgar"        json:"edgar"`
	Cache        CacheConfig        `mapstructure:"cache"        yaml:"cache"        json:"cache"`
	Aggregator   AggregatorConfig   `mapstructure:"aggregator"   yaml:"aggregator"   json:"aggregator"`
	Parsers      ParsersConfig      `mapstructure:"parsers"      yaml:"parsers"      json:"parsers"`
	Relationship RelationshipConfig `mapstructure:"relationship" yaml:"relationship" json:"relationship"`
	AI           AIConfig           `mapstructure:"ai"           yaml:"ai"           json:"ai"`
	API          APIConfig          `mapstructure:"api"          yaml:"api"          json:"api"`
	Logging      LoggingConfig      `mapstructure:"logging"      yaml:"logging"      json:"logging"`
}

// StoreConfig holds profile document store settings.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"` // badger directory
}

// EdgarConfig holds EDGAR client settings.
type EdgarConfig struct {
	UserAgent         string `mapstructure:"user_agent"          yaml:"user_agent"          json:"user_agent"`
	RequestsPerSecond int    `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int    `mapstructure:"burst"               yaml:"burst"               json:"burst"`
	MaxRetries        int    `mapstructure:"max_retries"         yaml:"max_retries"         json:"max_retries"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec" json:"request_timeout_sec"`
	LookbackYears     int    `mapstructure:"lookback_years"      yaml:"lookback_years"      json:"lookback_years"`
}

// CacheConfig holds disk filing cache settings.
type CacheConfig struct {
	Dir          string  `mapstructure:"dir"            yaml:"dir"            json:"dir"`
	MaxBytes     int64   `mapstructure:"max_bytes"      yaml:"max_bytes"      json:"max_bytes"`
	EvictToRatio float64 `mapstructure:"evict_to_ratio" yaml:"evict_to_ratio" json:"evict_to_ratio"`
}

// AggregatorConfig holds profile aggregation concurrency settings.
type AggregatorConfig struct {
	TickerPoolSize    int `mapstructure:"ticker_pool_size"    yaml:"ticker_pool_size"    json:"ticker_pool_size"`
	TaskPoolSize      int `mapstructure:"task_pool_size"      yaml:"task_pool_size"      json:"task_pool_size"`
	TaskTimeoutSec    int `mapstructure:"task_timeout_sec"    yaml:"task_timeout_sec"    json:"task_timeout_sec"`
	ProfileTimeoutSec int `mapstructure:"profile_timeout_sec" yaml:"profile_timeout_sec" json:"profile_timeout_sec"`
}

// ParsersConfig holds form-parser tuning knobs (spec §6 per-parser
// detail caps).
type ParsersConfig struct {
	MaterialEventsRecentDays int `mapstructure:"material_events_recent_days" yaml:"material_events_recent_days" json:"material_events_recent_days"`
	Form4Max                 int `mapstructure:"form4_max"                   yaml:"form4_max"                   json:"form4_max"`
	DEF14AMax                int `mapstructure:"def14a_max"                  yaml:"def14a_max"                  json:"def14a_max"`
	SC13Max                  int `mapstructure:"sc13_max"                    yaml:"sc13_max"                    json:"sc13_max"`
	ReportsPerForm           int `mapstructure:"reports_per_form"            yaml:"reports_per_form"            json:"reports_per_form"`
}

// RelationshipConfig holds relationship-extractor settings.
type RelationshipConfig struct {
	MinConfidence  float64 `mapstructure:"min_confidence"  yaml:"min_confidence"  json:"min_confidence"`
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold" yaml:"fuzzy_threshold" json:"fuzzy_threshold"`
}

// AIConfig holds optional local LLM analyzer settings.
type AIConfig struct {
	Enabled   bool   `mapstructure:"enabled"    yaml:"enabled"    json:"enabled"`
	OllamaURL string `mapstructure:"ollama_url" yaml:"ollama_url" json:"ollama_url"`
	Model     string `mapstructure:"model"      yaml:"model"      json:"model"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"         json:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"         json:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// ConfigError indicates a required configuration value was left unset
// after defaults and environment overrides were applied.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: required field %q is unset", e.Field)
}

// validate enforces the handful of fields that have no safe default
// (spec §4.A "Fails-with ConfigError if unset" for the EDGAR contact
// header).
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Edgar.UserAgent) == "" {
		return &ConfigError{Field: "edgar.user_agent"}
	}
	return nil
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.edgarprofiles/config.yaml (home directory)
//  3. /etc/edgarprofiles/config.yaml (system)
//
// Environment variables override config file values.
// Format: EDGARPROFILES_<SECTION>_<KEY>, e.g. EDGARPROFILES_EDGAR_USER_AGENT
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".edgarprofiles"))
	v.AddConfigPath("/etc/edgarprofiles")

	v.SetEnvPrefix("EDGARPROFILES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("EDGARPROFILES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.data_dir", "./data/store")

	v.SetDefault("edgar.requests_per_second", 10)
	v.SetDefault("edgar.burst", 10)
	v.SetDefault("edgar.max_retries", 3)
	v.SetDefault("edgar.request_timeout_sec", 30)
	v.SetDefault("edgar.lookback_years", 5)

	v.SetDefault("cache.dir", "./data/cache")
	v.SetDefault("cache.max_bytes", int64(2*1024*1024*1024)) // 2GiB
	v.SetDefault("cache.evict_to_ratio", 0.90)

	v.SetDefault("aggregator.ticker_pool_size", 4)
	v.SetDefault("aggregator.task_pool_size", 8)
	v.SetDefault("aggregator.task_timeout_sec", 45)
	v.SetDefault("aggregator.profile_timeout_sec", 300)

	v.SetDefault("parsers.material_events_recent_days", 90)
	v.SetDefault("parsers.form4_max", 100)
	v.SetDefault("parsers.def14a_max", 10)
	v.SetDefault("parsers.sc13_max", 50)
	v.SetDefault("parsers.reports_per_form", 2)

	v.SetDefault("relationship.min_confidence", 0.50)
	v.SetDefault("relationship.fuzzy_threshold", 0.82)

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.ollama_url", "http://localhost:11434")
	v.SetDefault("ai.model", "llama3")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8090)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// SaveToFile writes the current configuration to a YAML file.
func SaveToFile(cfg *Config, path string) error {
	if path == "" {
		path = filepath.Join(".", "config", "config.yaml")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
