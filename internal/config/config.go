// Package config loads application configuration from config.yaml and
// LEADTRACE_* environment variables, and owns global logger setup.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Enrich  EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	Fusion  FusionConfig  `yaml:"fusion" mapstructure:"fusion"`
	Collect CollectConfig `yaml:"collect" mapstructure:"collect"`
	Scrape  ScrapeConfig  `yaml:"scrape" mapstructure:"scrape"`
	Places  PlacesConfig  `yaml:"places" mapstructure:"places"`
	IPGeo   IPGeoConfig   `yaml:"ipgeo" mapstructure:"ipgeo"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
}

// StoreConfig configures the cache backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig configures the tracking/lead HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// EnrichConfig configures the cache lifecycle.
type EnrichConfig struct {
	FreshTTLHours    int `yaml:"fresh_ttl_hours" mapstructure:"fresh_ttl_hours"`
	RecrawlTTLHours  int `yaml:"recrawl_ttl_hours" mapstructure:"recrawl_ttl_hours"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	LockTTLSecs      int `yaml:"lock_ttl_secs" mapstructure:"lock_ttl_secs"`
	RetryInitialMins int `yaml:"retry_initial_mins" mapstructure:"retry_initial_mins"`
	RetryMaxHours    int `yaml:"retry_max_hours" mapstructure:"retry_max_hours"`
}

// FreshTTL converts the configured hours to a duration.
func (c EnrichConfig) FreshTTL() time.Duration {
	return time.Duration(c.FreshTTLHours) * time.Hour
}

// RecrawlTTL converts the configured hours to a duration.
func (c EnrichConfig) RecrawlTTL() time.Duration {
	return time.Duration(c.RecrawlTTLHours) * time.Hour
}

// LockTTL converts the configured seconds to a duration.
func (c EnrichConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSecs) * time.Second
}

// FusionConfig configures evidence fusion. PolicyFile, when set, points
// at a YAML file overriding the built-in policy.
type FusionConfig struct {
	PolicyFile      string  `yaml:"policy_file" mapstructure:"policy_file"`
	AcceptThreshold float64 `yaml:"accept_threshold" mapstructure:"accept_threshold"`
}

// CollectConfig configures the evidence probes.
type CollectConfig struct {
	TimeoutSecs  int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequireBrand bool `yaml:"require_brand" mapstructure:"require_brand"`
}

// Timeout converts the configured seconds to a duration.
func (c CollectConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ScrapeConfig configures the team-page scraper.
type ScrapeConfig struct {
	PageTimeoutSecs int `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
}

// PageTimeout converts the configured seconds to a duration.
func (c ScrapeConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSecs) * time.Second
}

// PlacesConfig holds business-directory API settings.
type PlacesConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// IPGeoConfig holds IP geolocation API settings.
type IPGeoConfig struct {
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
	Burst   int     `yaml:"burst" mapstructure:"burst"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentIPs int `yaml:"max_concurrent_ips" mapstructure:"max_concurrent_ips"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "leadtrace.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("enrich.fresh_ttl_hours", 168)
	v.SetDefault("enrich.recrawl_ttl_hours", 336)
	v.SetDefault("enrich.max_attempts", 8)
	v.SetDefault("enrich.lock_ttl_secs", 300)
	v.SetDefault("enrich.retry_initial_mins", 15)
	v.SetDefault("enrich.retry_max_hours", 24)
	v.SetDefault("fusion.accept_threshold", 0.5)
	v.SetDefault("collect.timeout_secs", 3)
	v.SetDefault("collect.require_brand", false)
	v.SetDefault("scrape.page_timeout_secs", 10)
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("ipgeo.base_url", "http://ip-api.com/json")
	v.SetDefault("ipgeo.rps", 0.5)
	v.SetDefault("ipgeo.burst", 2)
	v.SetDefault("batch.max_concurrent_ips", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given run mode.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for the postgres driver")
	}
	if c.Enrich.MaxAttempts < 1 || c.Enrich.MaxAttempts > 20 {
		problems = append(problems, "enrich.max_attempts must be between 1 and 20")
	}
	if c.Fusion.AcceptThreshold < 0 || c.Fusion.AcceptThreshold > 1 {
		problems = append(problems, "fusion.accept_threshold must be in [0,1]")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		fallthrough
	case "batch":
		if c.Batch.MaxConcurrentIPs < 1 || c.Batch.MaxConcurrentIPs > 50 {
			problems = append(problems, "batch.max_concurrent_ips must be between 1 and 50")
		}
	case "resolve", "cache":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
