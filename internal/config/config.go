// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Events  EventsConfig  `mapstructure:"events"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FetchConfig governs the outbound fetch engine.
type FetchConfig struct {
	Namespace      string   `mapstructure:"namespace"`
	UserAgent      string   `mapstructure:"user_agent"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxRetries     int      `mapstructure:"max_retries"`
	MaxRedirects   int      `mapstructure:"max_redirects"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
	MaxURLLength   int      `mapstructure:"max_url_length"`
	Concurrency    int      `mapstructure:"concurrency"`
	PerHostQPS     float64  `mapstructure:"per_host_qps"`
	BlockedHosts   []string `mapstructure:"blocked_hosts"`
}

// CacheConfig bounds the in-memory result cache.
type CacheConfig struct {
	TTLSeconds      int `mapstructure:"ttl_seconds"`
	MaxKeys         int `mapstructure:"max_keys"`
	MaxContentBytes int `mapstructure:"max_content_bytes"`
}

// AuditConfig controls the fetch audit log.
type AuditConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

// ArchiveConfig controls raw-body blob archival.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// EventsConfig holds metadata for fetch-completed notifications.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FETCHGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.namespace", "fetch")
	v.SetDefault("fetch.user_agent", "fetchguard/0.1")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.max_body_bytes", 5*1024*1024)
	v.SetDefault("fetch.max_url_length", 2048)
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("fetch.per_host_qps", 0)
	v.SetDefault("cache.ttl_seconds", 900)
	v.SetDefault("cache.max_keys", 1000)
	v.SetDefault("cache.max_content_bytes", 1024*1024)
	v.SetDefault("audit.provider", "noop")
	v.SetDefault("audit.table", "fetches")
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "bodies")
	v.SetDefault("events.provider", "noop")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.Namespace == "" {
		return fmt.Errorf("fetch.namespace must be set")
	}
	if c.Fetch.UserAgent == "" {
		return fmt.Errorf("fetch.user_agent must be set")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries < 1 || c.Fetch.MaxRetries > 10 {
		return fmt.Errorf("fetch.max_retries must be in [1,10]")
	}
	if c.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must be >= 0")
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be > 0")
	}
	if c.Fetch.MaxURLLength <= 0 {
		return fmt.Errorf("fetch.max_url_length must be > 0")
	}
	if c.Fetch.Concurrency < 1 || c.Fetch.Concurrency > 10 {
		return fmt.Errorf("fetch.concurrency must be in [1,10]")
	}
	if c.Fetch.PerHostQPS < 0 {
		return fmt.Errorf("fetch.per_host_qps must be >= 0")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	if c.Cache.MaxKeys <= 0 {
		return fmt.Errorf("cache.max_keys must be > 0")
	}
	if c.Cache.MaxContentBytes <= 0 {
		return fmt.Errorf("cache.max_content_bytes must be > 0")
	}
	if c.Audit.Provider == "postgres" && c.Audit.DSN == "" {
		return fmt.Errorf("audit.dsn must be set when audit.provider is postgres")
	}
	if c.Archive.Provider == "gcs" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set when archive.provider is gcs")
	}
	if c.Events.Provider == "pubsub" && (c.Events.ProjectID == "" || c.Events.TopicName == "") {
		return fmt.Errorf("events.project_id and events.topic_name must be set when events.provider is pubsub")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}
