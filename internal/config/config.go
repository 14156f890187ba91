// Package config loads and validates scan service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Scan    ScanConfig    `mapstructure:"scan"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Storage StorageConfig `mapstructure:"storage"`
	Drive   DriveConfig   `mapstructure:"drive"`
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

// ScanConfig governs dispatcher and worker pipeline behavior.
type ScanConfig struct {
	BatchSize          int `mapstructure:"batch_size"`
	ProgressCadence    int `mapstructure:"progress_cadence"`
	ItemParallelism    int `mapstructure:"item_parallelism"`
	ItemTimeoutSeconds int `mapstructure:"item_timeout_seconds"`
	QueueDepth         int `mapstructure:"queue_depth"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// PubSubConfig identifies the work queue topic and subscription.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	TopicName    string `mapstructure:"topic_name"`
	Subscription string `mapstructure:"subscription"`
}

// StorageConfig sets where generated reports live. GCSBucket wins when both
// it and LocalDir are set; with neither, reports stay in process memory.
type StorageConfig struct {
	GCSBucket     string `mapstructure:"gcs_bucket"`
	LocalDir      string `mapstructure:"local_dir"`
	Prefix        string `mapstructure:"prefix"`
	URLTTLMinutes int    `mapstructure:"url_ttl_minutes"`
}

// DriveConfig configures document source enumeration.
type DriveConfig struct {
	CredentialsFile   string  `mapstructure:"credentials_file"`
	PageSize          int     `mapstructure:"page_size"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	RequestBurst      int     `mapstructure:"request_burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DRAWSCAN")
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
	v.SetDefault("scan.batch_size", 10)
	v.SetDefault("scan.progress_cadence", 10)
	v.SetDefault("scan.item_parallelism", 10)
	v.SetDefault("scan.item_timeout_seconds", 120)
	v.SetDefault("scan.queue_depth", 256)
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("storage.prefix", "reports")
	v.SetDefault("storage.url_ttl_minutes", 60)
	v.SetDefault("drive.page_size", 1000)
	v.SetDefault("drive.requests_per_second", 8)
	v.SetDefault("drive.request_burst", 4)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("scan.batch_size must be > 0")
	}
	if c.Scan.ProgressCadence <= 0 {
		return fmt.Errorf("scan.progress_cadence must be > 0")
	}
	if c.Scan.ItemParallelism <= 0 {
		return fmt.Errorf("scan.item_parallelism must be > 0")
	}
	if c.Scan.ItemTimeoutSeconds <= 0 {
		return fmt.Errorf("scan.item_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Storage.URLTTLMinutes <= 0 {
		return fmt.Errorf("storage.url_ttl_minutes must be > 0")
	}
	return nil
}

// ItemTimeout returns the per-item processing budget as a duration.
func (c Config) ItemTimeout() time.Duration {
	return time.Duration(c.Scan.ItemTimeoutSeconds) * time.Second
}

// ReportURLTTL returns the lifetime of signed report download URLs.
func (c Config) ReportURLTTL() time.Duration {
	return time.Duration(c.Storage.URLTTLMinutes) * time.Minute
}
