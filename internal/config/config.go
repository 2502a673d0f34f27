package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	Pricing        PricingConfig        `yaml:"pricing"`
	Redis          RedisConfig          `yaml:"redis"`
	Notify         NotifyConfig         `yaml:"notify"`
	Auth           AuthConfig           `yaml:"auth"`
	Watcher        WatcherConfig        `yaml:"watcher"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "postgres", "pgx" or "sqlite"
	// Path is the sqlite database file; ":memory:" for an ephemeral DB.
	Path string `yaml:"path"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// PricingConfig tunes market price resolution.
type PricingConfig struct {
	// StockStatuses is the allow-list of final_status values eligible for a pool.
	StockStatuses []string `yaml:"stock_statuses"`
	// PoolTimeout bounds each individual pool query.
	PoolTimeout time.Duration `yaml:"pool_timeout"`
	// TieBreakTimeout bounds the first-in-line lookup.
	TieBreakTimeout time.Duration `yaml:"tie_break_timeout"`
	// ListingStatus is stamped on newly created listings.
	ListingStatus string `yaml:"listing_status"`
}

// RedisConfig holds the connection settings for the badge cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	BadgeTTL time.Duration `yaml:"badge_ttl"`
}

// NotifyConfig selects outbound notification sinks. Empty values disable a sink.
type NotifyConfig struct {
	AMQPURL             string `yaml:"amqp_url"`
	Queue               string `yaml:"queue"`
	DiscordWebhookID    string `yaml:"discord_webhook_id"`
	DiscordWebhookToken string `yaml:"discord_webhook_token"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// WatcherConfig controls the background badge watcher.
type WatcherConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Load reads a YAML configuration file from the given path. A .env file next
// to the working directory is loaded first, and ${VAR} references in the YAML
// are expanded from the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "postgres",
			Path:    "pricingd.db",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "pricingd",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "pricingd-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		Pricing: PricingConfig{
			StockStatuses:   []string{"in_stock", "in_stock_consignment"},
			PoolTimeout:     3 * time.Second,
			TieBreakTimeout: 3 * time.Second,
			ListingStatus:   "in_stock_consignment",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			BadgeTTL: 24 * time.Hour,
		},
		Notify: NotifyConfig{
			Queue: "listing.badge_changed",
		},
		Watcher: WatcherConfig{
			Enabled:  true,
			Interval: time.Minute,
		},
	}
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "pgx", "sqlite":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"postgres\", \"pgx\" or \"sqlite\"", c.Database.Driver)
	}
	if len(c.Pricing.StockStatuses) == 0 {
		return errors.New("pricing.stock_statuses must not be empty")
	}
	if c.Pricing.ListingStatus == "" {
		return errors.New("pricing.listing_status must not be empty")
	}
	if c.Pricing.PoolTimeout <= 0 {
		return fmt.Errorf("pricing.pool_timeout must be positive, got %s", c.Pricing.PoolTimeout)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Watcher.Enabled && c.Watcher.Interval <= 0 {
		return fmt.Errorf("watcher.interval must be positive, got %s", c.Watcher.Interval)
	}
	return nil
}
