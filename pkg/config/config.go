package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration (entries service)
	Server ServerConfig `mapstructure:"server"`

	// Database configuration (entries service)
	Database DatabaseConfig `mapstructure:"database"`

	// Remote reading store configuration (clients)
	Store StoreConfig `mapstructure:"store"`

	// Collection controller configuration
	Collection CollectionConfig `mapstructure:"collection"`

	// Puncture site layout calibration
	Layout LayoutConfig `mapstructure:"layout"`

	// Site recommendation configuration (entries service)
	Recommendations RecommendationConfig `mapstructure:"recommendations"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	IdleTimeout  int      `mapstructure:"idle_timeout"`
	AllowOrigins []string `mapstructure:"allow_origins"`
	// WriteRateLimit is creates plus deletes allowed per client per minute. Zero disables the limit.
	WriteRateLimit int `mapstructure:"write_rate_limit"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration. Driver "memory" keeps entries in process.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// StoreConfig holds the remote reading store client configuration
type StoreConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	RequestTimeoutMS int    `mapstructure:"request_timeout_ms"`
	TotalCountHeader string `mapstructure:"total_count_header"`
}

// RequestTimeout returns the bounded wait applied to each store call
func (s StoreConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMS) * time.Millisecond
}

// CollectionConfig holds controller defaults
type CollectionConfig struct {
	DefaultPageSize    int    `mapstructure:"default_page_size"`
	DefaultSort        string `mapstructure:"default_sort"`
	RefreshAfterDelete bool   `mapstructure:"refresh_after_delete"`
}

// LayoutConfig holds site layout calibration
type LayoutConfig struct {
	SideOffset float64 `mapstructure:"side_offset"`
}

// RecommendationConfig holds recommendation tuning
type RecommendationConfig struct {
	Count    int `mapstructure:"count"`
	Lookback int `mapstructure:"lookback"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from an explicit file, or searches the default
// locations when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/glucose-tracker")
	}

	// Enable environment variable support
	v.SetEnvPrefix("GLUCOSE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return LoadFrom(v)
}

// LoadFrom builds a Config from a prepared viper instance
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Override with environment variables
	overrideWithEnv(&config)

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.write_rate_limit", 120)

	// Database defaults
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "glucose")
	v.SetDefault("database.user", "glucose")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 300)

	// Store client defaults
	v.SetDefault("store.base_url", "http://localhost:8080")
	v.SetDefault("store.request_timeout_ms", 10000)
	v.SetDefault("store.total_count_header", "X-Total-Count")

	// Collection defaults
	v.SetDefault("collection.default_page_size", 5)
	v.SetDefault("collection.default_sort", "time-desc")
	v.SetDefault("collection.refresh_after_delete", false)

	// Layout defaults
	v.SetDefault("layout.side_offset", 4.0)

	// Recommendation defaults
	v.SetDefault("recommendations.count", 3)
	v.SetDefault("recommendations.lookback", 20)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.health_path", "/health")

	// Logging defaults
	v.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
		config.Database.Driver = "postgres"
	}

	if storeURL := os.Getenv("GLUCOSE_STORE_URL"); storeURL != "" {
		config.Store.BaseURL = storeURL
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.WriteRateLimit < 0 {
		return fmt.Errorf("write rate limit must not be negative")
	}

	u, err := url.Parse(config.Store.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid store base URL: %q", config.Store.BaseURL)
	}

	if config.Store.RequestTimeoutMS <= 0 {
		return fmt.Errorf("store request timeout must be positive")
	}

	switch config.Database.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %q", config.Database.Driver)
	}

	switch config.Collection.DefaultPageSize {
	case 5, 10, 20:
	default:
		return fmt.Errorf("invalid default page size: %d", config.Collection.DefaultPageSize)
	}

	switch config.Collection.DefaultSort {
	case "time-asc", "time-desc", "value-asc", "value-desc":
	default:
		return fmt.Errorf("invalid default sort: %q", config.Collection.DefaultSort)
	}

	if config.Layout.SideOffset < 0 {
		return fmt.Errorf("layout side offset must not be negative")
	}

	if config.Recommendations.Count <= 0 {
		return fmt.Errorf("recommendation count must be positive")
	}

	return nil
}
