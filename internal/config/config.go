// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server            ServerConfig             `mapstructure:"server"`
	Logging           LoggingConfig            `mapstructure:"logging"`
	Bridge            BridgeConfig             `mapstructure:"bridge"`
	Database          DatabaseConfig           `mapstructure:"database"`
	Metrics           MetricsConfig            `mapstructure:"metrics"`
	App               AppConfig                `mapstructure:"app"`
	SerialConnections []SerialConnectionConfig `mapstructure:"serial_connections"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	StaticDir      string        `mapstructure:"static_dir"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// LoggingConfig represents application logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// BridgeConfig tunes the per-connection read loop, fan-out and write funnel
type BridgeConfig struct {
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
	WriteQueue       int           `mapstructure:"write_queue"`
	ReadBuffer       int           `mapstructure:"read_buffer"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	ShutdownGrace    time.Duration `mapstructure:"shutdown_grace"`
}

// DatabaseConfig represents the optional connection journal database
type DatabaseConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"dbname"`
	SSLMode          string        `mapstructure:"sslmode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	MaxLifetime      time.Duration `mapstructure:"max_lifetime"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	Retention        time.Duration `mapstructure:"retention"`
}

// MetricsConfig represents Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// Load reads the configuration file at path. An empty path falls back to
// WEBMUX_CONFIG and then ./config.yaml.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("WEBMUX_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Environment variable support
	v.SetEnvPrefix("WEBMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.applyConnectionDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.static_dir", "static")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Bridge defaults
	v.SetDefault("bridge.subscriber_buffer", DefaultSubscriberBuffer)
	v.SetDefault("bridge.write_queue", DefaultWriteQueue)
	v.SetDefault("bridge.read_buffer", DefaultReadBuffer)
	v.SetDefault("bridge.read_timeout", DefaultReadTimeout)
	v.SetDefault("bridge.shutdown_grace", DefaultShutdownGrace)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "webmux")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.snapshot_interval", "1m")
	v.SetDefault("database.retention", "720h")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// App defaults
	v.SetDefault("app.name", "webmux")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, c.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	if c.Bridge.SubscriberBuffer <= 0 || c.Bridge.WriteQueue <= 0 || c.Bridge.ReadBuffer <= 0 {
		return fmt.Errorf("bridge buffer sizes must be positive")
	}
	if c.Bridge.ReadTimeout <= 0 {
		return fmt.Errorf("bridge.read_timeout must be positive")
	}

	return ValidateConnections(c.SerialConnections)
}

// applyConnectionDefaults fills unset serial parameters with 8N1 and no flow
// control.
func (c *Config) applyConnectionDefaults() {
	for i := range c.SerialConnections {
		conn := &c.SerialConnections[i]
		if conn.DataBits == 0 {
			conn.DataBits = 8
		}
		if conn.StopBits == 0 {
			conn.StopBits = 1
		}
		if conn.Parity == "" {
			conn.Parity = ParityNone
		}
		if conn.FlowControl == "" {
			conn.FlowControl = FlowControlNone
		}
	}
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DSN returns the lib/pq connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
