package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for WattMCP Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
	Gateway  GatewayConfig  `yaml:"gateway"`
}

// ServerConfig contains HTTP API server settings.
type ServerConfig struct {
	Host     string              `yaml:"host"`
	Port     int                 `yaml:"port"`
	TLS      TLSConfig           `yaml:"tls"`
	Timeouts ServerTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig          `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains API authentication settings.
//
// WattMCP uses static bearer API keys: agents are issued long-lived keys
// out of band. Key rotation is an operational concern, not modelled here.
type SecurityConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// GatewayConfig contains correlation engine tuning.
type GatewayConfig struct {
	// TopicPrefix is the root of the MQTT topic hierarchy.
	// Default: "wattagent"
	TopicPrefix string `yaml:"topic_prefix"`

	// OfflineThreshold is the duration of device silence after which a
	// device is reported offline, in seconds.
	OfflineThreshold int `yaml:"offline_threshold"`

	// DefaultCommandTimeout is the command wait deadline applied when a
	// caller does not supply one, in seconds.
	DefaultCommandTimeout int `yaml:"default_command_timeout"`

	// MaxCommandTimeout caps caller-supplied command timeouts, in seconds.
	MaxCommandTimeout int `yaml:"max_command_timeout"`

	// ReaperInterval is the sweep period of the pending-command timeout
	// reaper, in milliseconds. It bounds how long an expired entry may
	// outlive its deadline.
	ReaperInterval int `yaml:"reaper_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WATTMCP_SECTION_KEY
// For example: WATTMCP_DATABASE_PATH, WATTMCP_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 90,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wattmcp-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/wattmcp.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Gateway: GatewayConfig{
			TopicPrefix:           "wattagent",
			OfflineThreshold:      30,
			DefaultCommandTimeout: 10,
			MaxCommandTimeout:     60,
			ReaperInterval:        250,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WATTMCP_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("WATTMCP_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("WATTMCP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("WATTMCP_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WATTMCP_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("WATTMCP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WATTMCP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("WATTMCP_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("WATTMCP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - API keys as a comma-separated list
	if v := os.Getenv("WATTMCP_API_KEYS"); v != "" {
		cfg.Security.APIKeys = nil
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.Security.APIKeys = append(cfg.Security.APIKeys, k)
			}
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// API keys are REQUIRED. WattMCP commands drive physical power
	// hardware; an unauthenticated gateway would let anyone change a
	// converter's voltage reference.
	if len(c.Security.APIKeys) == 0 {
		errs = append(errs, "security.api_keys is required (set WATTMCP_API_KEYS environment variable)")
	}

	if c.Gateway.TopicPrefix == "" {
		errs = append(errs, "gateway.topic_prefix is required")
	}
	if c.Gateway.OfflineThreshold <= 0 {
		errs = append(errs, "gateway.offline_threshold must be positive")
	}
	if c.Gateway.DefaultCommandTimeout <= 0 {
		errs = append(errs, "gateway.default_command_timeout must be positive")
	}
	if c.Gateway.MaxCommandTimeout < c.Gateway.DefaultCommandTimeout {
		errs = append(errs, "gateway.max_command_timeout must be >= gateway.default_command_timeout")
	}
	if c.Gateway.ReaperInterval <= 0 {
		errs = append(errs, "gateway.reaper_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the HTTP read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}

// GetOfflineThreshold returns the device offline threshold as a Duration.
func (c *GatewayConfig) GetOfflineThreshold() time.Duration {
	return time.Duration(c.OfflineThreshold) * time.Second
}

// GetDefaultCommandTimeout returns the default command timeout as a Duration.
func (c *GatewayConfig) GetDefaultCommandTimeout() time.Duration {
	return time.Duration(c.DefaultCommandTimeout) * time.Second
}

// GetMaxCommandTimeout returns the maximum command timeout as a Duration.
func (c *GatewayConfig) GetMaxCommandTimeout() time.Duration {
	return time.Duration(c.MaxCommandTimeout) * time.Second
}

// GetReaperInterval returns the reaper sweep interval as a Duration.
func (c *GatewayConfig) GetReaperInterval() time.Duration {
	return time.Duration(c.ReaperInterval) * time.Millisecond
}
