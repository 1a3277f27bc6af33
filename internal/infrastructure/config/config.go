package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Scanner enumeration sources.
const (
	ScannerSourceScanimage = "scanimage"
	ScannerSourceStatic    = "static"
)

// Config is the root configuration structure for sane2mqtt.
// Values come from defaults, an optional YAML file, environment variables
// and finally command-line flags.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Logging  LoggingConfig  `yaml:"logging"`
	Audit    AuditConfig    `yaml:"audit"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// BridgeConfig contains the topic layout settings.
type BridgeConfig struct {
	// Topic is the base topic without leading slash, e.g. "sane".
	// Trailing slashes are stripped.
	Topic string `yaml:"topic"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keepalive"` // seconds
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

// MQTTReconnectConfig controls the broker client's reconnection policy.
// The bridge itself never reconnects; this only configures the client library.
type MQTTReconnectConfig struct {
	Enabled  bool `yaml:"enabled"`
	MaxDelay int  `yaml:"max_delay"` // seconds
}

// ScannerConfig selects how devices are enumerated at startup.
type ScannerConfig struct {
	// Source is "scanimage" (run the SANE frontend) or "static" (use Devices).
	Source  string         `yaml:"source"`
	Binary  string         `yaml:"binary"`
	Timeout int            `yaml:"timeout"` // seconds
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig describes one statically configured scanner.
type DeviceConfig struct {
	Port      string `yaml:"port"`
	Vendor    string `yaml:"vendor"`
	ProductID string `yaml:"product_id"`
	Type      string `yaml:"type"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Output  string `yaml:"output"`
	Verbose bool   `yaml:"verbose"`
}

// AuditConfig contains the SQLite command audit settings.
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Read builds a configuration without validating it. An empty path skips
// the file.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SANE2MQTT_SECTION_KEY
// For example: SANE2MQTT_MQTT_HOST, SANE2MQTT_MQTT_PASSWORD
//
// Callers apply their own overrides and then call Validate.
func Read(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a Config with the defaults of the command-line tool.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Topic: "sane",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "127.0.0.1",
				Port: 1883,
			},
			QoS:       1,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				Enabled:  true,
				MaxDelay: 60,
			},
		},
		Scanner: ScannerConfig{
			Source:  ScannerSourceScanimage,
			Binary:  "scanimage",
			Timeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "error",
			Format: "text",
			Output: "stderr",
		},
		Audit: AuditConfig{
			Path:        "./data/sane2mqtt.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SANE2MQTT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SANE2MQTT_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SANE2MQTT_MQTT_PORT: %w", ErrInvalidConfig, err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("SANE2MQTT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SANE2MQTT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("SANE2MQTT_TOPIC"); v != "" {
		cfg.Bridge.Topic = v
	}
	if v := os.Getenv("SANE2MQTT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SANE2MQTT_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
	if v := os.Getenv("SANE2MQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	return nil
}

// Validate checks the configuration for errors.
// All problems are reported together in one error wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []string

	// Topic validation
	base := c.BaseTopic()
	if base == "" {
		errs = append(errs, "bridge.topic is required")
	} else if strings.ContainsAny(base, "+#") {
		errs = append(errs, "bridge.topic must not contain MQTT wildcards")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 1 {
		errs = append(errs, "mqtt.keepalive must be at least 1 second")
	}
	if c.MQTT.Auth.Username != "" && c.MQTT.Auth.Password == "" {
		errs = append(errs, "mqtt.auth.username requires a password")
	}
	if c.MQTT.Auth.Password != "" && c.MQTT.Auth.Username == "" {
		errs = append(errs, "mqtt.auth.password requires a username")
	}

	// Scanner validation
	switch c.Scanner.Source {
	case ScannerSourceScanimage:
		if c.Scanner.Binary == "" {
			errs = append(errs, "scanner.binary is required for source scanimage")
		}
	case ScannerSourceStatic:
	default:
		errs = append(errs, fmt.Sprintf("scanner.source %q must be scanimage or static", c.Scanner.Source))
	}

	// Optional sinks
	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, "audit.path is required when audit is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// BaseTopic returns the configured topic prefix with trailing slashes stripped.
func (c *Config) BaseTopic() string {
	return strings.TrimRight(c.Bridge.Topic, "/")
}

// GetTimeout returns the enumeration timeout as a Duration.
func (c *ScannerConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetKeepAlive returns the MQTT keepalive as a Duration.
func (c *MQTTConfig) GetKeepAlive() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}
