package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Motion.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Machine  MachineConfig  `yaml:"machine"`
	Drive    DriveConfig    `yaml:"drive"`
	Slaves   []SlaveConfig  `yaml:"slaves"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MachineConfig identifies this node and tunes the coordination loops.
type MachineConfig struct {
	// Serialnumber is reported to masters on /slave/get machine:serialnumber.
	Serialnumber string `yaml:"serialnumber"`

	// Host and Port form the address other machines use to reach this node.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// OperatingMode is applied at startup: standalone, master or slave.
	OperatingMode string `yaml:"operating_mode"`

	// Master is the "host[:port]" of the master when OperatingMode is slave.
	Master string `yaml:"master"`

	// RefreshInterval is the machine loop period. Default: 500ms
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// ReplyTimeout bounds the wait for a correlated reply. Default: 1s
	ReplyTimeout time.Duration `yaml:"reply_timeout"`

	// SlaveTimeout disables the drive when a slave hears nothing from its
	// master for this long. Zero disables the watcher. Default: 1s
	SlaveTimeout time.Duration `yaml:"slave_timeout"`
}

// DriveConfig describes the local drive and how to reach it.
type DriveConfig struct {
	// Driver selects the driver implementation ("modbus").
	Driver string `yaml:"driver"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// UnitID is the Modbus unit identifier. 0 derives it from the last
	// octet of Host when Host is an IPv4 address.
	UnitID int `yaml:"unit_id"`

	// Timeout is the per-request I/O timeout. Default: 1s
	Timeout time.Duration `yaml:"timeout"`

	// NetdataMap optionally points to a YAML netdata map replacing the
	// built-in one.
	NetdataMap string `yaml:"netdata_map"`

	Connect ConnectRetryConfig `yaml:"connect"`
}

// ConnectRetryConfig holds the connect retry policy.
type ConnectRetryConfig struct {
	// Tries is the total number of connection attempts. Default: 5
	Tries int `yaml:"tries"`

	// Wait is the delay before the second attempt. Default: 5s
	Wait time.Duration `yaml:"wait"`

	// Backoff multiplies Wait after every failed attempt. Default: 2
	Backoff float64 `yaml:"backoff"`
}

// SlaveConfig declares a slave known at startup (master mode).
type SlaveConfig struct {
	Serialnumber string            `yaml:"serialnumber"`
	Address      string            `yaml:"address"`
	Driver       string            `yaml:"driver"`
	ControlMode  string            `yaml:"control_mode"`
	Config       map[string]string `yaml:"config"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP admin API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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

	// SampleKeys are drive keys read every SampleInterval and recorded as
	// drive_value points. Empty disables sampling.
	SampleKeys     []string      `yaml:"sample_keys"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// MetricsConfig controls the Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_DRIVE_HOST
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
		Machine: MachineConfig{
			Host:            "127.0.0.1",
			Port:            6969,
			OperatingMode:   "standalone",
			RefreshInterval: 500 * time.Millisecond,
			ReplyTimeout:    time.Second,
			SlaveTimeout:    time.Second,
		},
		Drive: DriveConfig{
			Driver:  "modbus",
			Host:    "127.0.0.1",
			Port:    502,
			Timeout: time.Second,
			Connect: ConnectRetryConfig{
				Tries:   5,
				Wait:    5 * time.Second,
				Backoff: 2,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/motion.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-motion",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:      100,
			FlushInterval:  10,
			SampleInterval: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "graylogic_motion",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Machine
	if v := os.Getenv("GRAYLOGIC_MACHINE_SERIALNUMBER"); v != "" {
		cfg.Machine.Serialnumber = v
	}
	if v := os.Getenv("GRAYLOGIC_MACHINE_HOST"); v != "" {
		cfg.Machine.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MACHINE_MODE"); v != "" {
		cfg.Machine.OperatingMode = v
	}
	if v := os.Getenv("GRAYLOGIC_MACHINE_MASTER"); v != "" {
		cfg.Machine.Master = v
	}

	// Drive
	if v := os.Getenv("GRAYLOGIC_DRIVE_HOST"); v != "" {
		cfg.Drive.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_DRIVE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Drive.Port = port
		}
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Every problem is collected so a single run reports them all.
func (c *Config) Validate() error {
	var errs []string

	// Machine validation
	if c.Machine.Host == "" {
		errs = append(errs, "machine.host is required")
	}
	if c.Machine.Port < 1 || c.Machine.Port > 65535 {
		errs = append(errs, "machine.port must be between 1 and 65535")
	}
	switch c.Machine.OperatingMode {
	case "", "standalone", "master":
	case "slave":
		if c.Machine.Master == "" {
			errs = append(errs, "machine.master is required in slave mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("machine.operating_mode %q is not one of standalone, master, slave", c.Machine.OperatingMode))
	}
	if c.Machine.OperatingMode == "master" && len(c.Slaves) == 0 {
		errs = append(errs, "machine.operating_mode master requires at least one slave")
	}
	if c.Machine.ReplyTimeout < 0 || c.Machine.RefreshInterval < 0 || c.Machine.SlaveTimeout < 0 {
		errs = append(errs, "machine timeouts must not be negative")
	}

	// Drive validation
	if c.Drive.Driver == "" {
		errs = append(errs, "drive.driver is required")
	}
	if c.Drive.Port < 1 || c.Drive.Port > 65535 {
		errs = append(errs, "drive.port must be between 1 and 65535")
	}
	if c.Drive.UnitID < 0 || c.Drive.UnitID > 255 {
		errs = append(errs, "drive.unit_id must be between 0 and 255")
	}
	if c.Drive.Connect.Tries < 1 {
		errs = append(errs, "drive.connect.tries must be at least 1")
	}
	if c.Drive.Connect.Backoff < 1 {
		errs = append(errs, "drive.connect.backoff must be at least 1")
	}

	// Slave validation
	for i, s := range c.Slaves {
		if s.Address == "" {
			errs = append(errs, fmt.Sprintf("slaves[%d].address is required", i))
		}
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Address returns the "host:port" this machine is reachable at.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Machine.Host, strconv.Itoa(c.Machine.Port))
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
