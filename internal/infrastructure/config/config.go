package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the mapper.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Matching      MatchingConfig      `yaml:"matching"`
	Output        OutputConfig        `yaml:"output"`
	Notification  NotificationConfig  `yaml:"notification"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	API           APIConfig           `yaml:"api"`
	Security      SecurityConfig      `yaml:"security"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HomeAssistantConfig describes where the device inventory comes from.
//
// When SnapshotFile is set the inventory is read from a registry dump on
// disk and the websocket connection is only used for notifications.
type HomeAssistantConfig struct {
	URL                string `yaml:"url"`
	Token              string `yaml:"token"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	Timeout            int    `yaml:"timeout"`
	SnapshotFile       string `yaml:"snapshot_file"`
}

// MatchingConfig tunes classification and the similarity threshold.
type MatchingConfig struct {
	SourceMarker string  `yaml:"source_marker"`
	TargetMarker string  `yaml:"target_marker"`
	Threshold    float64 `yaml:"threshold"`
}

// OutputConfig controls the report files.
type OutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// NotificationConfig controls Home Assistant persistent notifications.
type NotificationConfig struct {
	Enabled bool   `yaml:"enabled"`
	ID      string `yaml:"id"`
}

// ScheduleConfig controls periodic refresh in serve mode. An interval of 0
// disables it.
type ScheduleConfig struct {
	Interval int `yaml:"interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	Org       string `yaml:"org"`
	Bucket    string `yaml:"bucket"`
	BatchSize int    `yaml:"batch_size"`
	Timeout   int    `yaml:"timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings. An empty secret leaves the API
// unauthenticated.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// minJWTSecretLength is the shortest accepted HMAC secret.
const minJWTSecretLength = 32

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// An empty path skips step 2, so the mapper can run from the environment
// alone (HA_URL and HA_TOKEN). Overrides (command-line flags) run after
// the environment and before validation.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from the given .env files into the
// process environment. Variables already set are left untouched and
// missing files are skipped.
func LoadEnvFile(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading env file %s: %w", p, err)
		}
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		HomeAssistant: HomeAssistantConfig{
			Timeout: 30,
		},
		Matching: MatchingConfig{
			SourceMarker: "matter",
			TargetMarker: "leviton",
			Threshold:    0.6,
		},
		Output: OutputConfig{
			Enabled: true,
			Dir:     ".",
		},
		Notification: NotificationConfig{
			Enabled: true,
			ID:      "matter_ip_mapping",
		},
		Database: DatabaseConfig{
			Path:        "./data/ipmap.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ipmap",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize: 100,
			Timeout:   10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8085,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer: "ipmap",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// HA_URL and HA_TOKEN keep their conventional names; everything else follows
// the pattern IPMAP_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	// Home Assistant
	if v := os.Getenv("HA_URL"); v != "" {
		cfg.HomeAssistant.URL = v
	}
	if v := os.Getenv("HA_TOKEN"); v != "" {
		cfg.HomeAssistant.Token = v
	}
	if v := os.Getenv("IPMAP_SNAPSHOT_FILE"); v != "" {
		cfg.HomeAssistant.SnapshotFile = v
	}

	// Matching
	if v := os.Getenv("IPMAP_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.Threshold = f
		}
	}

	// Output
	if v := os.Getenv("IPMAP_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}

	// Database
	if v := os.Getenv("IPMAP_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("IPMAP_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("IPMAP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("IPMAP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("IPMAP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("IPMAP_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Security
	if v := os.Getenv("IPMAP_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and reports all of them at once.
func (c *Config) Validate() error {
	var errs []string

	// Inventory source
	if c.HomeAssistant.SnapshotFile == "" {
		if c.HomeAssistant.URL == "" {
			errs = append(errs, "homeassistant.url is required (set HA_URL environment variable) unless homeassistant.snapshot_file is set")
		}
		if c.HomeAssistant.Token == "" {
			errs = append(errs, "homeassistant.token is required (set HA_TOKEN environment variable) unless homeassistant.snapshot_file is set")
		}
	}
	if c.HomeAssistant.URL != "" && !hasScheme(c.HomeAssistant.URL) {
		errs = append(errs, "homeassistant.url must start with http://, https://, ws:// or wss://")
	}
	if c.Notification.Enabled && c.HomeAssistant.URL != "" && c.Notification.ID == "" {
		errs = append(errs, "notification.id is required when notifications are enabled")
	}

	// Matching
	if c.Matching.Threshold <= 0 || c.Matching.Threshold >= 1 {
		errs = append(errs, "matching.threshold must be between 0 and 1 (exclusive)")
	}

	// Output
	if c.Output.Enabled && c.Output.Dir == "" {
		errs = append(errs, "output.dir is required when output is enabled")
	}

	// Schedule
	if c.Schedule.Interval < 0 {
		errs = append(errs, "schedule.interval must not be negative")
	}

	// Database
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// InfluxDB
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// API
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Security
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func hasScheme(u string) bool {
	for _, p := range []string{"http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(strings.ToLower(u), p) {
			return true
		}
	}
	return false
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

// GetHomeAssistantTimeout returns the per-request Home Assistant timeout.
func (c *Config) GetHomeAssistantTimeout() time.Duration {
	return time.Duration(c.HomeAssistant.Timeout) * time.Second
}

// GetScheduleInterval returns the periodic refresh interval, zero when disabled.
func (c *Config) GetScheduleInterval() time.Duration {
	return time.Duration(c.Schedule.Interval) * time.Second
}
