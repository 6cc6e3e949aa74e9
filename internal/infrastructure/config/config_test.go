package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv blanks every override so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HA_URL", "HA_TOKEN", "IPMAP_SNAPSHOT_FILE", "IPMAP_MATCH_THRESHOLD",
		"IPMAP_OUTPUT_DIR", "IPMAP_DATABASE_PATH", "IPMAP_MQTT_HOST",
		"IPMAP_MQTT_USERNAME", "IPMAP_MQTT_PASSWORD", "IPMAP_INFLUXDB_TOKEN",
		"IPMAP_API_HOST", "IPMAP_JWT_SECRET",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
homeassistant:
  url: "https://homeassistant.local:8123"
  token: "long-lived-token"
matching:
  threshold: 0.7
output:
  dir: "/tmp/ipmap"
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
api:
  port: 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HomeAssistant.URL != "https://homeassistant.local:8123" {
		t.Errorf("HomeAssistant.URL = %q", cfg.HomeAssistant.URL)
	}
	if cfg.Matching.Threshold != 0.7 {
		t.Errorf("Matching.Threshold = %v, want 0.7", cfg.Matching.Threshold)
	}
	if cfg.Matching.TargetMarker != "leviton" {
		t.Errorf("Matching.TargetMarker = %q, want default", cfg.Matching.TargetMarker)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("HA_URL", "http://ha.local:8123")
	t.Setenv("HA_TOKEN", "token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HomeAssistant.Token != "token" {
		t.Errorf("HomeAssistant.Token = %q", cfg.HomeAssistant.Token)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("IPMAP_OUTPUT_DIR", "/from/env")

	// The override satisfies validation that would otherwise fail for a
	// missing Home Assistant URL, and wins over the environment.
	cfg, err := Load("", func(c *Config) {
		c.HomeAssistant.SnapshotFile = "snapshot.json"
		c.Output.Dir = "/from/flag"
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output.Dir != "/from/flag" {
		t.Errorf("Output.Dir = %q, want /from/flag", cfg.Output.Dir)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
homeassistant:
  url: ""
api:
  port: 8080
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error for missing Home Assistant URL, got nil")
	}
	if !strings.Contains(err.Error(), "HA_URL") {
		t.Errorf("error should mention HA_URL: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	valid := func() *Config {
		cfg := defaultConfig()
		cfg.HomeAssistant.URL = "https://ha.local"
		cfg.HomeAssistant.Token = "token"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name: "snapshot file instead of URL",
			mutate: func(c *Config) {
				c.HomeAssistant.URL = ""
				c.HomeAssistant.Token = ""
				c.HomeAssistant.SnapshotFile = "devices.json"
			},
		},
		{name: "missing URL", mutate: func(c *Config) { c.HomeAssistant.URL = "" }, wantErr: true},
		{name: "missing token", mutate: func(c *Config) { c.HomeAssistant.Token = "" }, wantErr: true},
		{name: "URL without scheme", mutate: func(c *Config) { c.HomeAssistant.URL = "ha.local:8123" }, wantErr: true},
		{name: "threshold zero", mutate: func(c *Config) { c.Matching.Threshold = 0 }, wantErr: true},
		{name: "threshold one", mutate: func(c *Config) { c.Matching.Threshold = 1 }, wantErr: true},
		{name: "output without dir", mutate: func(c *Config) { c.Output.Dir = "" }, wantErr: true},
		{name: "negative interval", mutate: func(c *Config) { c.Schedule.Interval = -1 }, wantErr: true},
		{
			name: "database without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: true,
		},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{
			name: "mqtt without host",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker.Host = ""
			},
			wantErr: true,
		},
		{
			name: "influxdb without bucket",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://influx:8086"
				c.InfluxDB.Org = "home"
			},
			wantErr: true,
		},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "JWT secret set", mutate: func(c *Config) { c.Security.JWT.Secret = validJWTSecret }},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		HomeAssistant: HomeAssistantConfig{Timeout: 10},
		Schedule:      ScheduleConfig{Interval: 300},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetHomeAssistantTimeout().Seconds(); got != 10 {
		t.Errorf("GetHomeAssistantTimeout() = %v, want 10", got)
	}
	if got := cfg.GetScheduleInterval().Minutes(); got != 5 {
		t.Errorf("GetScheduleInterval() = %v, want 5m", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("HA_URL", "https://ha.example.com")
	t.Setenv("HA_TOKEN", "ha-token")
	t.Setenv("IPMAP_SNAPSHOT_FILE", "/data/devices.json")
	t.Setenv("IPMAP_MATCH_THRESHOLD", "0.75")
	t.Setenv("IPMAP_OUTPUT_DIR", "/srv/www")
	t.Setenv("IPMAP_DATABASE_PATH", "/custom/path.db")
	t.Setenv("IPMAP_MQTT_HOST", "mqtt.example.com")
	t.Setenv("IPMAP_MQTT_USERNAME", "testuser")
	t.Setenv("IPMAP_MQTT_PASSWORD", "testpass")
	t.Setenv("IPMAP_API_HOST", "192.168.1.1")
	t.Setenv("IPMAP_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("IPMAP_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"HomeAssistant.URL", cfg.HomeAssistant.URL, "https://ha.example.com"},
		{"HomeAssistant.Token", cfg.HomeAssistant.Token, "ha-token"},
		{"HomeAssistant.SnapshotFile", cfg.HomeAssistant.SnapshotFile, "/data/devices.json"},
		{"Output.Dir", cfg.Output.Dir, "/srv/www"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if cfg.Matching.Threshold != 0.75 {
		t.Errorf("Matching.Threshold = %v, want 0.75", cfg.Matching.Threshold)
	}
}

func TestApplyEnvOverrides_BadThresholdIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("IPMAP_MATCH_THRESHOLD", "high")

	applyEnvOverrides(cfg)

	if cfg.Matching.Threshold != 0.6 {
		t.Errorf("Matching.Threshold = %v, want 0.6", cfg.Matching.Threshold)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("HA_URL=http://from-dotenv:8123\nHA_TOKEN=dotenv-token\n"), 0600); err != nil {
		t.Fatalf("writing .env: %v", err)
	}
	// godotenv only fills unset variables.
	os.Unsetenv("HA_URL")
	os.Unsetenv("HA_TOKEN")
	t.Cleanup(func() {
		os.Unsetenv("HA_URL")
		os.Unsetenv("HA_TOKEN")
	})

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HomeAssistant.URL != "http://from-dotenv:8123" || cfg.HomeAssistant.Token != "dotenv-token" {
		t.Errorf("HomeAssistant = %+v", cfg.HomeAssistant)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Matching.Threshold != 0.6 {
		t.Errorf("defaultConfig Matching.Threshold = %v, want 0.6", cfg.Matching.Threshold)
	}
	if cfg.Notification.ID != "matter_ip_mapping" {
		t.Errorf("defaultConfig Notification.ID = %q", cfg.Notification.ID)
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}
