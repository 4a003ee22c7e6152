package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("mqtt:\n  host: broker.local\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("mqtt:\n  host: broker.local\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("mqtt:\n  host: broker.local\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.MQTT.Port != 1883 {
		t.Errorf("Port = %d, want 1883", cfg.MQTT.Port)
	}
	if cfg.MQTT.DiscoveryPrefix != "homeassistant" {
		t.Errorf("DiscoveryPrefix = %q, want %q", cfg.MQTT.DiscoveryPrefix, "homeassistant")
	}
	if cfg.MQTT.TopicPrefix != "zpool" {
		t.Errorf("TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "zpool")
	}
	if cfg.Zpool.Command != "/usr/sbin/zpool" {
		t.Errorf("Command = %q, want %q", cfg.Zpool.Command, "/usr/sbin/zpool")
	}
	if cfg.Zpool.IntervalSec != 600 {
		t.Errorf("IntervalSec = %d, want 600", cfg.Zpool.IntervalSec)
	}
	if cfg.Zpool.TimeoutSec != 10 {
		t.Errorf("TimeoutSec = %d, want 10", cfg.Zpool.TimeoutSec)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("mqtt:\n  host: broker.local\n  password: ${ZPOOL_MQTT_TEST_PW}\n"), 0600)
	os.Setenv("ZPOOL_MQTT_TEST_PW", "secret123")
	defer os.Unsetenv("ZPOOL_MQTT_TEST_PW")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MQTT.Password != "secret123" {
		t.Errorf("password = %q, want %q", cfg.MQTT.Password, "secret123")
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  MQTTConfig
		want string
	}{
		{"plain", MQTTConfig{Host: "broker.local", Port: 1883}, "mqtt://broker.local:1883"},
		{"tls", MQTTConfig{Host: "broker.local", Port: 8883, TLS: true}, "mqtts://broker.local:8883"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.BrokerURL(); got != tt.want {
				t.Errorf("BrokerURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.MQTT.Host = "broker.local"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"missing host", func(c *Config) { c.MQTT.Host = "" }, true},
		{"bad port", func(c *Config) { c.MQTT.Port = 70000 }, true},
		{"zero port", func(c *Config) { c.MQTT.Port = 0 }, true},
		{"empty discovery prefix", func(c *Config) { c.MQTT.DiscoveryPrefix = "" }, true},
		{"empty topic prefix", func(c *Config) { c.MQTT.TopicPrefix = "" }, true},
		{"zero connect retries", func(c *Config) { c.MQTT.ConnectRetries = 0 }, true},
		{"empty command", func(c *Config) { c.Zpool.Command = "" }, true},
		{"zero interval", func(c *Config) { c.Zpool.IntervalSec = 0 }, true},
		{"negative interval", func(c *Config) { c.Zpool.IntervalSec = -5 }, true},
		{"zero timeout", func(c *Config) { c.Zpool.TimeoutSec = 0 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "shouty" }, true},
		{"good log level", func(c *Config) { c.LogLevel = "debug" }, false},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"json log format", func(c *Config) { c.LogFormat = "json" }, false},
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

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"info", false},
		{"DEBUG", false},
		{"  warn  ", false},
		{"warning", false},
		{"error", false},
		{"trace", false},
		{"verbose", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}
