// Package config handles zpool-mqtt configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/zpool-mqtt/config.yaml, /etc/zpool-mqtt/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "zpool-mqtt", "config.yaml"))
	}

	paths = append(paths, "/etc/zpool-mqtt/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all zpool-mqtt configuration.
type Config struct {
	MQTT      MQTTConfig  `yaml:"mqtt"`
	Zpool     ZpoolConfig `yaml:"zpool"`
	DataDir   string      `yaml:"data_dir"`
	LogLevel  string      `yaml:"log_level"`
	LogFormat string      `yaml:"log_format"`
}

// MQTTConfig defines the broker connection and topic layout.
type MQTTConfig struct {
	// Host is the broker hostname or IP. Required.
	Host string `yaml:"host"`
	// Port is the broker port (default 1883).
	Port int `yaml:"port"`
	// TLS connects with mqtts instead of plain mqtt.
	TLS      bool   `yaml:"tls"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// DiscoveryPrefix is the Home Assistant discovery topic root
	// (default "homeassistant").
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	// TopicPrefix is the root of all state and availability topics
	// (default "zpool").
	TopicPrefix string `yaml:"topic_prefix"`
	// ConnectRetries is how many times to probe the broker at startup
	// before giving up and exiting (default 10).
	ConnectRetries int `yaml:"connect_retries"`
}

// BrokerURL returns the broker address in the URL form the MQTT client
// expects, e.g. "mqtt://broker.local:1883".
func (m MQTTConfig) BrokerURL() string {
	scheme := "mqtt"
	if m.TLS {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, m.Host, m.Port)
}

// ZpoolConfig defines the pool status data source.
type ZpoolConfig struct {
	// Command is the path to the zpool binary (default /usr/sbin/zpool).
	Command string `yaml:"command"`
	// IntervalSec is the polling interval in seconds (default 600).
	IntervalSec int `yaml:"interval_sec"`
	// TimeoutSec is the hard deadline for one zpool invocation
	// (default 10). A run that exceeds it is killed and the cycle skipped.
	TimeoutSec int `yaml:"timeout_sec"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so secrets can live outside the file,
	// e.g. password: ${MQTT_PASSWORD}.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with all documented defaults applied.
// The MQTT host has no default and must come from the config file.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Port:            1883,
			DiscoveryPrefix: "homeassistant",
			TopicPrefix:     "zpool",
			ConnectRetries:  10,
		},
		Zpool: ZpoolConfig{
			Command:     "/usr/sbin/zpool",
			IntervalSec: 600,
			TimeoutSec:  10,
		},
		DataDir: ".",
	}
}

// Validate checks required fields and value ranges. This is the only place
// a configuration problem becomes a fatal error; everything after startup
// degrades and retries instead.
func (c *Config) Validate() error {
	if c.MQTT.Host == "" {
		return fmt.Errorf("mqtt.host is required")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port)
	}
	if c.MQTT.DiscoveryPrefix == "" {
		return fmt.Errorf("mqtt.discovery_prefix must not be empty")
	}
	if c.MQTT.TopicPrefix == "" {
		return fmt.Errorf("mqtt.topic_prefix must not be empty")
	}
	if c.MQTT.ConnectRetries <= 0 {
		return fmt.Errorf("mqtt.connect_retries must be positive, got %d", c.MQTT.ConnectRetries)
	}
	if c.Zpool.Command == "" {
		return fmt.Errorf("zpool.command must not be empty")
	}
	if c.Zpool.IntervalSec <= 0 {
		return fmt.Errorf("zpool.interval_sec must be positive, got %d", c.Zpool.IntervalSec)
	}
	if c.Zpool.TimeoutSec <= 0 {
		return fmt.Errorf("zpool.timeout_sec must be positive, got %d", c.Zpool.TimeoutSec)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}
