package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/playforge/boardsync/internal/conn"
	"github.com/playforge/boardsync/internal/tabs"
)

// Config is the root configuration for the client core.
type Config struct {
	LogLevel string     `yaml:"log_level"`
	Conn     ConnConfig `yaml:"conn"`
	Tabs     TabsConfig `yaml:"tabs"`
}

// ConnConfig configures the connection manager.
type ConnConfig struct {
	WSURL           string        `yaml:"ws_url"`
	APIURL          string        `yaml:"api_url"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	BackoffCap      time.Duration `yaml:"backoff_cap"`
	MaxAttempts     int           `yaml:"max_attempts"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
}

// TabsConfig configures the tab registry coordinator and its backing store.
type TabsConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	RemoveAfter       time.Duration `yaml:"remove_after"`
	NATSURL           string        `yaml:"nats_url"`
	NATSSubject       string        `yaml:"nats_subject"`
}

// Default returns the built-in configuration.
func Default() Config {
	connDefaults := conn.DefaultConfig()
	tabDefaults := tabs.DefaultCoordinatorConfig()
	natsDefaults := tabs.DefaultNATSStoreConfig()

	return Config{
		LogLevel: "info",
		Conn: ConnConfig{
			WSURL:           connDefaults.WSURL,
			APIURL:          connDefaults.APIURL,
			BackoffBase:     connDefaults.BackoffBase,
			BackoffCap:      connDefaults.BackoffCap,
			MaxAttempts:     connDefaults.MaxAttempts,
			MonitorInterval: connDefaults.MonitorInterval,
			DialTimeout:     connDefaults.DialTimeout,
			WriteTimeout:    connDefaults.WriteTimeout,
			PingInterval:    connDefaults.PingInterval,
		},
		Tabs: TabsConfig{
			HeartbeatInterval: tabDefaults.HeartbeatInterval,
			StaleAfter:        tabDefaults.StaleAfter,
			RemoveAfter:       tabDefaults.RemoveAfter,
			NATSURL:           natsDefaults.URL,
			NATSSubject:       natsDefaults.Subject,
		},
	}
}

// Load reads an optional YAML file over the defaults and then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = getEnv("BOARDSYNC_LOG_LEVEL", cfg.LogLevel)
	cfg.Conn.WSURL = getEnv("BOARDSYNC_WS_URL", cfg.Conn.WSURL)
	cfg.Conn.APIURL = getEnv("BOARDSYNC_API_URL", cfg.Conn.APIURL)
	cfg.Conn.MaxAttempts = getEnvAsInt("BOARDSYNC_MAX_ATTEMPTS", cfg.Conn.MaxAttempts)
	cfg.Tabs.NATSURL = getEnv("BOARDSYNC_NATS_URL", cfg.Tabs.NATSURL)
	cfg.Tabs.NATSSubject = getEnv("BOARDSYNC_NATS_SUBJECT", cfg.Tabs.NATSSubject)
}

// ConnManagerConfig converts to the connection manager's config type.
func (c Config) ConnManagerConfig() conn.Config {
	return conn.Config{
		WSURL:           c.Conn.WSURL,
		APIURL:          c.Conn.APIURL,
		BackoffBase:     c.Conn.BackoffBase,
		BackoffCap:      c.Conn.BackoffCap,
		MaxAttempts:     c.Conn.MaxAttempts,
		MonitorInterval: c.Conn.MonitorInterval,
		DialTimeout:     c.Conn.DialTimeout,
		WriteTimeout:    c.Conn.WriteTimeout,
		PingInterval:    c.Conn.PingInterval,
	}
}

// CoordinatorConfig converts to the tab coordinator's config type.
func (c Config) CoordinatorConfig() tabs.CoordinatorConfig {
	return tabs.CoordinatorConfig{
		HeartbeatInterval: c.Tabs.HeartbeatInterval,
		StaleAfter:        c.Tabs.StaleAfter,
		RemoveAfter:       c.Tabs.RemoveAfter,
	}
}

// NATSStoreConfig converts to the NATS registry store's config type.
func (c Config) NATSStoreConfig() tabs.NATSStoreConfig {
	nsc := tabs.DefaultNATSStoreConfig()
	nsc.URL = c.Tabs.NATSURL
	nsc.Subject = c.Tabs.NATSSubject
	return nsc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
