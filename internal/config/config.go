// Package config loads service configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything tunable about the service. The recovery knobs
// (settle delay, staleness threshold) are deliberately exposed: default
// values suit the reference sidecar, slower hosts need room.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	DataDir    string `mapstructure:"data_dir"`
	BridgeURL  string `mapstructure:"bridge_url"`
	LogLevel   string `mapstructure:"log_level"`

	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	WatchdogInterval   time.Duration `mapstructure:"watchdog_interval"`
	StaleThreshold     time.Duration `mapstructure:"stale_threshold"`
	WebhookMaxInFlight int           `mapstructure:"webhook_max_in_flight"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		ListenAddr:         ":3000",
		DataDir:            defaultDataDir(),
		BridgeURL:          "ws://127.0.0.1:8790",
		LogLevel:           "info",
		SettleDelay:        5 * time.Second,
		WatchdogInterval:   time.Minute,
		StaleThreshold:     15 * time.Minute,
		WebhookMaxInFlight: 8,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wabridge"
	}
	return filepath.Join(home, ".wabridge")
}

// Load reads configuration from files and WABRIDGE_* environment variables.
// A missing config file is fine; defaults and environment carry the day.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("wabridge")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/wabridge/")
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "wabridge"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("WABRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.BindEnv("listen_addr", "WABRIDGE_LISTEN_ADDR", "WABRIDGE_PORT")
	v.BindEnv("bridge_url", "WABRIDGE_BRIDGE_URL")
	v.BindEnv("data_dir", "WABRIDGE_DATA_DIR")
	v.BindEnv("log_level", "WABRIDGE_LOG_LEVEL")

	cfg := Default()
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("bridge_url", cfg.BridgeURL)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("settle_delay", cfg.SettleDelay)
	v.SetDefault("watchdog_interval", cfg.WatchdogInterval)
	v.SetDefault("stale_threshold", cfg.StaleThreshold)
	v.SetDefault("webhook_max_in_flight", cfg.WebhookMaxInFlight)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// A bare port number is accepted for compatibility with PORT-style
	// deployments.
	if cfg.ListenAddr != "" && !strings.Contains(cfg.ListenAddr, ":") {
		cfg.ListenAddr = ":" + cfg.ListenAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would put the lifecycle controller
// into a degenerate loop.
func (c *Config) Validate() error {
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative, got %v", c.SettleDelay)
	}
	if c.WatchdogInterval <= 0 {
		return fmt.Errorf("watchdog_interval must be positive, got %v", c.WatchdogInterval)
	}
	if c.StaleThreshold <= 0 {
		return fmt.Errorf("stale_threshold must be positive, got %v", c.StaleThreshold)
	}
	if c.WebhookMaxInFlight <= 0 {
		return fmt.Errorf("webhook_max_in_flight must be positive, got %d", c.WebhookMaxInFlight)
	}
	if c.BridgeURL == "" {
		return fmt.Errorf("bridge_url is required")
	}
	return nil
}
