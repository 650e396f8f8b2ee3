package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NotNil(t, cfg)
	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "ws://127.0.0.1:8790", cfg.BridgeURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.SettleDelay)
	assert.Equal(t, time.Minute, cfg.WatchdogInterval)
	assert.Equal(t, 15*time.Minute, cfg.StaleThreshold)
	assert.Equal(t, 8, cfg.WebhookMaxInFlight)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoad(t *testing.T) {
	t.Run("returns defaults when no config file exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		origDir, _ := os.Getwd()
		require.NoError(t, os.Chdir(tmpDir))
		defer os.Chdir(origDir)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":3000", cfg.ListenAddr)
		assert.Equal(t, 5*time.Second, cfg.SettleDelay)
	})

	t.Run("loads config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configContent := `
listen_addr: ":8080"
bridge_url: "ws://10.0.0.5:9000"
settle_delay: 10s
stale_threshold: 30m
`
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "wabridge.yaml"), []byte(configContent), 0o600))
		origDir, _ := os.Getwd()
		require.NoError(t, os.Chdir(tmpDir))
		defer os.Chdir(origDir)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.ListenAddr)
		assert.Equal(t, "ws://10.0.0.5:9000", cfg.BridgeURL)
		assert.Equal(t, 10*time.Second, cfg.SettleDelay)
		assert.Equal(t, 30*time.Minute, cfg.StaleThreshold)
		// Untouched keys keep their defaults.
		assert.Equal(t, time.Minute, cfg.WatchdogInterval)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		tmpDir := t.TempDir()
		origDir, _ := os.Getwd()
		require.NoError(t, os.Chdir(tmpDir))
		defer os.Chdir(origDir)

		t.Setenv("WABRIDGE_LISTEN_ADDR", ":9999")
		t.Setenv("WABRIDGE_LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":9999", cfg.ListenAddr)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("bare port number gets a colon", func(t *testing.T) {
		tmpDir := t.TempDir()
		origDir, _ := os.Getwd()
		require.NoError(t, os.Chdir(tmpDir))
		defer os.Chdir(origDir)

		t.Setenv("WABRIDGE_PORT", "8081")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":8081", cfg.ListenAddr)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"negative settle delay", func(c *Config) { c.SettleDelay = -time.Second }, "settle_delay"},
		{"zero watchdog interval", func(c *Config) { c.WatchdogInterval = 0 }, "watchdog_interval"},
		{"zero stale threshold", func(c *Config) { c.StaleThreshold = 0 }, "stale_threshold"},
		{"zero webhook concurrency", func(c *Config) { c.WebhookMaxInFlight = 0 }, "webhook_max_in_flight"},
		{"missing bridge url", func(c *Config) { c.BridgeURL = "" }, "bridge_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
