package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetConfigValue(t *testing.T) {
	tests := []struct {
		key, value string
		check      func(*Config) string
	}{
		{"default.base_url", "https://api.gigboard.dev", func(c *Config) string { return c.Default.BaseURL }},
		{"default.socket_url", "wss://rt.gigboard.dev", func(c *Config) string { return c.Default.SocketURL }},
		{"auth.token", "tok", func(c *Config) string { return c.Auth.Token }},
		{"auth.user_id", "u1", func(c *Config) string { return c.Auth.UserID }},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			var cfg Config
			require.NoError(t, setConfigValue(&cfg, tt.key, tt.value))
			assert.Equal(t, tt.value, tt.check(&cfg))
		})
	}

	t.Run("invalid keys", func(t *testing.T) {
		var cfg Config
		assert.Error(t, setConfigValue(&cfg, "token", "x"))
		assert.Error(t, setConfigValue(&cfg, "auth.password", "x"))
		assert.Error(t, setConfigValue(&cfg, "billing.plan", "x"))
	})

	t.Run("endpoint schemes are checked", func(t *testing.T) {
		var cfg Config
		assert.Error(t, setConfigValue(&cfg, "default.base_url", "ftp://api.gigboard.dev"))
		assert.Error(t, setConfigValue(&cfg, "default.base_url", "api.gigboard.dev"))
		assert.Error(t, setConfigValue(&cfg, "default.socket_url", "tcp://rt.gigboard.dev"))
		assert.Empty(t, cfg.Default.BaseURL)
		require.NoError(t, setConfigValue(&cfg, "default.socket_url", ""))
	})
}

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GIGBOARD_HOME", dir)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, Config{}, *cfg)

	cfg.Default.BaseURL = "https://api.gigboard.dev"
	cfg.Auth.UserID = "u1"
	require.NoError(t, saveConfig(cfg))

	info, err := os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GIGBOARD_TOKEN", "from-env")
	t.Setenv("GIGBOARD_BASE_URL", "")

	cfg := &Config{
		Default: ConfigDefault{BaseURL: "https://file"},
		Auth:    ConfigAuth{Token: "from-file", UserID: "u1"},
	}
	applyEnv(cfg)

	assert.Equal(t, "from-env", cfg.Auth.Token)
	assert.Equal(t, "https://file", cfg.Default.BaseURL)
	assert.Equal(t, "u1", cfg.Auth.UserID)
}

func TestRedactConfig(t *testing.T) {
	cfg := &Config{Auth: ConfigAuth{Token: "eyJhbGciOiJIUzI1NiJ9.payload", UserID: "u1"}}

	out := redactConfig(cfg)
	assert.Equal(t, "eyJh...load", out.Auth.Token)
	assert.Equal(t, "u1", out.Auth.UserID)
	assert.Equal(t, "eyJhbGciOiJIUzI1NiJ9.payload", cfg.Auth.Token)

	assert.Empty(t, redactConfig(&Config{}).Auth.Token)
}
