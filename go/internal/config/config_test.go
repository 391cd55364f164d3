package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1337, cfg.Server.Port)
	assert.Equal(t, ":1337", cfg.Addr())
	assert.Equal(t, 2100*time.Millisecond, cfg.Transition.CloseDelay)
	assert.Equal(t, time.Second, cfg.Transition.OpenDelay)
	assert.Equal(t, []string{"suikerwater", "espressoMartini", "rockstarMartini"}, cfg.Cocktails)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
obs:
  host: obs.local:4455
  request_timeout: 2s
transition:
  close_delay: 1500ms
cocktails: [mojito]
nats:
  url: nats://localhost:4222
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "obs.local:4455", cfg.OBS.Host)
	assert.Equal(t, 2*time.Second, cfg.OBS.RequestTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Transition.CloseDelay)
	assert.Equal(t, time.Second, cfg.Transition.OpenDelay)
	assert.Equal(t, []string{"mojito"}, cfg.Cocktails)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "obs:\n  host: from-file:4444\n")
	t.Setenv("OBS_HOST", "from-env:4444")
	t.Setenv("OBS_PASSWORD", "secret")
	t.Setenv("RELAY_PORT", "8081")
	t.Setenv("LOG_PRETTY", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env:4444", cfg.OBS.Host)
	assert.Equal(t, "secret", cfg.OBS.Password)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.False(t, cfg.Log.Pretty)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed yaml", content: "server: [port"},
		{name: "bad port", content: "server:\n  port: 70000\n"},
		{name: "sentinel cocktail", content: "cocktails: [\"null\"]\n"},
		{name: "duplicate cocktail", content: "cocktails: [mojito, mojito]\n"},
		{name: "empty cocktail catalog", content: "cocktails: []\n"},
		{name: "negative delay", content: "transition:\n  open_delay: -1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}
