package xexchange

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_AppliesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
enableAsync: true
connection:
  default: {}
  audit:
    host: redis.internal
    port: 6380
    username: svc
    password: secret
    channel: audit_events
    database: 3
`))
	require.NoError(t, err)

	assert.True(t, cfg.ClassicEnabled())
	assert.True(t, cfg.EnableAsync)
	assert.Equal(t, DefaultTransport, cfg.Transport)
	assert.Equal(t, []string{"audit", "default"}, cfg.ConnectionNames())
	assert.Equal(t, ConnectionSettings{Host: DefaultHost, Port: DefaultPort, Channel: DefaultChannel}, cfg.Connections["default"])
	assert.Equal(t, ConnectionSettings{
		Host: "redis.internal", Port: 6380, Username: "svc", Password: "secret", Channel: "audit_events", Database: 3,
	}, cfg.Connections["audit"])
	assert.NoError(t, cfg.Validate())
}

func TestParseConfig_ClassicCanBeDisabled(t *testing.T) {
	cfg, err := ParseConfig([]byte("enableClassic: false\ntransport: memory\n"))
	require.NoError(t, err)
	assert.False(t, cfg.ClassicEnabled())
	assert.Equal(t, "memory", cfg.Transport)
}

func TestConfig_AsyncRequiresDefaultConnection(t *testing.T) {
	cfg := Config{
		EnableAsync: true,
		Connections: map[string]ConnectionSettings{"other": {}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Reason, `"default"`)
}

func TestParseConfig_BadYAML(t *testing.T) {
	_, err := ParseConfig([]byte("connection: [unterminated"))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connection:\n  default:\n    port: 6390\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6390, cfg.Connections["default"].Port)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigFromMap(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]any{
		"enableClassic": false,
		"enableAsync":   "true",
		"connection": map[string]any{
			"default": map[string]any{"host": "redis.internal", "port": "6380"},
		},
	})
	require.NoError(t, err)
	assert.False(t, cfg.ClassicEnabled())
	assert.True(t, cfg.EnableAsync)
	assert.Equal(t, ConnectionSettings{Host: "redis.internal", Port: 6380, Channel: DefaultChannel}, cfg.Connections["default"])

	_, err = ConfigFromMap(map[string]any{"conection": map[string]any{}})
	assert.ErrorIs(t, err, ErrConfiguration)
}
