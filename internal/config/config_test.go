package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Conn.WSURL)
	assert.Equal(t, time.Second, cfg.Conn.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Conn.BackoffCap)
	assert.Equal(t, 5, cfg.Conn.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Tabs.HeartbeatInterval)
	assert.Equal(t, 15*time.Second, cfg.Tabs.StaleAfter)
	assert.Equal(t, 60*time.Second, cfg.Tabs.RemoveAfter)
	assert.Equal(t, "boardsync.tabs.registry", cfg.Tabs.NATSSubject)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boardsync.yaml")
	data := `
log_level: debug
conn:
  ws_url: wss://play.example.com/ws
  max_attempts: 8
  backoff_cap: 45s
tabs:
  heartbeat_interval: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "wss://play.example.com/ws", cfg.Conn.WSURL)
	assert.Equal(t, 8, cfg.Conn.MaxAttempts)
	assert.Equal(t, 45*time.Second, cfg.Conn.BackoffCap)
	assert.Equal(t, 2*time.Second, cfg.Tabs.HeartbeatInterval)

	// Untouched keys keep their defaults.
	assert.Equal(t, time.Second, cfg.Conn.BackoffBase)
	assert.Equal(t, 15*time.Second, cfg.Tabs.StaleAfter)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("conn: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boardsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("conn:\n  ws_url: wss://file.example.com/ws\n"), 0o644))

	t.Setenv("BOARDSYNC_WS_URL", "wss://env.example.com/ws")
	t.Setenv("BOARDSYNC_MAX_ATTEMPTS", "3")
	t.Setenv("BOARDSYNC_NATS_URL", "nats://broker:4222")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://env.example.com/ws", cfg.Conn.WSURL)
	assert.Equal(t, 3, cfg.Conn.MaxAttempts)
	assert.Equal(t, "nats://broker:4222", cfg.Tabs.NATSURL)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Conn.MaxAttempts = 7
	cfg.Tabs.StaleAfter = 20 * time.Second
	cfg.Tabs.NATSSubject = "custom.subject"

	mc := cfg.ConnManagerConfig()
	assert.Equal(t, 7, mc.MaxAttempts)
	assert.Equal(t, cfg.Conn.WSURL, mc.WSURL)

	cc := cfg.CoordinatorConfig()
	assert.Equal(t, 20*time.Second, cc.StaleAfter)

	nc := cfg.NATSStoreConfig()
	assert.Equal(t, "custom.subject", nc.Subject)
}
