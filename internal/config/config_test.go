package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "./state", cfg.StateDir)
	assert.True(t, cfg.StateLive)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 220, cfg.SnapshotEventLimit)
	assert.Equal(t, 1200, cfg.StreamMaxQueue)
	assert.Equal(t, 4000, cfg.StreamMaxSeen)
	assert.Equal(t, 180, cfg.StreamMaxEmitPerSnapshot)
	assert.Equal(t, 30*time.Second, cfg.WSPingInterval)
	assert.Equal(t, int64(65536), cfg.WSMaxMessageSize)
	assert.Equal(t, 2048, cfg.WSSendBuffer)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("STATE_DIR", "/var/lib/agents")
	t.Setenv("STATE_LIVE", "false")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("STREAM_MAX_QUEUE", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, "/var/lib/agents", cfg.StateDir)
	assert.False(t, cfg.StateLive)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 50, cfg.StreamMaxQueue)
}

func TestLoadErrors(t *testing.T) {
	t.Run("bad int", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "not-an-int")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse env:")
	})

	t.Run("zero poll interval", func(t *testing.T) {
		t.Setenv("POLL_INTERVAL", "0s")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("read timeout below ping", func(t *testing.T) {
		t.Setenv("WS_READ_TIMEOUT", "5s")
		_, err := Load()
		require.Error(t, err)
	})
}
