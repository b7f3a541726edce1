package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesSpecLiterals(t *testing.T) {
	c := Default()

	assert.Equal(t, "127.0.0.1", c.Server.Host)
	assert.Equal(t, 39453, c.Server.Port)
	assert.Equal(t, 1<<20, c.Server.ChunkSize)
	assert.True(t, c.Server.AllowPortHunt)
	assert.Equal(t, 200*time.Millisecond, c.HLS.PollInterval)
	assert.Equal(t, 8*time.Second, c.HLS.ReadyTimeout)
	assert.Equal(t, 4, c.HLS.SegmentTime)
	assert.Equal(t, 3*time.Second, c.Session.ReplayCountdown)
	assert.Equal(t, 1*time.Second, c.Session.PersistThreshold)
}

func TestLoad_MissingPathFallsBackToDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, c.Server.Port)
}

func TestLoad_NonExistentPathFallsBackToDefaultsWithoutError(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Host, c.Server.Host)
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vplayer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  host: 0.0.0.0\n  port: 5000\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", c.Server.Host)
	assert.Equal(t, 5000, c.Server.Port)
}

func TestLoad_EnvOverridesWinOverYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vplayer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 5000\n"), 0o644))
	t.Setenv("VPLAYER_HTTP_PORT", "6000")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6000, c.Server.Port)
}

func TestLoad_MalformedDurationEnvIsIgnored(t *testing.T) {
	t.Setenv("VPLAYER_HLS_READY_TIMEOUT", "not-a-duration")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().HLS.ReadyTimeout, c.HLS.ReadyTimeout)
}

func TestLoad_RepeatedCallsReplaceTheProcessWideSingleton(t *testing.T) {
	_, err := Load("")
	require.NoError(t, err)

	t.Setenv("VPLAYER_HTTP_PORT", "7000")
	c2, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7000, c2.Server.Port)
	assert.Equal(t, 7000, Get().Server.Port, "Get must reflect the most recent Load, not a stale first call")
}

func TestGet_LoadsDefaultsIfLoadNeverCalled(t *testing.T) {
	cfg = nil
	assert.Equal(t, Default().Server.Port, Get().Server.Port)
}
