package viper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileIfExists(t *testing.T) {
	cfg := New()
	loaded, err := cfg.LoadFileIfExists(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.False(t, loaded)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
relay:
  listen-address: 127.0.0.1:9000
  write-timeout: 5s
logging:
  relay:
    level: debug
`), 0o600))

	loaded, err = cfg.LoadFileIfExists(path)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "127.0.0.1:9000", cfg.GetString("relay.listen-address"))
	assert.Equal(t, 5*time.Second, cfg.GetDuration("relay.write-timeout"))

	raw := map[string]map[string]any{}
	require.NoError(t, cfg.UnmarshalKey("logging", &raw))
	assert.Equal(t, "debug", raw["relay"]["level"])
}

func TestEnvOverridesDefault(t *testing.T) {
	cfg := New()
	cfg.SetDefault("discord.health-check-channel-id", 0)
	require.NoError(t, cfg.BindEnv("discord.health-check-channel-id", "HEALTH_CHECK_CHANNEL_ID"))
	assert.Equal(t, uint64(0), cfg.GetUint64("discord.health-check-channel-id"))

	t.Setenv("HEALTH_CHECK_CHANNEL_ID", "1234")
	assert.Equal(t, uint64(1234), cfg.GetUint64("discord.health-check-channel-id"))
}

func TestAutomaticEnv(t *testing.T) {
	cfg := New()
	cfg.AutomaticEnv("SHIM")
	cfg.SetDefault("relay.cloud-server", false)

	t.Setenv("SHIM_RELAY_CLOUD_SERVER", "true")
	assert.True(t, cfg.GetBool("relay.cloud-server"))
}
