package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	require.NoError(t, Bind(v))
	return v
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
		require.NoError(t, os.Unsetenv(env))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, "dummy-key", cfg.GaiaAPIKey)
	assert.Equal(t, DefaultAutoDriveAPIURL, cfg.AutoDriveAPIURL)
	assert.Equal(t, DefaultAutoDriveGatewayURL, cfg.AutoDriveGatewayURL)
	assert.Equal(t, 5*time.Minute, cfg.ModelCacheTTL)
	assert.Equal(t, time.Duration(0), cfg.UpstreamTimeout)
	assert.Empty(t, cfg.GaiaNodeURL)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("GAIA_NODE_URL", "https://node.example.com/")
	t.Setenv("GAIA_API_KEY", "gaia-secret")
	t.Setenv("AUTODRIVE_API_KEY", " drive-secret ")
	t.Setenv("REOWN_PROJECT_ID", "reown-1")
	t.Setenv("MODEL_CACHE_TTL", "0")
	t.Setenv("NODE_CONFIG_TTL", "90s")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "https://node.example.com", cfg.GaiaNodeURL)
	assert.Equal(t, "gaia-secret", cfg.GaiaAPIKey)
	assert.Equal(t, "drive-secret", cfg.AutoDriveAPIKey)
	assert.Equal(t, "reown-1", cfg.ReownProjectID)
	assert.Equal(t, time.Duration(0), cfg.ModelCacheTTL)
	assert.Equal(t, 90*time.Second, cfg.NodeConfigTTL)
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "70000")

	_, err := Load(newViper(t))
	assert.Error(t, err)
}

func TestLoadDotEnv_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	local := filepath.Join(dir, "local.env")
	global := filepath.Join(dir, "global.env")
	require.NoError(t, os.WriteFile(local, []byte("GAIA_NODE_URL=https://local.example\n"), 0600))
	require.NoError(t, os.WriteFile(global, []byte("GAIA_NODE_URL=https://global.example\nREOWN_PROJECT_ID=from-global\n"), 0600))
	t.Setenv("AUTODRIVE_API_KEY", "from-env")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.env"), []byte("AUTODRIVE_API_KEY=from-file\n"), 0600))

	loaded, err := LoadDotEnv(local, filepath.Join(dir, "missing.env"), global, filepath.Join(dir, "extra.env"))
	require.NoError(t, err)
	assert.Equal(t, []string{local, global, filepath.Join(dir, "extra.env")}, loaded)

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, "https://local.example", cfg.GaiaNodeURL, "earlier file wins")
	assert.Equal(t, "from-global", cfg.ReownProjectID)
	assert.Equal(t, "from-env", cfg.AutoDriveAPIKey, "real environment is never overwritten")
}

func TestDotEnvPaths(t *testing.T) {
	paths := DotEnvPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, ".env", paths[0])
}
