package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Engine.RetrieveK)
	assert.Equal(t, 3, cfg.Engine.TopN)
	assert.Equal(t, 50, cfg.Session.WindowSize)
	assert.Equal(t, "flexible", cfg.Fridge.DefaultMode)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"session": {"window_size": 10}, "fridge": {"default_mode": "strict"}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Session.WindowSize)
	assert.Equal(t, "strict", cfg.Fridge.DefaultMode)
	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Engine.RetrieveK)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"session": {"window_size": 10}}`), 0600))
	t.Setenv("CHEFMATE_SESSION_WINDOW_SIZE", "7")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Session.WindowSize)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Gateway.Port = 9999

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Gateway.Port)
}

func TestExpandHome(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotContains(t, cfg.StorePath(), "~")
	assert.NotContains(t, cfg.FridgeSnapshotPath(), "~")
	assert.NotContains(t, cfg.RecipesPath(), "~")
}
