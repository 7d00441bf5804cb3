package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	// Run from a directory without a config file; defaults must apply.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "postgres", cfg.Engine.Backend)
	require.Equal(t, 5*time.Minute, cfg.Streaming.CompletionTimeout)
	require.Equal(t, "config/onboarding.yaml", cfg.Workflow.DefinitionFile)
}

func TestLoadConfigFromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/config.yaml", []byte(`
server:
  addr: ":9999"
engine:
  backend: sqlite
streaming:
  completion_timeout: 30s
`), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Server.Addr)
	require.Equal(t, "sqlite", cfg.Engine.Backend)
	require.Equal(t, 30*time.Second, cfg.Streaming.CompletionTimeout)
	require.Equal(t, "info", cfg.Log.Level, "unset keys fall back to defaults")
}
