package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
batch:
  mode: positional
  item_wait: 250ms
lock:
  backend: memory
  ttl: 10s
  renew_interval: 2s
agent:
  adapter: echo
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("PROMPTCHAIN_BATCH_FAILURE_POLICY", "continue")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "positional", cfg.Batch.Mode)
	require.Equal(t, 250*time.Millisecond, cfg.Batch.ItemWait)
	require.Equal(t, "continue", cfg.Batch.FailurePolicy)
	require.Equal(t, "echo", cfg.Agent.Adapter)
	require.Equal(t, 3, cfg.HTTP.MaxAttempts)
	require.Equal(t, path, cfg.ConfigFile)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsRenewNotShorterThanTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lock.RenewInterval = cfg.Lock.TTL
	require.ErrorContains(t, cfg.Validate(), "lock.renew_interval")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Batch.Mode = "shuffle"
	require.ErrorContains(t, cfg.Validate(), "batch.mode")
}
