package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, int64(100), cfg.RateLimit.HourlyLimit)
	assert.Equal(t, 6*time.Hour, cfg.Evolution.Cooldown)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evocrew.yaml")
	yamlBody := "host: 0.0.0.0\nport: 9090\ntransport: http\nrate_limit:\n  hourly_limit: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, int64(5), cfg.RateLimit.HourlyLimit)
}

func TestLoad_EnvOverlayWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evocrew.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9090\n"), 0o644))

	t.Setenv(envPort, "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
}

func TestLoad_InvalidTransportFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evocrew.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport: carrier-pigeon\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSnapshot_RedactsAdminBootstrapKey(t *testing.T) {
	cfg := &Config{AdminBootstrapKey: "super-secret-key"}
	cfg.SetDefaults()

	snap := cfg.Snapshot()
	assert.NotContains(t, snap["admin_bootstrap_key"], "super-secret-key")
}

func TestProvider_ReloadSwapsConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evocrew.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9090\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	p := NewProvider(path, cfg)
	assert.Equal(t, 9090, p.Current().Port)

	require.NoError(t, os.WriteFile(path, []byte("port: 9191\n"), 0o644))
	require.NoError(t, p.Reload())
	assert.Equal(t, 9191, p.Current().Port)
}
