package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GATEWAY_SECRET", "STORE_DSN", "GATEWAY_HOST", "GATEWAY_PORT",
		"LOG_LEVEL", "SCHEDULER_WORKERS", "ANTHROPIC_API_KEY", "CONFIG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GATEWAY_SECRET", "s3cr3t")
	t.Setenv("STORE_DSN", "postgres://localhost/sentineld")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.GatewayHost)
	assert.Equal(t, 8080, cfg.GatewayPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.SchedulerWorkers)
	assert.Equal(t, int64(30000), cfg.HealthCheckIntervalMs)
}

func TestLoadFailsWithoutRequiredFields(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GATEWAY_SECRET", "s3cr3t")
	t.Setenv("STORE_DSN", "postgres://localhost/sentineld")
	t.Setenv("GATEWAY_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SCHEDULER_WORKERS", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.GatewayPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.SchedulerWorkers)
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "GATEWAY_SECRET=from-file\nSTORE_DSN=postgres://localhost/sentineld\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.GatewaySecret)
}

func TestCollaboratorReturnsConfiguredFamiliesOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("GATEWAY_SECRET", "s3cr3t")
	t.Setenv("STORE_DSN", "postgres://localhost/sentineld")
	t.Setenv("MESSAGING_ENDPOINT", "https://messaging.example.com")
	t.Setenv("MESSAGING_TOKEN", "tok")

	cfg, err := Load("")
	require.NoError(t, err)

	cred, ok := cfg.Collaborator("messaging")
	require.True(t, ok)
	assert.Equal(t, "https://messaging.example.com", cred.Endpoint)

	_, ok = cfg.Collaborator("payments")
	assert.False(t, ok)

	_, ok = cfg.Collaborator("unknown-family")
	assert.False(t, ok)
}
