package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, 30*time.Second, cfg.TurnTimeout)
	assert.Equal(t, 15, cfg.CoachingTurn)
	assert.Equal(t, 10, cfg.DailyLimit)
	assert.Equal(t, 3, cfg.ConcurrentLimit)
	assert.Equal(t, 300*time.Second, cfg.PartnerCacheTTL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MODEL_PROVIDER", "Mock")
	t.Setenv("TURN_TIMEOUT", "5s")
	t.Setenv("DAILY_SESSION_LIMIT", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "mock", cfg.Provider)
	assert.Equal(t, 5*time.Second, cfg.TurnTimeout)
	assert.Equal(t, 2, cfg.DailyLimit)
}

func TestLoad_YAMLOverlayThenEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "improv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7070\"\nprovider: openai\ncoaching_turn: 12\n"), 0o600))
	t.Setenv("IMPROV_CONFIG_FILE", path)
	t.Setenv("PORT", "6060")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "6060", cfg.Port, "env overrides file")
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 12, cfg.CoachingTurn)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "llama-at-home")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("MAX_INPUT_LEN", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.MaxInputLen)
}
