package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDefaultsForMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.True(t, cfg.IsPaperTrading())
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, "America/New_York", cfg.Schedule.Timezone)
	assert.Equal(t, 30*time.Minute, cfg.Interval())
	assert.Equal(t, 100, cfg.Session.MaxTurns)
}

func TestLoad_ParsesAndNormalizes(t *testing.T) {
	path := writeConfig(t, `
environment:
  mode: live
model:
  name: gpt-4.1
schedule:
  interval_minutes: 15
session:
  require_reasoning: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.IsPaperTrading())
	assert.Equal(t, "gpt-4.1", cfg.Model.Name)
	assert.Equal(t, 15*time.Minute, cfg.Interval())
	assert.True(t, cfg.Session.RequireReasoning)
	assert.NotEmpty(t, cfg.Session.Objective, "defaults fill unset fields")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad mode", "environment:\n  mode: demo\n", "environment.mode"},
		{"interval too short", "schedule:\n  interval_minutes: 2\n", "interval_minutes"},
		{"bad timezone", "schedule:\n  timezone: Mars/Olympus\n", "timezone"},
		{"unknown field", "environment:\n  mood: paper\n", "parsing config"},
		{"bad dashboard port", "dashboard:\n  enabled: true\n  port: 99999\n", "dashboard.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_DASH_TOKEN", "hunter2")
	path := writeConfig(t, "dashboard:\n  enabled: true\n  port: 9847\n  auth_token: ${TEST_DASH_TOKEN}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Dashboard.AuthToken)
}

func TestLoadEnv_ReportsEveryMissingCredential(t *testing.T) {
	t.Setenv(EnvAlpacaKey, "")
	t.Setenv(EnvAlpacaSecret, "sekret")
	t.Setenv(EnvOpenAIKey, "")

	err := LoadEnv(filepath.Join(t.TempDir(), ".env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvAlpacaKey)
	assert.Contains(t, err.Error(), EnvOpenAIKey)
	assert.NotContains(t, err.Error(), EnvAlpacaSecret)
}

func TestLoadEnv_ReadsDotenvFile(t *testing.T) {
	// godotenv does not override variables that are already set, even to
	// empty. Setenv registers the restore, Unsetenv clears for real.
	for _, key := range []string{EnvAlpacaKey, EnvAlpacaSecret, EnvOpenAIKey} {
		t.Setenv(key, "placeholder")
		require.NoError(t, os.Unsetenv(key))
	}

	path := filepath.Join(t.TempDir(), ".env")
	content := EnvAlpacaKey + "=k\n" + EnvAlpacaSecret + "=s\n" + EnvOpenAIKey + "=o\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "k", os.Getenv(EnvAlpacaKey))
}

func TestProfilePaths(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Environment.DataDir = t.TempDir()

	profile, err := cfg.NewProfile("alpha")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.Environment.DataDir, "alpha", "thread-alpha.json"), profile.ThreadPath())
	assert.Equal(t, filepath.Join(cfg.Environment.DataDir, "alpha", "report-alpha.csv"), profile.ReportPath())
	assert.Equal(t, filepath.Join(cfg.Environment.DataDir, "alpha", "bot-alpha.log"), profile.LogPath())

	info, err := os.Stat(profile.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
