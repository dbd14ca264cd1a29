package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "eligo.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, 3, config.Scheduler.MaxConcurrent)
	assert.Equal(t, 20, config.Analyzer.MaxLoadAttempts)
	assert.True(t, config.Browser.Headless)
	assert.NoError(t, config.Validate())
}

func TestLoadFromFiles(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 8080

[scheduler]
max_concurrent = 5

[analyzer]
settle_delay = "2s"
`)

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 5, config.Scheduler.MaxConcurrent)
	assert.Equal(t, "2s", config.Analyzer.SettleDelay)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost", config.Server.Host)
}

func TestLoadFromFilesLaterOverridesEarlier(t *testing.T) {
	base := writeConfig(t, "[server]\nport = 8080\n")
	override := writeConfig(t, "[server]\nport = 9090\n")

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)
	assert.Equal(t, 9090, config.Server.Port)
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/eligo.toml")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ELIGO_PORT", "4444")
	t.Setenv("ELIGO_ACCESS_CODE", "letmein")
	t.Setenv("ELIGO_HEADLESS", "false")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 4444, config.Server.Port)
	assert.Equal(t, "letmein", config.Access.Code)
	assert.False(t, config.Browser.Headless)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := DefaultConfig()

	ApplyFlagOverrides(config, 5555, "0.0.0.0")
	assert.Equal(t, 5555, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	// Zero values leave config untouched.
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 5555, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestValidateRejectsBadDuration(t *testing.T) {
	config := DefaultConfig()
	config.Analyzer.SettleDelay = "not-a-duration"

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settle_delay")
}

func TestValidateRejectsBadPort(t *testing.T) {
	config := DefaultConfig()
	config.Server.Port = -1
	assert.Error(t, config.Validate())
}

func TestValidateRejectsZeroConcurrency(t *testing.T) {
	config := DefaultConfig()
	config.Scheduler.MaxConcurrent = 0
	assert.Error(t, config.Validate())
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 2*time.Second, ParseDurationOr("2s", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("garbage", time.Minute))
}
