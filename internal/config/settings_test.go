package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
vision_ability = "all"
slow_pool_enabled = true
long_context_enabled = true
model_usage_checks = ["gpt-5", "claude-4.5-sonnet"]
share_token = "shared"
web_references_included = true
emulated_platform = "Windows"
cursor_client_version = "1.4.0"
`), 0o600))

	require.NoError(t, LoadSettings(path))
	defer settings.Store(defaultSettings())

	s := CurrentSettings()
	assert.Equal(t, VisionAll, s.VisionAbility)
	assert.True(t, s.SlowPoolEnabled)
	assert.Equal(t, []string{"gpt-5", "claude-4.5-sonnet"}, s.ModelUsageChecks)
	assert.Equal(t, PlatformWindows, s.EmulatedPlatform)
	assert.Equal(t, "1.4.0", s.CursorClientVersion)
}

func TestLoadSettingsMissingFile(t *testing.T) {
	err := LoadSettings(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
	// Defaults stay active.
	assert.Equal(t, VisionBase64Only, CurrentSettings().VisionAbility)
}

func TestExthostPlatformMapping(t *testing.T) {
	assert.Equal(t, "darwin", PlatformMacOS.ExthostPlatform())
	assert.Equal(t, "win32", PlatformWindows.ExthostPlatform())
	assert.Equal(t, "linux", PlatformLinux.ExthostPlatform())
	assert.Equal(t, "freebsd", Platform("freebsd").ExthostPlatform())
}
