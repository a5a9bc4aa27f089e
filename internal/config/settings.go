package config

import (
	"os"
	"sync/atomic"

	"github.com/pelletier/go-toml/v2"
)

// VisionAbility controls how image parts in client requests are handled.
type VisionAbility string

const (
	// VisionNone rejects any request carrying an image.
	VisionNone VisionAbility = "none"
	// VisionBase64Only accepts data: URIs only.
	VisionBase64Only VisionAbility = "base64_only"
	// VisionAll additionally fetches http(s) image URLs.
	VisionAll VisionAbility = "all"
)

// Platform is the client platform presented to the upstream.
type Platform string

const (
	PlatformWindows Platform = "Windows"
	PlatformMacOS   Platform = "MacOS"
	PlatformLinux   Platform = "Linux"
)

// ExthostPlatform maps the emulated platform to the upstream's
// environment_info token.
func (p Platform) ExthostPlatform() string {
	switch p {
	case PlatformMacOS:
		return "darwin"
	case PlatformWindows:
		return "win32"
	case PlatformLinux:
		return "linux"
	default:
		return string(p)
	}
}

// Settings is the operator-editable TOML file. It is swapped atomically
// so in-flight requests always observe a consistent snapshot.
type Settings struct {
	VisionAbility         VisionAbility `toml:"vision_ability"`
	SlowPoolEnabled       bool          `toml:"slow_pool_enabled"`
	LongContextEnabled    bool          `toml:"long_context_enabled"`
	ModelUsageChecks      []string      `toml:"model_usage_checks"`
	ShareToken            string        `toml:"share_token"`
	WebReferencesIncluded bool          `toml:"web_references_included"`
	EmulatedPlatform      Platform      `toml:"emulated_platform"`
	CursorClientVersion   string        `toml:"cursor_client_version"`
}

func defaultSettings() *Settings {
	return &Settings{
		VisionAbility:       VisionBase64Only,
		EmulatedPlatform:    PlatformMacOS,
		CursorClientVersion: "1.3.9",
	}
}

var settings atomic.Pointer[Settings]

func init() {
	settings.Store(defaultSettings())
}

// CurrentSettings returns the active settings snapshot.
func CurrentSettings() *Settings {
	return settings.Load()
}

// LoadSettings reads and activates the settings file at path.
func LoadSettings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s := defaultSettings()
	if err := toml.Unmarshal(data, s); err != nil {
		return err
	}
	settings.Store(s)
	return nil
}
