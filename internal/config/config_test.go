package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VIZPREVIEW_SETTINGS", "")
	t.Setenv("VIZPREVIEW_ADDR", "")
	t.Setenv("PORT", "")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, ":3007", cfg.Addr)
	require.Equal(t, DefaultPreview(), cfg.Preview)
	require.Equal(t, 1500*time.Millisecond, cfg.Preview.LockTimeout())
}

func TestLoadYAMLDocumentKeepsAbsentKeys(t *testing.T) {
	path := writeSettings(t, "settings.yaml", `
addr: 127.0.0.1:9000
preview:
  debouncingInterval: 250
  view:
    transitionDelay: 20
`)

	cfg, err := Load(Overrides{SettingsPath: &path})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Addr)
	require.Equal(t, int64(250), cfg.Preview.DebouncingInterval)
	require.Equal(t, int64(20), cfg.Preview.View.TransitionDelay)
	// untouched defaults survive
	require.True(t, cfg.Preview.RenderLock)
	require.Equal(t, int64(500), cfg.Preview.View.TransitionDuration)
}

func TestLoadJSONDocument(t *testing.T) {
	path := writeSettings(t, "settings.json", `{"preview":{"renderLock":false,"renderInterval":300}}`)

	cfg, err := Load(Overrides{SettingsPath: &path})
	require.NoError(t, err)
	require.False(t, cfg.Preview.RenderLock)
	require.Equal(t, int64(300), cfg.Preview.RenderInterval)
	require.Zero(t, cfg.Preview.LockTimeout())
}

func TestEnvAndOverridesPrecedence(t *testing.T) {
	path := writeSettings(t, "settings.yaml", "logLevel: warn\npreview:\n  guardInterval: 40\n")
	t.Setenv("VIZPREVIEW_GUARD_INTERVAL", "75")
	t.Setenv("VIZPREVIEW_LOG_LEVEL", "error")
	t.Setenv("VIZPREVIEW_ALLOWED_ORIGINS", "http://a, http://b")

	debug := true
	level := "trace"
	cfg, err := Load(Overrides{SettingsPath: &path, LogLevel: &level, Debug: &debug})
	require.NoError(t, err)
	require.Equal(t, int64(75), cfg.Preview.GuardInterval)
	require.Equal(t, "trace", cfg.LogLevel)
	require.True(t, cfg.Debug)
	require.Equal(t, []string{"http://a", "http://b"}, cfg.AllowedOrigins)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("VIZPREVIEW_RENDER_LOCK", "maybe")
	_, err := Load(Overrides{})
	require.ErrorIs(t, err, ErrInvalid)

	t.Setenv("VIZPREVIEW_RENDER_LOCK", "")
	t.Setenv("VIZPREVIEW_RENDER_INTERVAL", "-5")
	_, err = Load(Overrides{})
	require.ErrorIs(t, err, ErrInvalid)

	missing := filepath.Join(t.TempDir(), "nope.yaml")
	t.Setenv("VIZPREVIEW_RENDER_INTERVAL", "")
	_, err = Load(Overrides{SettingsPath: &missing})
	require.Error(t, err)
}

func TestLockTimeoutDisabledByNegativeAdditional(t *testing.T) {
	t.Parallel()

	p := DefaultPreview()
	p.RenderLockAdditionalTimeout = -1
	require.Zero(t, p.LockTimeout())
	require.NoError(t, p.Validate())
}

func TestLookup(t *testing.T) {
	t.Parallel()

	p := DefaultPreview()
	v, ok := p.Lookup("view.transitionDuration")
	require.True(t, ok)
	require.Equal(t, int64(500), v)

	v, ok = p.Lookup(SettingsSection + ".renderLock")
	require.True(t, ok)
	require.Equal(t, true, v)

	_, ok = p.Lookup("view.colour")
	require.False(t, ok)
}
