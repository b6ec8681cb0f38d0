// Package config loads server and preview tuning settings.
//
// Precedence, lowest to highest: built-in defaults, the settings document
// (YAML or JSON), VIZPREVIEW_* environment variables, explicit overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when a setting has an unusable value.
var ErrInvalid = errors.New("invalid configuration")

// SettingsSection is the settings namespace used in advisory remediation
// links, e.g. "graphviz-interactive-preview.renderLockAdditionalTimeout".
const SettingsSection = "graphviz-interactive-preview"

// Config holds server configuration plus the preview tuning defaults.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr      string
	LogLevel  string
	LogFormat string
	Debug     bool
	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string

	Preview Preview
}

// Preview is the render scheduling tuning. All durations are milliseconds.
type Preview struct {
	RenderLock                  bool  `yaml:"renderLock" json:"renderLock"`
	RenderInterval              int64 `yaml:"renderInterval" json:"renderInterval"`
	DebouncingInterval          int64 `yaml:"debouncingInterval" json:"debouncingInterval"`
	GuardInterval               int64 `yaml:"guardInterval" json:"guardInterval"`
	RenderLockAdditionalTimeout int64 `yaml:"renderLockAdditionalTimeout" json:"renderLockAdditionalTimeout"`
	View                        View  `yaml:"view" json:"view"`
}

// View is the hosted view tuning forwarded on page load.
type View struct {
	TransitionDelay    int64 `yaml:"transitionDelay" json:"transitionDelay"`
	TransitionDuration int64 `yaml:"transitionDuration" json:"transitionDuration"`
}

// DefaultPreview returns the built-in tuning.
func DefaultPreview() Preview {
	return Preview{
		RenderLock:                  true,
		RenderInterval:              0,
		DebouncingInterval:          0,
		GuardInterval:               10,
		RenderLockAdditionalTimeout: 1000,
		View: View{
			TransitionDelay:    0,
			TransitionDuration: 500,
		},
	}
}

// LockTimeout is how long a dispatched render may hold the render lock. It
// is zero (disabled) unless the lock is on and the additional timeout is not
// negative; the view transition is added since the view only reports
// completion after animating.
func (p Preview) LockTimeout() time.Duration {
	if !p.RenderLock || p.RenderLockAdditionalTimeout < 0 {
		return 0
	}
	ms := p.RenderLockAdditionalTimeout + p.View.TransitionDelay + p.View.TransitionDuration
	return time.Duration(ms) * time.Millisecond
}

// Validate rejects negative intervals. RenderLockAdditionalTimeout may be
// negative; that disables the lock timeout.
func (p Preview) Validate() error {
	check := []struct {
		key string
		v   int64
	}{
		{"renderInterval", p.RenderInterval},
		{"debouncingInterval", p.DebouncingInterval},
		{"guardInterval", p.GuardInterval},
		{"view.transitionDelay", p.View.TransitionDelay},
		{"view.transitionDuration", p.View.TransitionDuration},
	}
	for _, c := range check {
		if c.v < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %d", ErrInvalid, c.key, c.v)
		}
	}
	return nil
}

// Lookup returns a setting by key. Keys use the dotted form of the settings
// document, e.g. "view.transitionDelay".
func (p Preview) Lookup(key string) (any, bool) {
	switch strings.TrimPrefix(key, SettingsSection+".") {
	case "renderLock":
		return p.RenderLock, true
	case "renderInterval":
		return p.RenderInterval, true
	case "debouncingInterval":
		return p.DebouncingInterval, true
	case "guardInterval":
		return p.GuardInterval, true
	case "renderLockAdditionalTimeout":
		return p.RenderLockAdditionalTimeout, true
	case "view.transitionDelay":
		return p.View.TransitionDelay, true
	case "view.transitionDuration":
		return p.View.TransitionDuration, true
	default:
		return nil, false
	}
}

// Overrides optionally overrides values from the document and environment.
//
// A nil pointer means "keep the loaded value".
type Overrides struct {
	SettingsPath *string
	Addr         *string
	LogLevel     *string
	LogFormat    *string
	Debug        *bool
}

// fileConfig is the on-disk settings document.
type fileConfig struct {
	Addr           string   `yaml:"addr"`
	LogLevel       string   `yaml:"logLevel"`
	LogFormat      string   `yaml:"logFormat"`
	Debug          *bool    `yaml:"debug"`
	AllowedOrigins []string `yaml:"allowedOrigins"`

	Preview *Preview `yaml:"preview"`
}

// Load builds the configuration from defaults, the settings document, the
// environment and the overrides.
func Load(overrides Overrides) (*Config, error) {
	cfg := &Config{
		Addr:           ":3007",
		LogLevel:       "info",
		LogFormat:      "text",
		AllowedOrigins: []string{"*"},
		Preview:        DefaultPreview(),
	}

	path := os.Getenv("VIZPREVIEW_SETTINGS")
	if overrides.SettingsPath != nil {
		path = *overrides.SettingsPath
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if overrides.Addr != nil {
		cfg.Addr = *overrides.Addr
	}
	if overrides.LogLevel != nil {
		cfg.LogLevel = *overrides.LogLevel
	}
	if overrides.LogFormat != nil {
		cfg.LogFormat = *overrides.LogFormat
	}
	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}
	if cfg.Debug && cfg.LogLevel == "info" {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Preview.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	return c.apply(data)
}

// apply decodes a settings document on top of c. Absent keys keep their
// current value.
func (c *Config) apply(data []byte) error {
	fc := fileConfig{Preview: &c.Preview}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%w: settings document: %v", ErrInvalid, err)
	}
	if fc.Addr != "" {
		c.Addr = fc.Addr
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		c.LogFormat = fc.LogFormat
	}
	if fc.Debug != nil {
		c.Debug = *fc.Debug
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}
	return nil
}

func (c *Config) loadEnv() error {
	if v := os.Getenv("VIZPREVIEW_ADDR"); v != "" {
		c.Addr = v
	} else if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: PORT=%q", ErrInvalid, port)
		}
		c.Addr = fmt.Sprintf(":%d", p)
	}
	if v := os.Getenv("VIZPREVIEW_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("VIZPREVIEW_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		c.Debug = true
	}
	if v := os.Getenv("VIZPREVIEW_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	p := &c.Preview
	if err := envBool("VIZPREVIEW_RENDER_LOCK", &p.RenderLock); err != nil {
		return err
	}
	ints := []struct {
		key string
		dst *int64
	}{
		{"VIZPREVIEW_RENDER_INTERVAL", &p.RenderInterval},
		{"VIZPREVIEW_DEBOUNCING_INTERVAL", &p.DebouncingInterval},
		{"VIZPREVIEW_GUARD_INTERVAL", &p.GuardInterval},
		{"VIZPREVIEW_RENDER_LOCK_ADDITIONAL_TIMEOUT", &p.RenderLockAdditionalTimeout},
		{"VIZPREVIEW_VIEW_TRANSITION_DELAY", &p.View.TransitionDelay},
		{"VIZPREVIEW_VIEW_TRANSITION_DURATION", &p.View.TransitionDuration},
	}
	for _, it := range ints {
		if err := envInt(it.key, it.dst); err != nil {
			return err
		}
	}
	return nil
}

func envBool(key string, dst *bool) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalid, key, raw)
	}
	*dst = v
	return nil
}

func envInt(key string, dst *int64) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalid, key, raw)
	}
	*dst = v
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
