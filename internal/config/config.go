package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 64 * 1024

// Camera types understood by the station.
const (
	CameraLibcamera    = "libcamera"     // two sensors, one camera index each
	CameraLibcameraMux = "libcamera_mux" // two sensors behind a GPIO multiplexer
	CameraMock         = "mock"
)

// Brightness controller types.
const (
	BrightnessNone      = "none"
	BrightnessBacklight = "backlight"
	BrightnessPWM       = "pwm"
	BrightnessMock      = "mock"
)

// CameraConfig describes how to reach the two sensors.
type CameraConfig struct {
	Type        string  `yaml:"type"`         // libcamera, libcamera_mux, mock
	Binary      string  `yaml:"binary"`       // still capture binary
	FrontIndex  int     `yaml:"front_index"`  // --camera index of the front sensor
	BackIndex   int     `yaml:"back_index"`   // --camera index of the back sensor
	CapturesDir string  `yaml:"captures_dir"` // where stills are written
	Quality     float64 `yaml:"quality"`      // 0-1 quality hint
	TimeoutMs   int     `yaml:"timeout_ms"`   // per-shot process timeout, 0 = none
	SelectPin   int     `yaml:"select_pin"`   // mux select line (BCM)
	SettleMs    int     `yaml:"settle_ms"`    // wait after switching the mux
	MockWidth   int     `yaml:"mock_width"`
	MockHeight  int     `yaml:"mock_height"`
}

// BrightnessConfig selects the screen brightness controller.
type BrightnessConfig struct {
	Type      string `yaml:"type"`        // none, backlight, pwm, mock
	Root      string `yaml:"root"`        // sysfs backlight root (default /sys/class/backlight)
	Device    string `yaml:"device"`      // backlight device name
	PWMPin    int    `yaml:"pwm_pin"`     // hardware PWM pin (BCM 12/13/18/19)
	PWMFreqHz int    `yaml:"pwm_freq_hz"` // PWM output frequency
}

// FlashConfig holds the software flash parameters.
type FlashConfig struct {
	Enabled            bool     `yaml:"enabled"`
	DelayMs            *int     `yaml:"delay_ms"`            // brightness ramp wait before the shutter (default 100)
	FallbackBrightness *float64 `yaml:"fallback_brightness"` // restored when the prior level is unknown
}

// PhotoConfig controls post-processing of captures.
type PhotoConfig struct {
	MirrorFront  bool `yaml:"mirror_front"`
	MaxDimension int  `yaml:"max_dimension"`
	JPEGQuality  int  `yaml:"jpeg_quality"`
}

// APIConfig points at the remote feed.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Token     string `yaml:"-"` // from DUALCAP_API_TOKEN only
}

// StoreConfig locates the local database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int    `yaml:"debug_level"` // 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool   `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	Location   string `yaml:"location"`    // default location attached to submissions
}

// Config aggregates all station configuration.
type Config struct {
	Camera     CameraConfig     `yaml:"camera"`
	Brightness BrightnessConfig `yaml:"brightness"`
	Flash      FlashConfig      `yaml:"flash"`
	Photo      PhotoConfig      `yaml:"photo"`
	API        APIConfig        `yaml:"api"`
	Store      StoreConfig      `yaml:"store"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files located directly in a
// directory named "configs".
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q escapes its directory", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	// Camera
	switch cfg.Camera.Type {
	case "":
		return fmt.Errorf("camera.type is required")
	case CameraLibcamera, CameraLibcameraMux, CameraMock:
	default:
		return fmt.Errorf("unsupported camera.type %q", cfg.Camera.Type)
	}
	if cfg.Camera.Binary == "" {
		cfg.Camera.Binary = "libcamera-still"
	}
	if cfg.Camera.CapturesDir == "" {
		cfg.Camera.CapturesDir = "captures"
	}
	if cfg.Camera.Quality < 0 || cfg.Camera.Quality > 1 {
		return fmt.Errorf("camera.quality must be between 0 and 1, got %.2f", cfg.Camera.Quality)
	}
	if cfg.Camera.Quality == 0 {
		cfg.Camera.Quality = 1 // full quality, as the mobile app did
	}
	if cfg.Camera.TimeoutMs < 0 {
		return fmt.Errorf("camera.timeout_ms must be >= 0, got %d", cfg.Camera.TimeoutMs)
	}
	if cfg.Camera.Type == CameraLibcameraMux && cfg.Camera.SelectPin <= 0 {
		return fmt.Errorf("camera.select_pin is required for %s", CameraLibcameraMux)
	}
	if cfg.Camera.SettleMs <= 0 {
		cfg.Camera.SettleMs = 50
	}
	if cfg.Camera.MockWidth <= 0 {
		cfg.Camera.MockWidth = 480
	}
	if cfg.Camera.MockHeight <= 0 {
		cfg.Camera.MockHeight = 640 // 3:4 portrait
	}

	// Brightness
	switch cfg.Brightness.Type {
	case "":
		cfg.Brightness.Type = BrightnessNone
	case BrightnessNone, BrightnessMock:
	case BrightnessBacklight:
		if cfg.Brightness.Device == "" {
			return fmt.Errorf("brightness.device is required for %s", BrightnessBacklight)
		}
	case BrightnessPWM:
		if cfg.Brightness.PWMPin <= 0 {
			return fmt.Errorf("brightness.pwm_pin is required for %s", BrightnessPWM)
		}
	default:
		return fmt.Errorf("unsupported brightness.type %q", cfg.Brightness.Type)
	}
	if cfg.Brightness.PWMFreqHz <= 0 {
		cfg.Brightness.PWMFreqHz = 1000
	}

	// Flash
	if cfg.Flash.DelayMs == nil {
		v := 100
		cfg.Flash.DelayMs = &v
	}
	if *cfg.Flash.DelayMs < 0 {
		return fmt.Errorf("flash.delay_ms must be >= 0, got %d", *cfg.Flash.DelayMs)
	}
	if cfg.Flash.FallbackBrightness == nil {
		v := 0.5
		cfg.Flash.FallbackBrightness = &v
	}
	if fb := *cfg.Flash.FallbackBrightness; fb < 0 || fb > 1 {
		return fmt.Errorf("flash.fallback_brightness must be between 0 and 1, got %.2f", fb)
	}

	// Photo
	if cfg.Photo.MaxDimension < 0 {
		return fmt.Errorf("photo.max_dimension must be >= 0, got %d", cfg.Photo.MaxDimension)
	}
	if cfg.Photo.JPEGQuality == 0 {
		cfg.Photo.JPEGQuality = 90
	}
	if cfg.Photo.JPEGQuality < 1 || cfg.Photo.JPEGQuality > 100 {
		return fmt.Errorf("photo.jpeg_quality must be between 1 and 100, got %d", cfg.Photo.JPEGQuality)
	}

	// API and store
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8081"
	}
	if cfg.API.TimeoutMs <= 0 {
		cfg.API.TimeoutMs = 15000
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "dualcap.db"
	}

	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}
	return nil
}

// Environment variables read by ApplyEnv.
const (
	EnvAPIURL     = "DUALCAP_API_URL"
	EnvAPIToken   = "DUALCAP_API_TOKEN"
	EnvLocation   = "DUALCAP_LOCATION"
	EnvDebugLevel = "DUALCAP_DEBUG_LEVEL"

	// EnvFeedPassword is read by the login command only; it is never stored.
	EnvFeedPassword = "DUALCAP_FEED_PASSWORD"
)

// ApplyEnv loads dotenv files (missing files are ignored) and overlays
// environment variables on cfg.
func ApplyEnv(cfg *Config, dotenvFiles ...string) error {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv(EnvLocation); v != "" {
		cfg.Defaults.Location = v
	}
	if v := os.Getenv(EnvDebugLevel); v != "" {
		lvl, err := strconv.Atoi(v)
		if err != nil || lvl < 0 || lvl > 4 {
			return fmt.Errorf("%s must be 0-4, got %q", EnvDebugLevel, v)
		}
		cfg.Defaults.DebugLevel = lvl
	}
	return nil
}

// CaptureTimeout returns the per-shot process timeout. Zero means the
// shutter call is not bounded.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Camera.TimeoutMs) * time.Millisecond
}

// SettleDelay returns the wait after switching the mux.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Camera.SettleMs) * time.Millisecond
}

// FlashDelay returns the brightness ramp wait.
func (c *Config) FlashDelay() time.Duration {
	if c.Flash.DelayMs == nil {
		return 100 * time.Millisecond
	}
	return time.Duration(*c.Flash.DelayMs) * time.Millisecond
}

// Fallback returns the brightness restored when the prior level is unknown.
func (c *Config) Fallback() float64 {
	if c.Flash.FallbackBrightness == nil {
		return 0.5
	}
	return *c.Flash.FallbackBrightness
}

// APITimeout returns the HTTP client timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutMs) * time.Millisecond
}
