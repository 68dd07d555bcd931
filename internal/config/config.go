// Package config loads mudra settings from YAML, .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Sink names accepted by Notify.Sink.
const (
	SinkHTTP   = "http"
	SinkPlugin = "plugin"
)

// Environment variables that override file settings.
const (
	EnvAPIKey    = "MUDRA_API_KEY"
	EnvDeviceID  = "MUDRA_DEVICE_ID"
	EnvNotifyURL = "MUDRA_NOTIFY_URL"
	EnvCamera    = "MUDRA_CAMERA"
)

// Config is the full application configuration.
type Config struct {
	Camera   Camera         `yaml:"camera"`
	Detector Detector       `yaml:"detector"`
	Notify   Notify         `yaml:"notify"`
	Bindings map[int]string `yaml:"bindings"`
	Loop     Loop           `yaml:"loop"`
	Server   Server         `yaml:"server"`
	History  History        `yaml:"history"`
	Log      Log            `yaml:"log"`
}

// Camera selects and sizes the capture device.
type Camera struct {
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
}

// Detector configures the MediaPipe landmark service.
type Detector struct {
	// Script and Python are searched for when empty. Python falls back to a
	// venv interpreter next to the working directory or binary, then python3.
	Script                 string  `yaml:"script"`
	Python                 string  `yaml:"python"`
	MaxHands               int     `yaml:"max_hands"`
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`
}

// Notify configures where notifications go.
type Notify struct {
	Sink       string        `yaml:"sink"`
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	DeviceID   string        `yaml:"device_id"`
	Action     string        `yaml:"action"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryAfter time.Duration `yaml:"retry_after"`
	Plugin     Plugin        `yaml:"plugin"`
}

// Plugin selects a local executable plugin used by the plugin sink.
type Plugin struct {
	Dir     string        `yaml:"dir"`
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`

	// Config is handed to the plugin verbatim with every request.
	Config map[string]string `yaml:"config"`
}

// Loop tunes the frame loop.
type Loop struct {
	MaxReadFailures int           `yaml:"max_read_failures"`
	ReadRetryDelay  time.Duration `yaml:"read_retry_delay"`
	MotionThreshold float64       `yaml:"motion_threshold"`
	Headless        bool          `yaml:"headless"`
}

// Server configures the optional status server. Empty Listen disables it.
// StaticDir, when set, is served on "/".
type Server struct {
	Listen    string `yaml:"listen"`
	StaticDir string `yaml:"static_dir"`
}

// History configures the dispatch log. Empty Path disables it.
type History struct {
	Path string `yaml:"path"`
}

// Log configures the logger.
type Log struct {
	Level string `yaml:"level"`
	Dev   bool   `yaml:"dev"`
}

// Default returns the configuration of the stock Sinric Pro switch setup.
func Default() Config {
	return Config{
		Camera: Camera{
			Device: 0,
			Width:  640,
			Height: 480,
			FPS:    30,
		},
		Detector: Detector{
			MaxHands:               2,
			MinDetectionConfidence: 0.5,
			MinTrackingConfidence:  0.5,
		},
		Notify: Notify{
			Sink:       SinkHTTP,
			URL:        "https://apple.sinric.pro/v1/shortcuts/actions",
			Action:     "setPowerState",
			Timeout:    5 * time.Second,
			RetryAfter: 2 * time.Second,
			Plugin: Plugin{
				Dir:     "plugins",
				Name:    "shell-switch",
				Timeout: 5 * time.Second,
			},
		},
		Bindings: map[int]string{
			3: "Off",
			4: "On",
		},
		Loop: Loop{
			MaxReadFailures: 300,
			ReadRetryDelay:  10 * time.Millisecond,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path on top of Default.
// An empty path returns Default unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	// Bindings in the file replace the defaults instead of merging with them.
	defaults := cfg.Bindings
	cfg.Bindings = nil

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Bindings == nil {
		cfg.Bindings = defaults
	}

	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment.
// Files that do not exist are skipped; variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Notify.APIKey = v
	}
	if v := os.Getenv(EnvDeviceID); v != "" {
		c.Notify.DeviceID = v
	}
	if v := os.Getenv(EnvNotifyURL); v != "" {
		c.Notify.URL = v
	}
	if v := os.Getenv(EnvCamera); v != "" {
		device, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvCamera, v)
		}
		c.Camera.Device = device
	}
	return nil
}

// Validate checks the configuration for values the program cannot run with.
func (c *Config) Validate() error {
	if c.Camera.Device < 0 {
		return fmt.Errorf("%w: camera.device must be >= 0", ErrInvalid)
	}
	if err := checkUnit("detector.min_detection_confidence", c.Detector.MinDetectionConfidence); err != nil {
		return err
	}
	if err := checkUnit("detector.min_tracking_confidence", c.Detector.MinTrackingConfidence); err != nil {
		return err
	}
	if c.Detector.MaxHands < 1 {
		return fmt.Errorf("%w: detector.max_hands must be >= 1", ErrInvalid)
	}

	switch c.Notify.Sink {
	case SinkHTTP:
		if c.Notify.URL == "" {
			return fmt.Errorf("%w: notify.url is required for the http sink", ErrInvalid)
		}
		if c.Notify.APIKey == "" {
			return fmt.Errorf("%w: notify.api_key is required for the http sink (or set %s)", ErrInvalid, EnvAPIKey)
		}
		if c.Notify.DeviceID == "" {
			return fmt.Errorf("%w: notify.device_id is required for the http sink (or set %s)", ErrInvalid, EnvDeviceID)
		}
	case SinkPlugin:
		if c.Notify.Plugin.Name == "" {
			return fmt.Errorf("%w: notify.plugin.name is required for the plugin sink", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown notify.sink %q", ErrInvalid, c.Notify.Sink)
	}
	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("%w: notify.timeout must be positive", ErrInvalid)
	}
	if c.Notify.RetryAfter < 0 {
		return fmt.Errorf("%w: notify.retry_after must not be negative", ErrInvalid)
	}

	if len(c.Bindings) == 0 {
		return fmt.Errorf("%w: at least one binding is required", ErrInvalid)
	}
	for count, state := range c.Bindings {
		if count < 0 || count > 5 {
			return fmt.Errorf("%w: binding for %d fingers is out of range 0-5", ErrInvalid, count)
		}
		if state == "" {
			return fmt.Errorf("%w: binding for %d fingers has an empty state", ErrInvalid, count)
		}
	}

	if c.Loop.MaxReadFailures < 0 {
		return fmt.Errorf("%w: loop.max_read_failures must not be negative", ErrInvalid)
	}
	if c.Loop.MotionThreshold < 0 {
		return fmt.Errorf("%w: loop.motion_threshold must not be negative", ErrInvalid)
	}

	return nil
}

// BoundCounts returns the bound finger counts in ascending order.
func (c *Config) BoundCounts() []int {
	counts := make([]int, 0, len(c.Bindings))
	for count := range c.Bindings {
		counts = append(counts, count)
	}
	sort.Ints(counts)
	return counts
}

func checkUnit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: %s must be within 0.0-1.0, got %g", ErrInvalid, name, v)
	}
	return nil
}
