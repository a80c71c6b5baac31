// Package config loads facegate settings from struct defaults, an optional
// YAML file, .env and FACEGATE_* environment variables. Command-line flags
// are applied on top by the caller before Validate.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/facegate/internal/logging"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full client configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Camera   CameraConfig   `yaml:"camera"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
	Register RegisterConfig `yaml:"register"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url" default:"http://127.0.0.1:5000" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" default:"0s" validate:"gte=0"`
}

type CameraConfig struct {
	// Format and Device are passed to ffmpeg as -f and -i. Empty values
	// are filled in per platform.
	Format string `yaml:"format"`
	Device string `yaml:"device"`
	// Frames replaces the webcam with still images when set.
	Frames        []string      `yaml:"frames" validate:"dive,required"`
	StartAttempts int           `yaml:"start_attempts" default:"3" validate:"gte=1"`
	StartBackoff  time.Duration `yaml:"start_backoff" default:"500ms" validate:"gte=0"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout" default:"10s" validate:"gte=0"`
}

type SessionConfig struct {
	DSN string `yaml:"dsn" default:"sqlite://~/.facegate/session.db" validate:"required"`
}

type LogConfig struct {
	File  string `yaml:"file" default:"~/.facegate/facegate.log"`
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
}

type RegisterConfig struct {
	Interval time.Duration `yaml:"interval" default:"1s" validate:"gte=0"`
	// Attempts caps capture presses in --auto mode, rejected samples included.
	Attempts int `yaml:"attempts" default:"15" validate:"gte=1"`
}

// LoadOptions points Load at non-default files.
type LoadOptions struct {
	// Path is an explicit YAML file. It must exist when set.
	Path string
	// EnvFile defaults to ".env" in the working directory.
	EnvFile string
}

// DefaultPath is where Load looks for a YAML file when none is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "facegate", "config.yaml")
}

// Load builds a Config from defaults, file and environment.
func Load(opts LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: apply defaults: %w", err)
	}

	path, required := opts.Path, true
	if path == "" {
		path, required = DefaultPath(), false
	}
	if path != "" {
		if err := cfg.loadFile(path, required); err != nil {
			return nil, err
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		logging.DebugLog("Environment configuration: no %s file loaded", envFile)
	} else {
		logging.DebugLog("Environment configuration: %s loaded", envFile)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyPlatformDefaults(runtime.GOOS)
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	logging.DebugLog("Config file loaded: %s", path)
	return nil
}

// applyEnv overlays FACEGATE_* variables.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"FACEGATE_API_URL":    &c.API.BaseURL,
		"FACEGATE_FORMAT":     &c.Camera.Format,
		"FACEGATE_DEVICE":     &c.Camera.Device,
		"FACEGATE_SESSION_DB": &c.Session.DSN,
		"FACEGATE_LOG_FILE":   &c.Log.File,
		"FACEGATE_LOG_LEVEL":  &c.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"FACEGATE_API_TIMEOUT":       &c.API.Timeout,
		"FACEGATE_CAMERA_TIMEOUT":    &c.Camera.ReadyTimeout,
		"FACEGATE_REGISTER_INTERVAL": &c.Register.Interval,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid duration in %s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv("FACEGATE_CAMERA_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid integer in FACEGATE_CAMERA_ATTEMPTS: %w", err)
		}
		c.Camera.StartAttempts = n
	}
	if v, ok := os.LookupEnv("FACEGATE_FRAMES"); ok {
		c.Camera.Frames = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyPlatformDefaults picks the ffmpeg capture backend for goos.
func (c *Config) applyPlatformDefaults(goos string) {
	if c.Camera.Format == "" {
		switch goos {
		case "darwin":
			c.Camera.Format = "avfoundation"
		case "windows":
			c.Camera.Format = "dshow"
		default:
			c.Camera.Format = "v4l2"
		}
	}
	if c.Camera.Device == "" {
		switch goos {
		case "darwin":
			c.Camera.Device = "0"
		case "windows":
			c.Camera.Device = "video=Integrated Camera"
		default:
			c.Camera.Device = "/dev/video0"
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the final, flag-adjusted configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
