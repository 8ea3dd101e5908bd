package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"imgdiff/internal/diff"
	"imgdiff/internal/fsutil"
	"imgdiff/internal/render"
)

const (
	defaultConfigPath = "~/.config/imgdiff/config.json"
	envConfig         = "IMGDIFF_CONFIG"
)

// Config holds user-editable settings for comparisons and the server.
type Config struct {
	Render    Render    `json:"render"`
	Highlight Highlight `json:"highlight"`
	Viewer    Viewer    `json:"viewer"`
	Magick    Magick    `json:"magick"`
	Watch     Watch     `json:"watch"`
	Server    Server    `json:"server"`
	Storage   Storage   `json:"storage"`
	Logging   Logging   `json:"logging"`
}

// Render controls how the side-by-side composite is laid out.
type Render struct {
	Orientation string `json:"orientation"` // auto, lr, tb
	Spacing     int    `json:"spacing"`
	Border      int    `json:"border"`
	BGColor     string `json:"bgcolor"`
	SepColor    string `json:"sepcolor"`
}

// Highlight controls the difference search.
type Highlight struct {
	Mode         string  `json:"mode"` // none, fast, thorough
	OpacityFloor int     `json:"opacity_floor"`
	TimeoutSec   float64 `json:"timeout_seconds"` // 0 disables the deadline
	ReportSec    float64 `json:"report_seconds"`
}

// Viewer selects the external image viewer.
type Viewer struct {
	Command  string  `json:"command"` // "builtin" means the platform opener
	GraceSec float64 `json:"grace_seconds"`
}

// Magick enables the ImageMagick fallback decoder.
type Magick struct {
	Enabled bool `json:"enabled"`
}

// Watch tunes the recompare-on-change watcher.
type Watch struct {
	DebounceMS int `json:"debounce_ms"`
}

// Server configures the HTTP/WebSocket endpoint.
type Server struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Storage configures the comparison history database.
type Storage struct {
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Format     string `json:"format"` // text, json
	File       string `json:"file"`   // empty disables file logging
	MaxSize    int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age_days"`
}

func (h Highlight) Timeout() time.Duration {
	return time.Duration(h.TimeoutSec * float64(time.Second))
}

func (h Highlight) ReportDelay() time.Duration {
	return time.Duration(h.ReportSec * float64(time.Second))
}

func (v Viewer) Grace() time.Duration {
	return time.Duration(v.GraceSec * float64(time.Second))
}

func (w Watch) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from disk, falling back to sensible defaults.
// The path comes from $IMGDIFF_CONFIG when set.
func Load() (*Config, error) {
	configPath := os.Getenv(envConfig)
	if configPath == "" {
		configPath = defaultConfigPath
	}
	return LoadFrom(configPath)
}

// LoadFrom reads configuration from an explicit path. A missing file is not
// an error; defaults apply.
func LoadFrom(path string) (*Config, error) {
	cfg := defaultConfig()

	expanded, err := ExpandUser(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", expanded, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", expanded, err)
	}
	return cfg, nil
}

// Save writes cfg as indented JSON, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	expanded, err := ExpandUser(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(expanded, append(data, '\n'), 0o644)
}

// DefaultPath returns the effective config file location.
func DefaultPath() string {
	if p := os.Getenv(envConfig); p != "" {
		return p
	}
	return defaultConfigPath
}

// Validate rejects settings the rest of the program cannot act on.
func (c *Config) Validate() error {
	switch c.Render.Orientation {
	case render.Auto, render.LeftRight, render.TopBottom:
	default:
		return fmt.Errorf("render.orientation: unknown value %q", c.Render.Orientation)
	}
	if c.Render.Spacing < 0 || c.Render.Border < 0 {
		return errors.New("render: spacing and border must be >= 0")
	}
	if _, err := render.ParseColor(c.Render.BGColor); err != nil {
		return fmt.Errorf("render.bgcolor: %w", err)
	}
	if _, err := render.ParseColor(c.Render.SepColor); err != nil {
		return fmt.Errorf("render.sepcolor: %w", err)
	}

	switch c.Highlight.Mode {
	case "none", "fast", "thorough":
	default:
		return fmt.Errorf("highlight.mode: unknown value %q", c.Highlight.Mode)
	}
	if c.Highlight.OpacityFloor < 0 || c.Highlight.OpacityFloor > 255 {
		return errors.New("highlight.opacity_floor: must be in 0..255")
	}
	if c.Highlight.TimeoutSec < 0 || c.Highlight.ReportSec < 0 {
		return errors.New("highlight: timeout_seconds and report_seconds must be >= 0")
	}

	if c.Viewer.GraceSec < 0 {
		return errors.New("viewer.grace_seconds: must be >= 0")
	}
	if c.Watch.DebounceMS < 0 {
		return errors.New("watch.debounce_ms: must be >= 0")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("server.port: must be in 1..65535")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown value %q", c.Logging.Format)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Render: Render{
			Orientation: render.Auto,
			Spacing:     3,
			Border:      0,
			BGColor:     "fff",
			SepColor:    "ccc",
		},
		Highlight: Highlight{
			Mode:         "none",
			OpacityFloor: diff.DefaultOpacityFloor,
			TimeoutSec:   10,
			ReportSec:    2,
		},
		Viewer: Viewer{
			Command:  "builtin",
			GraceSec: 1,
		},
		Magick: Magick{Enabled: true},
		Watch:  Watch{DebounceMS: 250},
		Server: Server{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Storage: Storage{
			Path:    "~/.local/share/imgdiff/history.db",
			Enabled: true,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// ExpandUser resolves a leading ~ against the current home directory.
func ExpandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
