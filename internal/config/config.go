// Package config handles reading and writing hearnow/config.yaml and the
// environment overrides layered on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codev612/hearnow/internal/daemon"
	"github.com/codev612/hearnow/internal/db"
)

// Config is the top-level structure for config.yaml.
type Config struct {
	Version int          `yaml:"version"`
	Daemon  DaemonConfig `yaml:"daemon"`
	DBPath  string       `yaml:"db_path"`
	Timing  TimingConfig `yaml:"timing"`
	AI      AIConfig     `yaml:"ai"`
	Log     LogConfig    `yaml:"log"`
}

// DaemonConfig locates the transcription daemon.
type DaemonConfig struct {
	Socket string `yaml:"socket"`
	UseMic bool   `yaml:"use_mic"`
}

// TimingConfig holds the UI and persistence timings, all in milliseconds.
type TimingConfig struct {
	AutosaveMs      int `yaml:"autosave_ms"`
	StopSyncDelayMs int `yaml:"stop_sync_delay_ms"`
	ClockTickMs     int `yaml:"clock_tick_ms"`
	RefreshMs       int `yaml:"refresh_ms"`
}

// AIConfig points at an OpenAI-compatible chat completions API.
type AIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// LogConfig controls the diagnostics log.
type LogConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"` // "debug" | "info" | "warn" | "error"
}

const (
	appDir     = "hearnow"
	configFile = "config.yaml"
)

// Dir returns the hearnow config directory.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, appDir)
}

// ReadConfig reads config.yaml from dir.
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// WriteConfig writes cfg to config.yaml in dir, creating dir if needed.
func WriteConfig(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dir, configFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Daemon: DaemonConfig{
			Socket: daemon.SocketPath(),
			UseMic: true,
		},
		DBPath: db.DefaultDBPath(),
		Timing: TimingConfig{
			AutosaveMs:      800,
			StopSyncDelayMs: 300,
			ClockTickMs:     1000,
			RefreshMs:       250,
		},
		AI: AIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Log: LogConfig{
			Dir:   filepath.Join(Dir(), "logs"),
			Level: "info",
		},
	}
}

// Load reads config.yaml from dir (a missing file means defaults), applies
// environment overrides and replaces invalid values with defaults.
func Load(dir string) (*Config, error) {
	cfg, err := ReadConfig(dir)
	if errors.Is(err, os.ErrNotExist) {
		cfg = DefaultConfig()
	} else if err != nil {
		return nil, err
	}

	cfg.Daemon.Socket = envOrDefault("HEARNOW_SOCKET", cfg.Daemon.Socket)
	cfg.Daemon.UseMic = envOrDefaultBool("HEARNOW_USE_MIC", cfg.Daemon.UseMic)
	cfg.DBPath = envOrDefault("HEARNOW_DB", cfg.DBPath)
	cfg.AI.BaseURL = envOrDefault("HEARNOW_AI_BASE_URL", cfg.AI.BaseURL)
	cfg.AI.APIKey = envOrDefault("HEARNOW_AI_API_KEY", envOrDefault("OPENAI_API_KEY", cfg.AI.APIKey))
	cfg.AI.Model = envOrDefault("HEARNOW_AI_MODEL", cfg.AI.Model)
	cfg.Log.Dir = envOrDefault("HEARNOW_LOG_DIR", cfg.Log.Dir)
	cfg.Log.Level = envOrDefault("HEARNOW_LOG_LEVEL", cfg.Log.Level)
	cfg.Timing.AutosaveMs = envOrDefaultInt("HEARNOW_AUTOSAVE_MS", cfg.Timing.AutosaveMs)

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	def := DefaultConfig()
	positive := func(v *int, fallback int) {
		if *v <= 0 {
			*v = fallback
		}
	}
	positive(&c.Timing.AutosaveMs, def.Timing.AutosaveMs)
	positive(&c.Timing.StopSyncDelayMs, def.Timing.StopSyncDelayMs)
	positive(&c.Timing.ClockTickMs, def.Timing.ClockTickMs)
	positive(&c.Timing.RefreshMs, def.Timing.RefreshMs)

	if strings.TrimSpace(c.Daemon.Socket) == "" {
		c.Daemon.Socket = def.Daemon.Socket
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = def.DBPath
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		c.Log.Level = strings.ToLower(c.Log.Level)
	default:
		c.Log.Level = def.Log.Level
	}
}

// Autosave is the debounce window for free-text edits.
func (c *Config) Autosave() time.Duration { return ms(c.Timing.AutosaveMs) }

// StopSyncDelay is how long the bubble sync waits after a stop.
func (c *Config) StopSyncDelay() time.Duration { return ms(c.Timing.StopSyncDelayMs) }

// ClockTick is the recording clock's tick interval.
func (c *Config) ClockTick() time.Duration { return ms(c.Timing.ClockTickMs) }

// Refresh is the UI refresh interval that drives the bubble sync.
func (c *Config) Refresh() time.Duration { return ms(c.Timing.RefreshMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
