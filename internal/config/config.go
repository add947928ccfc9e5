package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"drift/internal/paths"
)

//go:embed sample_config.toml
var sampleConfig string

// Config is the daemon's global configuration.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Defaults   Defaults   `toml:"defaults"`
	Events     Events     `toml:"events"`
	Supervisor Supervisor `toml:"supervisor"`
	Daemon     Daemon     `toml:"daemon"`
	Logging    Logging    `toml:"logging"`
}

// Paths holds the three base directories everything else derives from.
type Paths struct {
	ConfigDir  string `toml:"config_dir"`
	StateDir   string `toml:"state_dir"`
	RuntimeDir string `toml:"runtime_dir"`
}

// Defaults names the programs used when opening project workspaces.
type Defaults struct {
	Terminal string `toml:"terminal"`
	Editor   string `toml:"editor"`
	Shell    string `toml:"shell"`
}

// Events tunes the event bus buffers.
type Events struct {
	BufferSize        int `toml:"buffer_size"`
	ReplayOnSubscribe int `toml:"replay_on_subscribe"`
	SubscriberQueue   int `toml:"subscriber_queue"`
}

// Supervisor tunes process supervision timing and restart limits.
type Supervisor struct {
	StopTimeoutSeconds int `toml:"stop_timeout_seconds"`
	BackoffBaseSeconds int `toml:"backoff_base_seconds"`
	BackoffCapSeconds  int `toml:"backoff_cap_seconds"`
	StabilitySeconds   int `toml:"stability_seconds"`
	MaxRestarts        int `toml:"max_restarts"`
}

func (s Supervisor) StopTimeout() time.Duration {
	return time.Duration(s.StopTimeoutSeconds) * time.Second
}

func (s Supervisor) BackoffBase() time.Duration {
	return time.Duration(s.BackoffBaseSeconds) * time.Second
}

func (s Supervisor) BackoffCap() time.Duration {
	return time.Duration(s.BackoffCapSeconds) * time.Second
}

func (s Supervisor) StabilityThreshold() time.Duration {
	return time.Duration(s.StabilitySeconds) * time.Second
}

// Daemon tunes coordination-loop behavior.
type Daemon struct {
	PersistIntervalSeconds int `toml:"persist_interval_seconds"`
}

func (d Daemon) PersistInterval() time.Duration {
	return time.Duration(d.PersistIntervalSeconds) * time.Second
}

// Logging selects daemon log verbosity and format.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() string {
	return filepath.Join(paths.DefaultConfigDir(), "config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file existed at the resolved path; when it did not, defaults
// are returned.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath := DefaultConfigPath()
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.ConfigDir, &c.Paths.StateDir, &c.Paths.RuntimeDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Defaults.Terminal = strings.TrimSpace(c.Defaults.Terminal)
	c.Defaults.Editor = strings.TrimSpace(c.Defaults.Editor)
	c.Defaults.Shell = strings.TrimSpace(c.Defaults.Shell)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

// Layout derives the filesystem layout from the configured base directories.
func (c *Config) Layout() paths.Layout {
	return paths.Layout{
		ConfigDir:  c.Paths.ConfigDir,
		StateDir:   c.Paths.StateDir,
		RuntimeDir: c.Paths.RuntimeDir,
	}
}

// EnsureDirectories creates the base directory tree the daemon needs.
func (c *Config) EnsureDirectories() error {
	return c.Layout().EnsureBaseDirs()
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
