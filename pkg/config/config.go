// Package config loads the driver configuration from dolphin_config.yaml (or
// a .toml file) and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"dolphinenv/pkg/script"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "dolphin_config.yaml"

// DefaultDolphinPath is the directory holding the dolphin-emu binary.
const DefaultDolphinPath = "/root/dolphin/build/Binaries"

// DefaultRequestTimeout bounds one request when the file does not set one.
const DefaultRequestTimeout = 30 * time.Second

// EmulatorBinary is the executable name under DolphinPath.
const EmulatorBinary = "dolphin-emu"

// Config is the driver configuration. Keys keep the upper-case names used by
// existing dolphin_config.yaml files.
type Config struct {
	DolphinPath    string   `yaml:"DOLPHIN_PATH" toml:"DOLPHIN_PATH"`
	DolphinIDs     []int    `yaml:"DOLPHIN_IDS" toml:"DOLPHIN_IDS"`
	ISOPath        string   `yaml:"ISO_PATH" toml:"ISO_PATH"`
	PipePath       string   `yaml:"PIPE_PATH" toml:"PIPE_PATH"`
	ScriptPath     string   `yaml:"SCRIPT_PATH" toml:"SCRIPT_PATH"`
	RequestTimeout Duration `yaml:"REQUEST_TIMEOUT" toml:"REQUEST_TIMEOUT"`
	EventDB        string   `yaml:"EVENT_DB" toml:"EVENT_DB"`
	EndPolicy      string   `yaml:"END_POLICY" toml:"END_POLICY"`
	Home           string   `yaml:"HOME" toml:"HOME"`
}

// Duration is a time.Duration written as "30s" or "1m30s" in config files.
type Duration time.Duration

// UnmarshalText parses a Go duration string. go-toml uses this.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML accepts a duration string or a bare number of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs float64
	if tag := node.ShortTag(); tag == "!!int" || tag == "!!float" {
		if err := node.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalText writes the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DolphinPath:    DefaultDolphinPath,
		DolphinIDs:     []int{0},
		RequestTimeout: Duration(DefaultRequestTimeout),
	}
}

// Load reads path, decoding by extension (.yaml, .yml or .toml), then fills
// defaults, applies env overrides and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when set. With an empty path it tries DefaultFile
// in the working directory and falls back to Default when that is absent.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return Load(DefaultFile)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", DefaultFile, err)
	}
	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", ext)
	}
	return nil
}

// finish applies defaults and env overrides, then validates.
func (c *Config) finish() error {
	if c.DolphinPath == "" {
		c.DolphinPath = DefaultDolphinPath
	}
	if c.DolphinIDs == nil {
		c.DolphinIDs = []int{0}
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	paths, err := ResolvePaths(c)
	if err != nil {
		return err
	}
	c.Home = paths.Home
	c.PipePath = paths.PipeRoot
	c.EventDB = paths.EventDB
	return c.Validate()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.DolphinIDs) == 0 {
		return errors.New("DOLPHIN_IDS is empty")
	}
	seen := make(map[int]bool, len(c.DolphinIDs))
	for _, id := range c.DolphinIDs {
		if id < 0 {
			return fmt.Errorf("DOLPHIN_IDS: negative id %d", id)
		}
		if seen[id] {
			return fmt.Errorf("DOLPHIN_IDS: duplicate id %d", id)
		}
		seen[id] = true
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT: negative duration %s", c.RequestTimeout.Std())
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("END_POLICY: %w", err)
	}
	if c.PipePath == "" {
		return errors.New("PIPE_PATH is empty")
	}
	return nil
}

// Policy parses END_POLICY.
func (c *Config) Policy() (script.EndPolicy, error) {
	return script.ParseEndPolicy(c.EndPolicy)
}

// EmulatorCommand is the argv prefix that launches the emulator.
func (c *Config) EmulatorCommand() []string {
	return []string{filepath.Join(c.DolphinPath, EmulatorBinary)}
}

// FirstID is the session id the single-session commands use.
func (c *Config) FirstID() int {
	return c.DolphinIDs[0]
}
