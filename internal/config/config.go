// Package config holds the declarative run configuration for the fuzz
// driver. Configuration is loaded from YAML, overridable through FUZZKIT_*
// environment variables, and translated by the executor into the mutation
// engine's argument vector.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full driver configuration.
type Config struct {
	// MaxDuration bounds the whole run, as a duration string ("10s",
	// "5m"). Empty or "0" means unbounded.
	MaxDuration string `yaml:"max_duration"`

	// MaxRuns bounds the number of engine iterations. Non-positive means
	// unbounded.
	MaxRuns int64 `yaml:"max_runs"`

	// Dictionary is an optional tokens file passed to the engine.
	Dictionary string `yaml:"dictionary"`

	// KeepGoing is the number of distinct findings to tolerate before the
	// run is forced to stop. 0 reports every finding but never stops the
	// run early; 1 stops at the first.
	KeepGoing int `yaml:"keep_going"`

	// ValueProfile enables the engine's value-profile guidance.
	ValueProfile bool `yaml:"value_profile"`

	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TimeoutsConfig is the per-execution timeout chain, most specific first.
// Each entry is a duration string; empty entries fall through to the next.
type TimeoutsConfig struct {
	PerTest       string `yaml:"per_test"`
	PerClass      string `yaml:"per_class"`
	MethodDefault string `yaml:"method_default"`
	Default       string `yaml:"default"`
}

// CorpusConfig configures corpus and seed sources.
type CorpusConfig struct {
	// BaseDir anchors the default generated-corpus directory. Empty means
	// the current working directory.
	BaseDir string `yaml:"base_dir"`

	// Dirs lists user-specified corpus files or directories. They take
	// positional precedence over everything the driver discovers.
	Dirs []string `yaml:"dirs"`

	// InputsDir is an optional read-only regression corpus appended as an
	// additional seed source. It is never written to.
	InputsDir string `yaml:"inputs_dir"`
}

// EngineConfig configures the external mutation engine.
type EngineConfig struct {
	// Binary is the engine executable for out-of-process runs.
	Binary string `yaml:"binary"`

	// Args are user-supplied passthrough arguments appended last so they
	// can override the driver's defaults. Positional (non-flag) entries
	// are treated as extra corpus sources.
	Args []string `yaml:"args"`
}

// LoggingConfig configures the zap logger built in cmd.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		MaxDuration: "5m",
		KeepGoing:   1,
		Timeouts: TimeoutsConfig{
			Default: "10m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config from path and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML to path, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides lets FUZZKIT_* environment variables override file
// values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FUZZKIT_MAX_DURATION"); v != "" {
		c.MaxDuration = v
	}
	if v := os.Getenv("FUZZKIT_DICT"); v != "" {
		c.Dictionary = v
	}
	if v := os.Getenv("FUZZKIT_KEEP_GOING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.KeepGoing = n
		}
	}
	if v := os.Getenv("FUZZKIT_VALUE_PROFILE"); v != "" {
		c.ValueProfile = parseBool(v)
	}
	if v := os.Getenv("FUZZKIT_ENGINE"); v != "" {
		c.Engine.Binary = v
	}
}

// Validate fails fast on configuration the executor could not translate.
func (c *Config) Validate() error {
	if c.KeepGoing < 0 {
		return fmt.Errorf("config: keep_going must be >= 0, got %d", c.KeepGoing)
	}
	if _, err := DurationToSeconds(c.MaxDuration); err != nil {
		return fmt.Errorf("config: max_duration: %w", err)
	}
	for name, v := range map[string]string{
		"timeouts.per_test":       c.Timeouts.PerTest,
		"timeouts.per_class":      c.Timeouts.PerClass,
		"timeouts.method_default": c.Timeouts.MethodDefault,
		"timeouts.default":        c.Timeouts.Default,
	} {
		if v == "" {
			continue
		}
		if _, err := DurationToSeconds(v); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

// TimeoutSeconds resolves the per-execution timeout from the most specific
// configured entry. ok is false when no entry is set.
func (c *Config) TimeoutSeconds() (seconds int64, ok bool) {
	for _, v := range []string{
		c.Timeouts.PerTest,
		c.Timeouts.PerClass,
		c.Timeouts.MethodDefault,
		c.Timeouts.Default,
	} {
		if v == "" {
			continue
		}
		if s, err := DurationToSeconds(v); err == nil {
			return s, true
		}
	}
	return 0, false
}

// DurationToSeconds parses a duration string into whole seconds. Empty and
// "0" mean unbounded and map to 0. Bare integers are accepted as seconds.
func DurationToSeconds(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return int64(d / time.Second), nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
