// Package config loads irfuncs.toml.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the name searched for by Find.
const FileName = "irfuncs.toml"

// Config is the decoded configuration. Zero values mean "use the default".
type Config struct {
	Derive DeriveConfig `toml:"derive"`
	Render RenderConfig `toml:"render"`
	Log    LogConfig    `toml:"log"`
}

// DeriveConfig controls function derivation.
type DeriveConfig struct {
	Jobs int `toml:"jobs"` // modules derived concurrently
}

// RenderConfig controls DOT and disassembly output.
type RenderConfig struct {
	Theme    string `toml:"theme"`
	MaxInsts int    `toml:"max_insts"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Derive: DeriveConfig{Jobs: runtime.GOMAXPROCS(0)},
		Render: RenderConfig{Theme: "nasa", MaxInsts: 12},
		Log:    LogConfig{Level: "warn"},
	}
}

// Find walks up from startDir looking for irfuncs.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("config: resolve %s: %w", startDir, err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("config: stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes path over the defaults. Keys absent from the file keep their
// default value.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("derive", "jobs") && cfg.Derive.Jobs < 1 {
		return Config{}, fmt.Errorf("%s: [derive].jobs must be positive", path)
	}
	if meta.IsDefined("render", "max_insts") && cfg.Render.MaxInsts < 1 {
		return Config{}, fmt.Errorf("%s: [render].max_insts must be positive", path)
	}
	if meta.IsDefined("log", "level") {
		if _, err := ParseLevel(cfg.Log.Level); err != nil {
			return Config{}, fmt.Errorf("%s: [log].level: %w", path, err)
		}
	}
	return cfg, nil
}

// Discover finds and loads the nearest irfuncs.toml above startDir. With no
// file the defaults are returned and path is "".
func Discover(startDir string) (cfg Config, path string, err error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, "", err
	}
	if !ok {
		return Default(), "", nil
	}
	cfg, err = Load(path)
	return cfg, path, err
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
	return l, nil
}
