package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up at the project root.
const FileName = "sweeps.yaml"

// Environment variables overriding the config file.
const (
	EnvExecutable = "SWEEPS_EXECUTABLE"
	EnvProcs      = "SWEEPS_PROCS"
	EnvLogLevel   = "SWEEPS_LOG_LEVEL"
	EnvCatalog    = "SWEEPS_CATALOG"
)

// Config holds project settings. Precedence, lowest first: defaults,
// sweeps.yaml, SWEEPS_* environment, command-line flags.
type Config struct {
	// Executable runs every script: `<executable> <script> <run-folder>`.
	Executable string `yaml:"executable"`

	// Procs is the worker pool size.
	Procs int `yaml:"procs"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Catalog enables the history catalog under history/.
	Catalog bool `yaml:"catalog"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Executable: "python3",
		Procs:      runtime.NumCPU(),
		LogLevel:   "info",
		Catalog:    true,
	}
}

// Load reads <root>/sweeps.yaml over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(root string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(root, FileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("load config: %w", err)
	default:
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", FileName, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode strictly decodes a YAML document into cfg, keeping fields the
// document leaves out.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Executable = envString(EnvExecutable, cfg.Executable)
	cfg.LogLevel = envString(EnvLogLevel, cfg.LogLevel)

	procs, err := envInt(EnvProcs, cfg.Procs)
	if err != nil {
		return err
	}
	cfg.Procs = procs

	catalog, err := envBool(EnvCatalog, cfg.Catalog)
	if err != nil {
		return err
	}
	cfg.Catalog = catalog
	return nil
}

// Validate checks the settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Executable) == "" {
		return errors.New("config: executable must not be empty")
	}
	if c.Procs < 1 {
		return fmt.Errorf("config: procs must be at least 1, got %d", c.Procs)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level for LogLevel.
func (c Config) Level() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", s)
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	if v, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}

func envBool(key string, def bool) (bool, error) {
	if v, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", key, err)
		}
		return b, nil
	}
	return def, nil
}
