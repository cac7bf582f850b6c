// Package config loads and persists application settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/Grouvya/flatpak-manifest-generator/internal/fsutil"
)

const SchemaVersion = 1

type Config struct {
	Version  int            `toml:"version"`
	Storage  StorageConfig  `toml:"storage"`
	Flatpak  FlatpakConfig  `toml:"flatpak"`
	Logging  LoggingConfig  `toml:"logging"`
	Defaults DefaultsConfig `toml:"defaults"`
}

type StorageConfig struct {
	Root string `toml:"root"`
}

type FlatpakConfig struct {
	Remote   string `toml:"remote"`
	Terminal string `toml:"terminal"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultsConfig seeds new projects with common field values.
type DefaultsConfig struct {
	Runtime        string `toml:"runtime"`
	RuntimeVersion string `toml:"runtime_version"`
	SDK            string `toml:"sdk"`
	SDKVersion     string `toml:"sdk_version"`
	BuildSystem    string `toml:"build_system"`
}

// DefaultConfig returns a fully-populated v1 config document.
func DefaultConfig() Config {
	return Config{
		Version: SchemaVersion,
		Storage: StorageConfig{
			Root: "~/.flatpak-generator",
		},
		Flatpak: FlatpakConfig{
			Remote: "flathub",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Defaults: DefaultsConfig{
			Runtime:        "org.gnome.Platform",
			RuntimeVersion: "47",
			SDK:            "org.gnome.Sdk",
			SDKVersion:     "47",
			BuildSystem:    "simple",
		},
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "flatpak-generator", "config.toml")
}

func Normalize(cfg Config) Config {
	if cfg.Version == 0 {
		cfg.Version = SchemaVersion
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "~/.flatpak-generator"
	}
	if cfg.Flatpak.Remote == "" {
		cfg.Flatpak.Remote = "flathub"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Defaults.BuildSystem == "" {
		cfg.Defaults.BuildSystem = "simple"
	}
	return cfg
}

func Validate(cfg Config) error {
	if cfg.Version != SchemaVersion {
		return fmt.Errorf("CFG_VERSION: unsupported config version %d", cfg.Version)
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("CFG_LOG_LEVEL: unknown level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("CFG_LOG_FORMAT: unknown format %q", cfg.Logging.Format)
	}
	switch cfg.Defaults.BuildSystem {
	case "simple", "meson", "cmake", "cmake-ninja", "autotools", "qmake":
	default:
		return fmt.Errorf("CFG_BUILD_SYSTEM: unknown build system %q", cfg.Defaults.BuildSystem)
	}
	if cfg.Storage.Root == "" {
		return errors.New("CFG_STORAGE_ROOT: storage root is empty")
	}
	return nil
}

func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("CFG_READ: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("CFG_PARSE: %w", err)
	}
	cfg = Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	raw, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("CFG_ENCODE: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("CFG_MKDIR: %w", err)
	}
	if err := fsutil.AtomicWrite(path, raw, 0o644); err != nil {
		return fmt.Errorf("CFG_WRITE: %w", err)
	}
	return nil
}

// Ensure loads the config at path, writing defaults first if it does
// not exist yet.
func Ensure(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	return Load(path)
}

// ResolveRoot expands a leading ~ in the storage root.
func ResolveRoot(root string) (string, error) {
	if root == "~" || len(root) >= 2 && root[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("CFG_HOME: %w", err)
		}
		return filepath.Join(home, root[1:]), nil
	}
	return root, nil
}
