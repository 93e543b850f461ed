package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apparentlymart/go-userdirs/userdirs"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// FileName is the config file name searched for in every location.
const FileName = "sdkupdate.yaml"

// DefaultManifestURL is the catalogue fetched when nothing else is configured.
const DefaultManifestURL = "https://commondatastorage.googleapis.com/nativeclient-mirror/nacl/nacl_sdk/naclsdk_manifest.json"

// Extractor names accepted in install.extractor.
const (
	ExtractorCommand = "command"
	ExtractorNative  = "native"
)

var dirs = userdirs.ForApp("SDK Update", "BadgerOps", "io.github.badgerops.sdkupdate")

// Config is the top-level configuration
type Config struct {
	Manifest ManifestConfig `yaml:"manifest"`
	Install  InstallConfig  `yaml:"install"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
}

// ManifestConfig controls where the catalogue comes from
type ManifestConfig struct {
	URL           string `yaml:"url"`
	MaxSize       string `yaml:"max_size"`
	RetryAttempts int    `yaml:"retry_attempts"`
}

// InstallConfig controls where and how bundles are installed
type InstallConfig struct {
	UserDataDir string `yaml:"user_data_dir"`
	SDKRootDir  string `yaml:"sdk_root_dir"`
	HostOS      string `yaml:"host_os"`
	Extractor   string `yaml:"extractor"`
}

// StoreConfig holds install database settings
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Format string `yaml:"format"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Manifest: ManifestConfig{
			URL:           DefaultManifestURL,
			MaxSize:       "16MB",
			RetryAttempts: 3,
		},
		Install: InstallConfig{
			UserDataDir: dataDir,
			Extractor:   ExtractorCommand,
		},
		Log: LogConfig{
			Format: "text",
		},
	}
}

// DefaultDataDir returns the per-user data directory for the platform,
// falling back to the working directory when none is known.
func DefaultDataDir() string {
	if len(dirs.DataDirs) > 0 {
		return dirs.DataDirs[0]
	}
	return "."
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that cannot be caught by YAML typing
func (c *Config) Validate() error {
	if _, err := c.ManifestMaxBytes(); err != nil {
		return fmt.Errorf("manifest.max_size: %w", err)
	}
	switch c.Install.Extractor {
	case "", ExtractorCommand, ExtractorNative:
	default:
		return fmt.Errorf("install.extractor: unknown extractor %q (want %q or %q)", c.Install.Extractor, ExtractorCommand, ExtractorNative)
	}
	switch c.Install.HostOS {
	case "", "mac", "win", "linux":
	default:
		return fmt.Errorf("install.host_os: unknown host %q", c.Install.HostOS)
	}
	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// ManifestMaxBytes parses manifest.max_size ("16MB", "512KiB", "1048576").
func (c *Config) ManifestMaxBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.Manifest.MaxSize)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return int64(n), nil
}

// DBPath returns the install database path, defaulting to a file in the
// user data directory.
func (c *Config) DBPath() string {
	if c.Store.DBPath != "" {
		return c.Store.DBPath
	}
	return filepath.Join(c.Install.UserDataDir, "sdkupdate.db")
}

// SDKRoot returns the install root, defaulting to an "sdk" directory in
// the user data directory.
func (c *Config) SDKRoot() string {
	if c.Install.SDKRootDir != "" {
		return c.Install.SDKRootDir
	}
	return filepath.Join(c.Install.UserDataDir, "sdk")
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		FileName,
		filepath.Join("/etc", "sdkupdate", FileName),
	}
	searchPaths = append(searchPaths, dirs.FindConfigFiles(FileName)...)

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}
