package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		getValue func(*Config) string
		want     string
	}{
		{"manifest url", func(c *Config) string { return c.Manifest.URL }, DefaultManifestURL},
		{"max size", func(c *Config) string { return c.Manifest.MaxSize }, "16MB"},
		{"extractor", func(c *Config) string { return c.Install.Extractor }, ExtractorCommand},
		{"host os", func(c *Config) string { return c.Install.HostOS }, ""},
		{"log format", func(c *Config) string { return c.Log.Format }, "text"},
		{"sdk root", func(c *Config) string { return c.SDKRoot() }, filepath.Join(DefaultDataDir(), "sdk")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.getValue(cfg)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if cfg.Manifest.RetryAttempts != 3 {
		t.Errorf("Manifest.RetryAttempts = %d, want 3", cfg.Manifest.RetryAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

// TestLoad tests loading a valid config file
func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, FileName)

	configContent := `
manifest:
  url: "https://mirror.example.com/naclsdk_manifest.json"
  max_size: "2MiB"
  retry_attempts: 5
install:
  user_data_dir: "/custom/data"
  sdk_root_dir: "/opt/nacl_sdk"
  host_os: "linux"
  extractor: "native"
store:
  db_path: "/custom/data/installs.db"
log:
  format: "json"
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Manifest.URL != "https://mirror.example.com/naclsdk_manifest.json" {
		t.Errorf("Manifest.URL = %q", cfg.Manifest.URL)
	}
	if cfg.Manifest.RetryAttempts != 5 {
		t.Errorf("Manifest.RetryAttempts = %d, want 5", cfg.Manifest.RetryAttempts)
	}
	if cfg.Install.UserDataDir != "/custom/data" {
		t.Errorf("Install.UserDataDir = %q, want %q", cfg.Install.UserDataDir, "/custom/data")
	}
	if cfg.Install.SDKRootDir != "/opt/nacl_sdk" {
		t.Errorf("Install.SDKRootDir = %q, want %q", cfg.Install.SDKRootDir, "/opt/nacl_sdk")
	}
	if cfg.Install.HostOS != "linux" {
		t.Errorf("Install.HostOS = %q, want linux", cfg.Install.HostOS)
	}
	if cfg.Install.Extractor != ExtractorNative {
		t.Errorf("Install.Extractor = %q, want native", cfg.Install.Extractor)
	}
	if cfg.DBPath() != "/custom/data/installs.db" {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}

	n, err := cfg.ManifestMaxBytes()
	if err != nil {
		t.Fatalf("ManifestMaxBytes() error = %v", err)
	}
	if n != 2*1024*1024 {
		t.Errorf("ManifestMaxBytes() = %d, want %d", n, 2*1024*1024)
	}
}

// TestLoadPartial keeps defaults for keys the file omits
func TestLoadPartial(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(configFile, []byte("install:\n  sdk_root_dir: /srv/sdk\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Manifest.URL != DefaultManifestURL {
		t.Errorf("Manifest.URL = %q, want default", cfg.Manifest.URL)
	}
	if cfg.Install.SDKRootDir != "/srv/sdk" {
		t.Errorf("Install.SDKRootDir = %q", cfg.Install.SDKRootDir)
	}
	if cfg.DBPath() != filepath.Join(cfg.Install.UserDataDir, "sdkupdate.db") {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
	if cfg.SDKRoot() != "/srv/sdk" {
		t.Errorf("SDKRoot() = %q", cfg.SDKRoot())
	}
}

// TestLoadInvalidYAML tests that Load returns an error for invalid YAML
func TestLoadInvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "invalid.yaml")

	invalidContent := `
manifest:
  url: "https://example.com"
  invalid: [unclosed bracket
`

	if err := os.WriteFile(configFile, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configFile)
	if err == nil {
		t.Fatal("Load() succeeded, want error for invalid YAML")
	}
	if err.Error() == "" {
		t.Error("error message is empty")
	}
}

// TestLoadInvalidValues tests values rejected by Validate
func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad size", "manifest:\n  max_size: lots\n", "manifest.max_size"},
		{"zero size", "manifest:\n  max_size: \"0\"\n", "manifest.max_size"},
		{"bad extractor", "install:\n  extractor: unzip\n", "install.extractor"},
		{"bad host", "install:\n  host_os: beos\n", "install.host_os"},
		{"bad log format", "log:\n  format: xml\n", "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := filepath.Join(t.TempDir(), FileName)
			if err := os.WriteFile(configFile, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(configFile)
			if err == nil {
				t.Fatalf("Load() succeeded, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

// TestLoadNonexistentFile tests that Load returns an error for missing files
func TestLoadNonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	if err == nil {
		t.Fatal("Load() succeeded, want error for nonexistent file")
	}
	if err.Error() == "" {
		t.Error("error message is empty")
	}
}

// TestManifestMaxBytesUnits checks decimal and binary suffixes
func TestManifestMaxBytesUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1048576", 1048576},
		{"16MB", 16 * 1000 * 1000},
		{"16MiB", 16 * 1024 * 1024},
		{"512 KiB", 512 * 1024},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg := &Config{Manifest: ManifestConfig{MaxSize: tt.in}}
			got, err := cfg.ManifestMaxBytes()
			if err != nil {
				t.Fatalf("ManifestMaxBytes() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ManifestMaxBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestFindConfigFileFound tests that FindConfigFile returns the config in the working directory
func TestFindConfigFileFound(t *testing.T) {
	originalWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	tempDir := t.TempDir()
	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(originalWd); err != nil {
			t.Fatalf("failed to restore working directory: %v", err)
		}
	})

	if err := os.WriteFile(filepath.Join(tempDir, FileName), []byte("log:\n  format: text\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	found, err := FindConfigFile()
	if err != nil {
		t.Fatalf("FindConfigFile() failed: %v", err)
	}
	if found != FileName {
		t.Errorf("FindConfigFile() = %q, want %s", found, FileName)
	}
}
