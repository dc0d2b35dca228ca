package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Verbose != false {
		t.Error("expected default verbose to be false")
	}

	if cfg.Format != "text" {
		t.Errorf("expected default format to be 'text', got '%s'", cfg.Format)
	}

	if cfg.DirectoryPath == "" {
		t.Error("expected DirectoryPath to be set")
	}

	if cfg.KeystorePath == "" {
		t.Error("expected KeystorePath to be set")
	}

	if cfg.CheckInterval != time.Minute {
		t.Errorf("expected default check interval of 1m, got %s", cfg.CheckInterval)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load("/tmp/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("expected no error when config file doesn't exist, got: %v", err)
	}

	// Should use defaults
	if cfg.Format != "text" {
		t.Errorf("expected default format, got '%s'", cfg.Format)
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
verbose: true
format: "json"
directory_path: "/tmp/vk/directory.db"
check_interval: "30s"
`

	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to create test config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !cfg.Verbose {
		t.Error("expected verbose to be true")
	}
	if cfg.Format != "json" {
		t.Errorf("expected format 'json', got '%s'", cfg.Format)
	}
	if cfg.DirectoryPath != "/tmp/vk/directory.db" {
		t.Errorf("unexpected directory path '%s'", cfg.DirectoryPath)
	}
	if cfg.CheckInterval != 30*time.Second {
		t.Errorf("expected check interval of 30s, got %s", cfg.CheckInterval)
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("VAULTKEEPER_FORMAT", "yaml")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Format != "yaml" {
		t.Errorf("expected format 'yaml' from environment, got '%s'", cfg.Format)
	}
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"text", false},
		{"json", false},
		{"yaml", false},
		{"xml", true},
		{"", true},
	}

	for _, tt := range tests {
		cfg := &Config{Format: tt.format}
		err := cfg.ValidateFormat()
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := &Config{
		ConfigPath:    filepath.Join(tmpDir, "cfg", "config.yaml"),
		DirectoryPath: filepath.Join(tmpDir, "data", "directory.db"),
		KeystorePath:  filepath.Join(tmpDir, "data", "keystore.db"),
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{filepath.Join(tmpDir, "cfg"), filepath.Join(tmpDir, "data")} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("expected directory %s to exist: %v", dir, err)
		}
	}
}
