// Package config loads CLI configuration from file, environment, and
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all configuration for the CLI client
type Config struct {
	// ConfigPath is the path to the configuration file
	ConfigPath string `mapstructure:"-"`

	// Verbose enables debug logging
	Verbose bool `mapstructure:"verbose"`

	// Format specifies the output format (text, json, yaml)
	Format string `mapstructure:"format"`

	// DirectoryPath is the path to the local SQLite account directory
	DirectoryPath string `mapstructure:"directory_path"`

	// KeystorePath is the path to the local SQLite credential store
	KeystorePath string `mapstructure:"keystore_path"`

	// CheckInterval is how often the session-timeout enforcer runs
	CheckInterval time.Duration `mapstructure:"check_interval"`

	// KeyConnectorTimeout bounds key-connector HTTP requests
	KeyConnectorTimeout time.Duration `mapstructure:"key_connector_timeout"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	appDir := filepath.Join(homeDir, ".vaultkeeper")

	return &Config{
		Verbose:             false,
		Format:              "text",
		DirectoryPath:       filepath.Join(appDir, "directory.db"),
		KeystorePath:        filepath.Join(appDir, "keystore.db"),
		CheckInterval:       time.Minute,
		KeyConnectorTimeout: 15 * time.Second,
	}
}

// Load loads configuration from file, environment variables, and CLI flags
// Priority (highest to lowest): CLI flags > Environment variables > Config file > Defaults
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
		}
		cfg.ConfigPath = configPath
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			appDir := filepath.Join(homeDir, ".vaultkeeper")
			v.AddConfigPath(appDir)
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			cfg.ConfigPath = filepath.Join(appDir, "config.yaml")
		}
	}

	v.SetEnvPrefix("VAULTKEEPER")
	v.AutomaticEnv()

	v.BindEnv("verbose")
	v.BindEnv("format")
	v.BindEnv("directory_path")
	v.BindEnv("keystore_path")
	v.BindEnv("check_interval")
	v.BindEnv("key_connector_timeout")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.Debug("No config file found, using defaults")
	} else {
		logrus.Debugf("Using config file: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// EnsureDirectories ensures that all necessary directories exist
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.DirectoryPath),
		filepath.Dir(c.KeystorePath),
		filepath.Dir(c.ConfigPath),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ValidateFormat validates the output format
func (c *Config) ValidateFormat() error {
	switch c.Format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("invalid format %q, must be one of: text, json, yaml", c.Format)
	}
}
