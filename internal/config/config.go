// Package config loads and validates the application configuration from a
// YAML file. Values cover provider credentials, the callback deadline, and
// where tokens and logs are written.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCallbackTimeoutSeconds bounds how long a login attempt waits for the
// provider redirect before it is cancelled.
const DefaultCallbackTimeoutSeconds = 300

// ProviderCredentials holds the OAuth client registration for one provider.
type ProviderCredentials struct {
	// ClientID is the OAuth2 client identifier issued by the provider.
	ClientID string `yaml:"client-id" json:"client-id"`

	// ClientSecret is the OAuth2 client secret; empty for public clients.
	ClientSecret string `yaml:"client-secret" json:"client-secret"`
}

// Config is the application configuration structure.
// It contains all the settings for the login coordinator and token persistence.
type Config struct {
	// AuthDir is the directory where exchanged tokens are handed off for storage.
	AuthDir string `yaml:"auth-dir" json:"auth-dir"`

	// CallbackTimeoutSeconds overrides the redirect deadline when > 0.
	CallbackTimeoutSeconds int `yaml:"callback-timeout-seconds,omitempty" json:"callback-timeout-seconds,omitempty"`

	// LoggingToFile mirrors log output into a rotating file under LogDir.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is the directory for rotated log files; defaults to <auth-dir>/logs.
	LogDir string `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`

	// LogLevel sets the logrus level (debug, info, warn, error).
	LogLevel string `yaml:"log-level,omitempty" json:"log-level,omitempty"`

	// Google holds the Google OAuth client registration.
	Google ProviderCredentials `yaml:"google" json:"google"`

	// Apple holds the Apple Sign In client registration.
	Apple ProviderCredentials `yaml:"apple" json:"apple"`
}

// LoadConfig reads the configuration file from the given path, expands the
// home directory shorthand in paths, and applies defaults.
//
// Parameters:
//   - configFile: The path to the YAML configuration file
//
// Returns:
//   - *Config: The loaded configuration
//   - error: An error if reading or parsing fails
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadConfigOptional behaves like LoadConfig but returns a default
// configuration when optional is true and the file does not exist.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			def := &Config{}
			def.applyDefaults()
			return def, nil
		}
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.AuthDir) == "" {
		c.AuthDir = "~/.walletauth"
	}
	c.AuthDir = expandHome(c.AuthDir)
	if c.CallbackTimeoutSeconds <= 0 {
		c.CallbackTimeoutSeconds = DefaultCallbackTimeoutSeconds
	}
	if strings.TrimSpace(c.LogDir) == "" {
		c.LogDir = filepath.Join(c.AuthDir, "logs")
	} else {
		c.LogDir = expandHome(c.LogDir)
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
