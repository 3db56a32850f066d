// Package config manages RAMPART global configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	ConfigDirName  = ".rampart"
	ConfigFileName = "config.json"

	DefaultAPIVersion     = "7.0"
	DefaultTimeoutSeconds = 30
	DefaultRatePerSecond  = 10
	DefaultCacheTTL       = 300
)

// ServerConfig describes the management center the client talks to.
type ServerConfig struct {
	URL                string `json:"url"`                  // e.g. https://smc.example.net:8082
	APIVersion         string `json:"api_version"`          // REST API version segment
	CABundle           string `json:"ca_bundle,omitempty"`  // PEM file for a private server CA
	InsecureSkipVerify bool   `json:"insecure_skip_verify"` // dev/lab only
	TimeoutSeconds     int    `json:"timeout_seconds"`
}

// LoggingConfig carries the invocation's observability options. It affects
// diagnostics only, never result content.
type LoggingConfig struct {
	Level int    `json:"level"` // numeric verbosity: 10 debug, 20 info, 30 warn
	Path  string `json:"path"`  // empty = console on stderr, else JSON file
}

// GlobalConfig holds user-level configuration for the RAMPART CLI.
type GlobalConfig struct {
	HomeDir         string        `json:"home_dir"` // state directory (DBs, vault, snapshots)
	Server          ServerConfig  `json:"server"`
	Logging         LoggingConfig `json:"logging"`
	RatePerSecond   int           `json:"rate_per_second"`   // per-object-type client rate limit
	CacheTTLSeconds int           `json:"cache_ttl_seconds"` // response cache TTL
}

// DefaultGlobalConfig returns sensible defaults.
func DefaultGlobalConfig() GlobalConfig {
	home, _ := os.UserHomeDir()
	return GlobalConfig{
		HomeDir: filepath.Join(home, ConfigDirName),
		Server: ServerConfig{
			APIVersion:     DefaultAPIVersion,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Logging:         LoggingConfig{Level: 20},
		RatePerSecond:   DefaultRatePerSecond,
		CacheTTLSeconds: DefaultCacheTTL,
	}
}

// ConfigDir returns the global RAMPART config directory path.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ConfigDirName)
}

// LoadGlobalConfig loads the global config from ~/.rampart/config.json.
func LoadGlobalConfig() (GlobalConfig, error) {
	return LoadGlobalConfigFrom(filepath.Join(ConfigDir(), ConfigFileName))
}

// LoadGlobalConfigFrom loads the config from an explicit path. Missing file
// means defaults, not an error.
func LoadGlobalConfigFrom(path string) (GlobalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultGlobalConfig(), nil
		}
		return GlobalConfig{}, err
	}

	cfg := DefaultGlobalConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return GlobalConfig{}, err
	}
	return cfg, nil
}

// SaveGlobalConfig persists the config under its home directory, falling
// back to ~/.rampart when none is set.
func SaveGlobalConfig(cfg GlobalConfig) error {
	dir := cfg.HomeDir
	if dir == "" {
		dir = ConfigDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, ConfigFileName), data, 0600)
}
