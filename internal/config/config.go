// Package config loads the settings shared by nsm-mock and send2nsm.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/godbus/dbus/v5"

	"github.com/bigknoxy/nsmmock/internal/log"
	"github.com/bigknoxy/nsmmock/internal/nsm"
)

const (
	// BusSession selects the per-user session bus.
	BusSession = "session"
	// BusSystem selects the system bus.
	BusSystem = "system"

	// DefaultCallTimeout is the default bound on outbound calls, in seconds.
	DefaultCallTimeout = 5

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "NSM_"

	// CurrentSchemaVersion is the current config schema version.
	CurrentSchemaVersion = 1
)

// Config is the root configuration.
type Config struct {
	SchemaVersion int `json:"schema_version" env:"SCHEMA_VERSION"`

	// Bus is "session" or "system".
	Bus        string `json:"bus" env:"BUS"`
	BusName    string `json:"bus_name" env:"BUS_NAME"`
	ObjectPath string `json:"object_path" env:"OBJECT_PATH"`

	// IntrospectionFile is read once at startup and served by Introspect.
	IntrospectionFile string `json:"introspection_file" env:"INTROSPECTION_FILE"`

	// StrictRegistration keeps the previous shutdown client when a
	// registration fails validation.
	StrictRegistration bool `json:"strict_registration" env:"STRICT_REGISTRATION"`

	// CallTimeout bounds outbound calls, in seconds. Zero means no bound.
	CallTimeout int `json:"call_timeout" env:"CALL_TIMEOUT"`

	LogLevel string `json:"log_level" env:"LOG_LEVEL"`
	LogJSON  bool   `json:"log_json" env:"LOG_JSON"`
	LogFile  string `json:"log_file" env:"LOG_FILE"`
}

// Defaults returns a Config with all default values set.
func Defaults() *Config {
	return &Config{
		SchemaVersion:     CurrentSchemaVersion,
		Bus:               BusSession,
		BusName:           nsm.BusName,
		ObjectPath:        nsm.ObjectPath,
		IntrospectionFile: nsm.DefaultIntrospectionFile,
		CallTimeout:       DefaultCallTimeout,
		LogLevel:          "info",
	}
}

// CallTimeoutDuration returns CallTimeout as a time.Duration.
func (c *Config) CallTimeoutDuration() time.Duration {
	return time.Duration(c.CallTimeout) * time.Second
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Bus != BusSession && c.Bus != BusSystem {
		return fmt.Errorf("bus must be %q or %q, got %q", BusSession, BusSystem, c.Bus)
	}
	if c.BusName == "" {
		return errors.New("bus_name cannot be empty")
	}
	if !dbus.ObjectPath(c.ObjectPath).IsValid() {
		return fmt.Errorf("object_path %q is not a valid object path", c.ObjectPath)
	}
	if c.IntrospectionFile == "" {
		return errors.New("introspection_file cannot be empty")
	}
	if c.CallTimeout < 0 {
		return errors.New("call_timeout cannot be negative")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.New("log_level must be one of: debug, info, warn, error")
	}
	return nil
}

// LogConfig builds the logger configuration for the given prefix.
func (c *Config) LogConfig(prefix string) (log.Config, error) {
	lc := log.DefaultConfig()
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return lc, err
	}
	lc.Level = lvl
	lc.JSON = c.LogJSON
	lc.File = c.LogFile
	lc.Prefix = prefix
	return lc, nil
}

// Load builds the configuration. Priority: env vars > config file > defaults.
// An empty path skips the file layer; a path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.BusName = strings.TrimSpace(cfg.BusName)
	cfg.ObjectPath = strings.TrimSpace(cfg.ObjectPath)
	cfg.Bus = strings.ToLower(strings.TrimSpace(cfg.Bus))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides overlays NSM_* environment variables. Unset variables
// leave the current value alone.
func applyEnvOverrides(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes the configuration as indented JSON.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// String returns a string representation of the config (for debugging).
func (c *Config) String() string {
	return fmt.Sprintf("Config{Bus: %s, BusName: %s, ObjectPath: %s, Strict: %t, LogLevel: %s}",
		c.Bus,
		c.BusName,
		c.ObjectPath,
		c.StrictRegistration,
		c.LogLevel,
	)
}
