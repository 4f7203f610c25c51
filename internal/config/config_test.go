package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigknoxy/nsmmock/internal/log"
	"github.com/bigknoxy/nsmmock/internal/nsm"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("expected SchemaVersion %d, got %d", CurrentSchemaVersion, cfg.SchemaVersion)
	}
	if cfg.Bus != BusSession {
		t.Errorf("expected bus %q, got %q", BusSession, cfg.Bus)
	}
	if cfg.BusName != nsm.BusName {
		t.Errorf("expected bus name %q, got %q", nsm.BusName, cfg.BusName)
	}
	if cfg.ObjectPath != nsm.ObjectPath {
		t.Errorf("expected object path %q, got %q", nsm.ObjectPath, cfg.ObjectPath)
	}
	if cfg.IntrospectionFile != nsm.DefaultIntrospectionFile {
		t.Errorf("expected introspection file %q, got %q", nsm.DefaultIntrospectionFile, cfg.IntrospectionFile)
	}
	if cfg.StrictRegistration {
		t.Error("strict registration should be off by default")
	}
	if cfg.CallTimeoutDuration() != 5*time.Second {
		t.Errorf("expected 5s call timeout, got %v", cfg.CallTimeoutDuration())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"system bus", func(c *Config) { c.Bus = BusSystem }, ""},
		{"bad bus", func(c *Config) { c.Bus = "starter" }, "bus must be"},
		{"empty bus name", func(c *Config) { c.BusName = "" }, "bus_name"},
		{"relative path", func(c *Config) { c.ObjectPath = "org/genivi" }, "object_path"},
		{"trailing slash", func(c *Config) { c.ObjectPath = "/org/genivi/" }, "object_path"},
		{"empty introspection", func(c *Config) { c.IntrospectionFile = "" }, "introspection_file"},
		{"negative timeout", func(c *Config) { c.CallTimeout = -1 }, "call_timeout"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BusName != nsm.BusName {
		t.Errorf("expected default bus name, got %q", cfg.BusName)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nsm.json")
	data := `{
  "bus": "System",
  "strict_registration": true,
  "call_timeout": 2,
  "log_level": "DEBUG",
  "introspection_file": "/usr/share/nsm/consumer.xml"
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bus != BusSystem {
		t.Errorf("expected bus %q, got %q", BusSystem, cfg.Bus)
	}
	if !cfg.StrictRegistration {
		t.Error("expected strict registration from file")
	}
	if cfg.CallTimeoutDuration() != 2*time.Second {
		t.Errorf("expected 2s timeout, got %v", cfg.CallTimeoutDuration())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected normalized log level, got %q", cfg.LogLevel)
	}
	if cfg.IntrospectionFile != "/usr/share/nsm/consumer.xml" {
		t.Errorf("unexpected introspection file %q", cfg.IntrospectionFile)
	}
	// Untouched keys keep their defaults.
	if cfg.BusName != nsm.BusName {
		t.Errorf("expected default bus name, got %q", cfg.BusName)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nsm.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nsm.json")
	if err := os.WriteFile(path, []byte(`{"log_level": "warn", "call_timeout": 9}`), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("NSM_BUS_NAME", "org.example.NodeStateManager")
	t.Setenv("NSM_OBJECT_PATH", "/org/example/NSM")
	t.Setenv("NSM_STRICT_REGISTRATION", "true")
	t.Setenv("NSM_LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BusName != "org.example.NodeStateManager" {
		t.Errorf("expected env bus name, got %q", cfg.BusName)
	}
	if cfg.ObjectPath != "/org/example/NSM" {
		t.Errorf("expected env object path, got %q", cfg.ObjectPath)
	}
	if !cfg.StrictRegistration {
		t.Error("expected env strict registration")
	}
	if cfg.LogLevel != "error" {
		t.Errorf("env should win over file, got %q", cfg.LogLevel)
	}
	if cfg.CallTimeout != 9 {
		t.Errorf("file value should survive when env is unset, got %d", cfg.CallTimeout)
	}
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("NSM_CALL_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric NSM_CALL_TIMEOUT")
	}
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "nsm.json")
	cfg := Defaults()
	cfg.StrictRegistration = true

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.StrictRegistration {
		t.Error("saved value did not round-trip")
	}
}

func TestLogConfig(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "debug"
	cfg.LogJSON = true

	lc, err := cfg.LogConfig("send2nsm")
	if err != nil {
		t.Fatalf("LogConfig failed: %v", err)
	}
	if lc.Level != log.DebugLevel {
		t.Errorf("expected debug level, got %v", lc.Level)
	}
	if !lc.JSON {
		t.Error("expected JSON logging")
	}
	if lc.Prefix != "send2nsm" {
		t.Errorf("expected prefix send2nsm, got %q", lc.Prefix)
	}
}

func TestConfigString(t *testing.T) {
	s := Defaults().String()
	if !strings.Contains(s, nsm.BusName) {
		t.Errorf("expected bus name in %q", s)
	}
}
