// Package activation installs nsm-mock for D-Bus service activation, so a
// client calling the well-known name starts the mock on demand.
package activation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Manager installs and removes one activation method.
type Manager interface {
	Install() (Result, error)
	Uninstall() (Result, error)
	Status() (Status, error)
	IsInstalled() bool
	Name() string
}

type Status struct {
	Installed bool
	Running   bool
	Path      string
	Status    string
}

type Result struct {
	Message string
	Path    string
	LogPath string
	Success bool
}

type Config struct {
	// BusName is the name the bus daemon activates.
	BusName string
	// Bus is "session" or "system".
	Bus      string
	ExecPath string
	// Args replaces the generated command line arguments when set.
	Args []string
	// ConfigFile and IntrospectionFile are passed to the activated process
	// as absolute paths, since the bus daemon starts it from /.
	ConfigFile        string
	IntrospectionFile string
	// Dir overrides the directory the activation file is written to.
	Dir string
	// Unit is the systemd unit name without suffix.
	Unit string
}

// ErrNotInstalled is returned when removing something that is not there.
var ErrNotInstalled = errors.New("activation not installed")

// ErrUnsupported is returned for methods the platform lacks.
var ErrUnsupported = fmt.Errorf("systemd activation not supported on %s", runtime.GOOS)

func (c *Config) setDefaults() {
	if c.Bus == "" {
		c.Bus = "session"
	}
	if c.Unit == "" {
		c.Unit = "nsm-mock"
	}
}

// resolve makes the file paths absolute and builds the default arguments.
func (c *Config) resolve() error {
	for _, p := range []*string{&c.ConfigFile, &c.IntrospectionFile} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", *p, err)
		}
		*p = abs
	}
	if len(c.Args) > 0 {
		return nil
	}
	if c.ConfigFile != "" {
		c.Args = append(c.Args, "--config", c.ConfigFile)
	}
	c.Args = append(c.Args, "serve")
	if c.IntrospectionFile != "" {
		c.Args = append(c.Args, "--introspection-file", c.IntrospectionFile)
	}
	return nil
}

// checkFiles fails when a file the activated process needs is missing.
func (c Config) checkFiles() error {
	for _, p := range []string{c.ConfigFile, c.IntrospectionFile} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("activated process needs %s: %w", p, err)
		}
	}
	return nil
}

// execLine joins the executable and its arguments, quoting where the bus
// daemon and systemd would otherwise split.
func (c Config) execLine() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, a := range append([]string{c.ExecPath}, c.Args...) {
		if a == "" || strings.ContainsAny(a, " \t\"'\\") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// NewManager returns a manager for method, which is "dbus" or "systemd".
func NewManager(method string, cfg Config) (Manager, error) {
	cfg.setDefaults()
	if cfg.BusName == "" {
		return nil, errors.New("bus name is required")
	}
	if cfg.ExecPath == "" {
		return nil, errors.New("executable path is required")
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	switch method {
	case "", "dbus":
		return newFileManager(cfg, "")
	case "systemd":
		return newSystemdManager(cfg)
	default:
		return nil, fmt.Errorf("unknown activation method %q", method)
	}
}

// serviceDir returns the directory the bus daemon scans for activation files.
func serviceDir(bus string) (string, error) {
	if bus == "system" {
		return "/usr/share/dbus-1/system-services", nil
	}
	data := os.Getenv("XDG_DATA_HOME")
	if data == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to find home directory: %w", err)
		}
		data = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(data, "dbus-1", "services"), nil
}
