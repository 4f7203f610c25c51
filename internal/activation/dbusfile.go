package activation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fileManager writes a D-Bus .service activation file.
type fileManager struct {
	config  Config
	path    string
	systemd string
}

func newFileManager(cfg Config, systemdService string) (*fileManager, error) {
	dir := cfg.Dir
	if dir == "" {
		var err error
		if dir, err = serviceDir(cfg.Bus); err != nil {
			return nil, err
		}
	}
	return &fileManager{
		config:  cfg,
		path:    filepath.Join(dir, cfg.BusName+".service"),
		systemd: systemdService,
	}, nil
}

func (m *fileManager) Name() string {
	return "dbus"
}

func (m *fileManager) IsInstalled() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

func (m *fileManager) contents() string {
	var b strings.Builder
	b.WriteString("[D-BUS Service]\n")
	fmt.Fprintf(&b, "Name=%s\n", m.config.BusName)
	fmt.Fprintf(&b, "Exec=%s\n", m.config.execLine())
	if m.config.Bus == "system" {
		b.WriteString("User=root\n")
	}
	if m.systemd != "" {
		fmt.Fprintf(&b, "SystemdService=%s\n", m.systemd)
	}
	return b.String()
}

func (m *fileManager) Install() (Result, error) {
	if m.IsInstalled() {
		return Result{}, fmt.Errorf("activation file already installed at %s", m.path)
	}
	if err := m.config.checkFiles(); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create service directory: %w", err)
	}
	if err := os.WriteFile(m.path, []byte(m.contents()), 0o644); err != nil {
		return Result{}, fmt.Errorf("failed to write activation file: %w", err)
	}
	return Result{
		Success: true,
		Message: "Activation file installed",
		Path:    m.path,
	}, nil
}

func (m *fileManager) Uninstall() (Result, error) {
	if !m.IsInstalled() {
		return Result{}, fmt.Errorf("%w: %s", ErrNotInstalled, m.path)
	}
	if err := os.Remove(m.path); err != nil {
		return Result{}, fmt.Errorf("failed to remove activation file: %w", err)
	}
	return Result{
		Success: true,
		Message: "Activation file removed",
		Path:    m.path,
	}, nil
}

func (m *fileManager) Status() (Status, error) {
	status := Status{
		Installed: m.IsInstalled(),
		Path:      m.path,
		Status:    "not installed",
	}
	if status.Installed {
		status.Status = "activatable"
	}
	return status, nil
}
