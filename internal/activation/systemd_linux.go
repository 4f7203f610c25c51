//go:build linux

package activation

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// systemdManager installs a systemd user unit of Type=dbus and an activation
// file that hands activation over to it.
type systemdManager struct {
	config   Config
	unitPath string
	file     *fileManager
	run      func(name string, args ...string) ([]byte, error)
}

func newSystemdManager(cfg Config) (Manager, error) {
	return newSystemd(cfg)
}

func newSystemd(cfg Config) (*systemdManager, error) {
	if cfg.Bus == "system" {
		return nil, fmt.Errorf("systemd user units cannot own names on the system bus")
	}
	unitDir, err := userUnitDir()
	if err != nil {
		return nil, err
	}
	file, err := newFileManager(cfg, cfg.Unit+".service")
	if err != nil {
		return nil, err
	}
	return &systemdManager{
		config:   cfg,
		unitPath: filepath.Join(unitDir, cfg.Unit+".service"),
		file:     file,
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).CombinedOutput()
		},
	}, nil
}

func userUnitDir() (string, error) {
	cfgHome := os.Getenv("XDG_CONFIG_HOME")
	if cfgHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to find home directory: %w", err)
		}
		cfgHome = filepath.Join(home, ".config")
	}
	return filepath.Join(cfgHome, "systemd", "user"), nil
}

func (s *systemdManager) systemctl(args ...string) error {
	out, err := s.run("systemctl", append([]string{"--user"}, args...)...)
	if err != nil {
		return fmt.Errorf("systemctl --user %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (s *systemdManager) Name() string {
	return "systemd"
}

func (s *systemdManager) IsInstalled() bool {
	_, err := os.Stat(s.unitPath)
	return err == nil
}

func (s *systemdManager) unit() string {
	return fmt.Sprintf(`[Unit]
Description=Node State Manager test double

[Service]
Type=dbus
BusName=%s
ExecStart=%s
`, s.config.BusName, s.config.execLine())
}

func (s *systemdManager) Install() (Result, error) {
	if s.IsInstalled() {
		return Result{}, fmt.Errorf("unit already installed at %s", s.unitPath)
	}
	if err := s.config.checkFiles(); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(filepath.Dir(s.unitPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create unit directory: %w", err)
	}
	if err := os.WriteFile(s.unitPath, []byte(s.unit()), 0o644); err != nil {
		return Result{}, fmt.Errorf("failed to write unit: %w", err)
	}
	if _, err := s.file.Install(); err != nil {
		os.Remove(s.unitPath)
		return Result{}, err
	}
	if err := s.systemctl("daemon-reload"); err != nil {
		s.file.Uninstall()
		os.Remove(s.unitPath)
		return Result{}, err
	}

	return Result{
		Success: true,
		Message: "Unit and activation file installed",
		Path:    s.unitPath,
		LogPath: "journalctl --user -u " + s.config.Unit + " -f",
	}, nil
}

func (s *systemdManager) Uninstall() (Result, error) {
	if !s.IsInstalled() {
		return Result{}, fmt.Errorf("%w: %s", ErrNotInstalled, s.unitPath)
	}

	if s.isRunning() {
		if err := s.systemctl("stop", s.config.Unit); err != nil {
			return Result{}, err
		}
	}
	if s.file.IsInstalled() {
		if _, err := s.file.Uninstall(); err != nil {
			return Result{}, err
		}
	}
	if err := os.Remove(s.unitPath); err != nil {
		return Result{}, fmt.Errorf("failed to remove unit: %w", err)
	}
	if err := s.systemctl("daemon-reload"); err != nil {
		return Result{}, err
	}

	return Result{
		Success: true,
		Message: "Unit and activation file removed",
		Path:    s.unitPath,
	}, nil
}

func (s *systemdManager) Status() (Status, error) {
	status := Status{
		Installed: s.IsInstalled(),
		Path:      s.unitPath,
		Status:    "not installed",
	}
	if !status.Installed {
		return status, nil
	}

	status.Running = s.isRunning()
	status.Status = "inactive"
	if status.Running {
		status.Status = "active"
	}
	return status, nil
}

func (s *systemdManager) isRunning() bool {
	out, err := s.run("systemctl", "--user", "is-active", s.config.Unit)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "active"
}
