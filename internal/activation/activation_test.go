package activation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testConfig(dir string) Config {
	return Config{
		BusName:  "org.genivi.NodeStateManager.Consumer_org.genivi.NodeStateManager",
		ExecPath: "/usr/local/bin/nsm-mock",
		Dir:      dir,
	}
}

func TestNewManagerValidation(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		mutate  func(*Config)
		wantErr string
	}{
		{"no bus name", "dbus", func(c *Config) { c.BusName = "" }, "bus name"},
		{"no exec", "dbus", func(c *Config) { c.ExecPath = "" }, "executable"},
		{"unknown method", "launchd", func(c *Config) {}, "unknown activation method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t.TempDir())
			tt.mutate(&cfg)
			_, err := NewManager(tt.method, cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFileManagerLifecycle(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager("dbus", testConfig(dir))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if m.Name() != "dbus" {
		t.Errorf("expected name dbus, got %q", m.Name())
	}
	if m.IsInstalled() {
		t.Fatal("should not be installed yet")
	}

	res, err := m.Install()
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	want := filepath.Join(dir, "org.genivi.NodeStateManager.Consumer_org.genivi.NodeStateManager.service")
	if res.Path != want {
		t.Errorf("expected path %s, got %s", want, res.Path)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("failed to read activation file: %v", err)
	}
	expected := "[D-BUS Service]\n" +
		"Name=org.genivi.NodeStateManager.Consumer_org.genivi.NodeStateManager\n" +
		"Exec=/usr/local/bin/nsm-mock serve\n"
	if string(data) != expected {
		t.Errorf("activation file:\n%s\nwant:\n%s", data, expected)
	}

	if _, err := m.Install(); err == nil {
		t.Error("second Install should fail")
	}

	st, err := m.Status()
	if err != nil || !st.Installed || st.Status != "activatable" {
		t.Errorf("Status = %+v, %v", st, err)
	}

	if _, err := m.Uninstall(); err != nil {
		t.Fatalf("Uninstall failed: %v", err)
	}
	if m.IsInstalled() {
		t.Error("still installed after Uninstall")
	}
	if _, err := m.Uninstall(); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("expected ErrNotInstalled, got %v", err)
	}
}

func TestFileManagerSystemBus(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Bus = "system"
	cfg.Args = []string{"serve", "--strict"}
	cfg.setDefaults()

	m, err := newFileManager(cfg, "")
	if err != nil {
		t.Fatalf("newFileManager failed: %v", err)
	}
	got := m.contents()
	if !strings.Contains(got, "Exec=/usr/local/bin/nsm-mock serve --strict\n") {
		t.Errorf("missing Exec line in %q", got)
	}
	if !strings.Contains(got, "User=root\n") {
		t.Errorf("system bus file needs User=, got %q", got)
	}
}

func TestFileManagerAbsolutePaths(t *testing.T) {
	work := t.TempDir()
	for _, name := range []string{"nsm.json", "nsm.xml"} {
		if err := os.WriteFile(filepath.Join(work, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	chdir(t, work)

	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.ConfigFile = "nsm.json"
	cfg.IntrospectionFile = "./nsm.xml"
	m, err := NewManager("dbus", cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	res, err := m.Install()
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("failed to read activation file: %v", err)
	}
	want := "Exec=/usr/local/bin/nsm-mock --config " + filepath.Join(work, "nsm.json") +
		" serve --introspection-file " + filepath.Join(work, "nsm.xml") + "\n"
	if !strings.Contains(string(data), want) {
		t.Errorf("activation file missing %q:\n%s", want, data)
	}
}

func TestFileManagerMissingIntrospection(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.IntrospectionFile = filepath.Join(t.TempDir(), "absent.xml")
	m, err := NewManager("dbus", cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if _, err := m.Install(); err == nil || !strings.Contains(err.Error(), "absent.xml") {
		t.Errorf("expected missing file error, got %v", err)
	}
	if m.IsInstalled() {
		t.Error("activation file written despite missing introspection file")
	}
}

func TestExecLineQuoting(t *testing.T) {
	cfg := Config{
		ExecPath: "/opt/nsm mock/nsm-mock",
		Args:     []string{"serve", "--introspection-file", "/srv/a b.xml"},
	}
	want := `"/opt/nsm mock/nsm-mock" serve --introspection-file "/srv/a b.xml"`
	if got := cfg.execLine(); got != want {
		t.Errorf("execLine = %s, want %s", got, want)
	}
}

func TestServiceDirSession(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	dir, err := serviceDir("session")
	if err != nil {
		t.Fatalf("serviceDir failed: %v", err)
	}
	if dir != "/tmp/xdg/dbus-1/services" {
		t.Errorf("unexpected dir %s", dir)
	}
}

// chdir changes the working directory to dir and restores it when the test
// finishes (equivalent to testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}
