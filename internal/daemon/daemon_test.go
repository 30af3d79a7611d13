package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestDaemon_StartStopIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "tyto.pid")

	configPath := writeConfig(t, `
tyto:
  pid_file: `+pidPath+`
  log:
    level: debug
    format: text
  metrics:
    enabled: false
  devices:
    - name: ch0
      type: channel
  interfaces:
    - device: ch0
      unicast: 192.168.1.10
      netmask: 255.255.255.0
`)

	d, err := New(configPath, "")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := d.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if _, err := os.Stat(pidPath); err != nil {
		t.Errorf("PID file not written: %v", err)
	}

	got := d.proto.Stats()
	if got.Received != 0 {
		t.Errorf("fresh daemon received %d frames, expected 0", got.Received)
	}

	d.Stop()

	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Errorf("PID file not removed after Stop()")
	}
}

func TestDaemon_PidFileOverride(t *testing.T) {
	tmpDir := t.TempDir()
	override := filepath.Join(tmpDir, "override.pid")

	configPath := writeConfig(t, `
tyto:
  pid_file: `+filepath.Join(tmpDir, "config.pid")+`
  metrics:
    enabled: false
  devices:
    - name: ch0
      type: channel
`)

	d, err := New(configPath, override)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if d.pidFile != override {
		t.Errorf("pidFile = %q, expected override %q", d.pidFile, override)
	}
}

func TestDaemon_NewMissingConfig(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.yml"), "")
	if err == nil {
		t.Fatal("New() with missing config succeeded, expected error")
	}
}

func TestDaemon_StartUnknownDeviceType(t *testing.T) {
	configPath := writeConfig(t, `
tyto:
  pid_file: `+filepath.Join(t.TempDir(), "tyto.pid")+`
  metrics:
    enabled: false
  devices:
    - name: x0
      type: no-such-type
`)

	d, err := New(configPath, "")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := d.Start(); err == nil {
		d.Stop()
		t.Fatal("Start() with unknown device type succeeded, expected error")
	}
}

func TestDaemon_StartBadInterfaceAddress(t *testing.T) {
	configPath := writeConfig(t, `
tyto:
  pid_file: `+filepath.Join(t.TempDir(), "tyto.pid")+`
  metrics:
    enabled: false
  devices:
    - name: ch0
      type: channel
  interfaces:
    - device: ch0
      unicast: 256.1.1.1
      netmask: 255.255.255.0
`)

	d, err := New(configPath, "")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := d.Start(); err == nil {
		d.Stop()
		t.Fatal("Start() with out-of-range unicast succeeded, expected error")
	}
}
