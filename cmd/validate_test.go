package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunValidate_Success(t *testing.T) {
	path := writeConfig(t, `
tyto:
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

	var buf bytes.Buffer
	err := runValidate(path, &buf)

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "VALID: 1 device(s), 1 interface(s)")
	assert.Contains(t, buf.String(), "broadcast 192.168.1.255")
}

func TestRunValidate_BadAddress(t *testing.T) {
	path := writeConfig(t, `
tyto:
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

	var buf bytes.Buffer
	err := runValidate(path, &buf)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "interface on ch0")
}

func TestRunValidate_UnknownDeviceType(t *testing.T) {
	path := writeConfig(t, `
tyto:
  metrics:
    enabled: false
  devices:
    - name: x0
      type: carrier-pigeon
`)

	var buf bytes.Buffer
	err := runValidate(path, &buf)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestRunValidate_MissingFile(t *testing.T) {
	var buf bytes.Buffer
	err := runValidate(filepath.Join(t.TempDir(), "nope.yml"), &buf)
	assert.Error(t, err)
}
