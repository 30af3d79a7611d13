package tun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tyto/internal/link"
)

func TestFactoryDefaultsInterfaceToName(t *testing.T) {
	dev, err := link.New("tun", "tun0", 1500, nil)
	require.NoError(t, err)

	td, ok := dev.(*Device)
	require.True(t, ok)
	assert.Equal(t, "tun0", td.ifname)
	assert.Equal(t, 1500, td.mtu)
}

func TestFactoryInterfaceOverride(t *testing.T) {
	dev, err := link.New("tun", "uplink", 1400, map[string]any{"interface": "tun7"})
	require.NoError(t, err)

	td, ok := dev.(*Device)
	require.True(t, ok)
	assert.Equal(t, "uplink", td.Name())
	assert.Equal(t, "tun7", td.ifname)
}
