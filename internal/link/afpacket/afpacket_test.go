package afpacket

import (
	"testing"

	"github.com/google/gopacket/afpacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tyto/internal/link"
)

func TestFactoryRequiresInterface(t *testing.T) {
	_, err := link.New("afpacket", "cap0", 1500, nil)
	assert.Error(t, err)
}

func TestFactoryAppliesDefaults(t *testing.T) {
	dev, err := link.New("afpacket", "cap0", 1500, map[string]any{"interface": "eth0"})
	require.NoError(t, err)

	ad, ok := dev.(*Device)
	require.True(t, ok)
	assert.Equal(t, "eth0", ad.opts.Interface)
	assert.Equal(t, defaultSnapLen, ad.opts.SnapLen)
	assert.Equal(t, defaultBlockSize, ad.opts.BlockSize)
	assert.Equal(t, defaultNumBlocks, ad.opts.NumBlocks)
	assert.Empty(t, ad.opts.FanoutType)
}

func TestFactoryOverrides(t *testing.T) {
	dev, err := link.New("afpacket", "cap0", 1500, map[string]any{
		"interface":   "eth1",
		"bpf_filter":  "ip",
		"snap_len":    float64(2048), // JSON numbers arrive as float64
		"fanout_id":   7,
		"fanout_type": "hash",
	})
	require.NoError(t, err)

	ad, ok := dev.(*Device)
	require.True(t, ok)
	assert.Equal(t, "eth1", ad.opts.Interface)
	assert.Equal(t, "ip", ad.opts.BPFFilter)
	assert.Equal(t, 2048, ad.opts.SnapLen)
	assert.Equal(t, 7, ad.opts.FanoutID)
	assert.Equal(t, "hash", ad.opts.FanoutType)
}

func TestParseFanoutType(t *testing.T) {
	ft, err := parseFanoutType("hash")
	require.NoError(t, err)
	assert.Equal(t, afpacket.FanoutHash, ft)

	_, err = parseFanoutType("cpu")
	assert.Error(t, err)
}
