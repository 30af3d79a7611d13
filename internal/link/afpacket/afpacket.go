// Package afpacket implements a link device capturing frames from a
// live network interface with AF_PACKET TPACKET_V3.
package afpacket

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/tyto/internal/link"
	"firestige.xyz/tyto/internal/metrics"
	"firestige.xyz/tyto/internal/stack"
)

const (
	defaultSnapLen   = 65535
	defaultBlockSize = 4 * 1024 * 1024 // 4MB
	defaultNumBlocks = 128

	pollTimeout = 100 * time.Millisecond
)

// Options configures an afpacket device.
type Options struct {
	Interface  string `mapstructure:"interface"`   // required
	BPFFilter  string `mapstructure:"bpf_filter"`  // optional
	SnapLen    int    `mapstructure:"snap_len"`    // optional, default 65535
	BlockSize  int    `mapstructure:"block_size"`  // optional, default 4MB
	NumBlocks  int    `mapstructure:"num_blocks"`  // optional, default 128
	FanoutID   int    `mapstructure:"fanout_id"`   // optional
	FanoutType string `mapstructure:"fanout_type"` // optional: hash
}

// Device captures frames from one interface via the TPACKET_V3 mmap
// ring.
type Device struct {
	name       string
	mtu        int
	opts       Options
	dispatcher stack.NetworkDispatcher

	received uint64
}

func init() {
	link.Register("afpacket", func(name string, mtu int, opts map[string]any) (stack.Device, error) {
		var o Options
		if err := link.DecodeOptions(opts, &o); err != nil {
			return nil, err
		}
		if o.Interface == "" {
			return nil, fmt.Errorf("afpacket: interface is required")
		}
		if o.SnapLen <= 0 {
			o.SnapLen = defaultSnapLen
		}
		if o.BlockSize <= 0 {
			o.BlockSize = defaultBlockSize
		}
		if o.NumBlocks <= 0 {
			o.NumBlocks = defaultNumBlocks
		}
		return New(name, mtu, o), nil
	})
}

// New creates an afpacket device. Options must already carry resolved
// defaults.
func New(name string, mtu int, opts Options) *Device {
	return &Device{
		name: name,
		mtu:  mtu,
		opts: opts,
	}
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// MTU returns the configured MTU.
func (d *Device) MTU() int {
	return d.mtu
}

// Attach stores the dispatcher the capture loop delivers to.
func (d *Device) Attach(dispatcher stack.NetworkDispatcher) {
	d.dispatcher = dispatcher
}

// Run captures frames until ctx is cancelled.
func (d *Device) Run(ctx context.Context) error {
	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(d.opts.Interface),
		afpacket.OptFrameSize(d.opts.SnapLen),
		afpacket.OptBlockSize(d.opts.BlockSize),
		afpacket.OptNumBlocks(d.opts.NumBlocks),
		afpacket.OptPollTimeout(pollTimeout),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion3),
	)
	if err != nil {
		return fmt.Errorf("afpacket: create TPacket handle: %w", err)
	}
	// The handle is owned by this loop alone. Closing it from another
	// goroutine while ZeroCopyReadPacketData holds the mmap ring would
	// be a use-after-free; shutdown rides on the poll timeout and the
	// ctx checks below instead.
	defer handle.Close()

	if d.opts.FanoutType != "" {
		fanout, err := parseFanoutType(d.opts.FanoutType)
		if err != nil {
			return err
		}
		if err := handle.SetFanout(fanout, uint16(d.opts.FanoutID)); err != nil {
			return fmt.Errorf("afpacket: set fanout: %w", err)
		}
		slog.Info("afpacket fanout configured",
			"device", d.name,
			"fanout_id", d.opts.FanoutID,
			"fanout_type", d.opts.FanoutType)
	}

	if d.opts.BPFFilter != "" {
		if err := applyFilter(handle, d.opts.SnapLen, d.opts.BPFFilter); err != nil {
			return err
		}
		slog.Debug("bpf filter applied", "device", d.name, "filter", d.opts.BPFFilter)
	}

	if err := handle.InitSocketStats(); err != nil {
		slog.Warn("failed to init socket stats", "device", d.name, "error", err)
	}

	slog.Info("afpacket capture started", "device", d.name, "interface", d.opts.Interface)

	for {
		select {
		case <-ctx.Done():
			d.logCaptureStopped(handle)
			return nil
		default:
		}

		data, _, err := handle.ZeroCopyReadPacketData()
		if err != nil {
			if ctx.Err() != nil {
				d.logCaptureStopped(handle)
				return nil
			}
			// Poll timeouts and EINTR land here; keep reading.
			if err != afpacket.ErrTimeout {
				metrics.DeviceReadErrors.WithLabelValues(d.name).Inc()
			}
			continue
		}
		d.received++

		proto, payload, err := link.DecodeEthernet(data)
		if err != nil {
			slog.Debug("dropping truncated frame", "device", d.name)
			continue
		}

		// data is only valid until the next ZeroCopyReadPacketData
		// call. Delivery is synchronous, so the stack is done with the
		// frame before the ring slot is reused.
		d.dispatcher.DeliverInbound(proto, payload, d)
	}
}

func (d *Device) logCaptureStopped(handle *afpacket.TPacket) {
	var drops uint64
	if _, v3, err := handle.SocketStats(); err == nil {
		drops = uint64(v3.Drops())
	}
	slog.Info("afpacket capture stopped",
		"device", d.name,
		"interface", d.opts.Interface,
		"received", d.received,
		"kernel_drops", drops)
}

// applyFilter compiles a pcap filter expression and installs it on the
// handle. pcap instructions and x/net/bpf raw instructions share the
// same layout, so the conversion is field-for-field.
func applyFilter(handle *afpacket.TPacket, snapLen int, filter string) error {
	pcapInsns, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, filter)
	if err != nil {
		return fmt.Errorf("afpacket: compile bpf filter %q: %w", filter, err)
	}

	rawInsns := make([]bpf.RawInstruction, len(pcapInsns))
	for i, insn := range pcapInsns {
		rawInsns[i] = bpf.RawInstruction{
			Op: insn.Code,
			Jt: insn.Jt,
			Jf: insn.Jf,
			K:  insn.K,
		}
	}

	if err := handle.SetBPF(rawInsns); err != nil {
		return fmt.Errorf("afpacket: set bpf: %w", err)
	}
	return nil
}

// parseFanoutType maps the configured fanout mode. gopacket v1.1.19
// only exports FanoutHash; the kernel's cpu and lb modes would need
// raw PACKET_FANOUT socket options.
func parseFanoutType(ft string) (afpacket.FanoutType, error) {
	switch ft {
	case "hash":
		return afpacket.FanoutHash, nil
	default:
		return 0, fmt.Errorf("afpacket: unknown fanout type %q", ft)
	}
}
