// Package tun implements a link device reading raw IP frames from a
// Linux TUN interface.
package tun

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"firestige.xyz/tyto/internal/link"
	"firestige.xyz/tyto/internal/metrics"
	"firestige.xyz/tyto/internal/stack"
)

const clonePath = "/dev/net/tun"

// Options configures a tun device.
type Options struct {
	Interface string `mapstructure:"interface"` // optional, defaults to the device name
}

// Device reads from one TUN interface. Frames carry no link-layer
// header; the IP version nibble selects the protocol.
type Device struct {
	name       string
	mtu        int
	ifname     string
	dispatcher stack.NetworkDispatcher
}

func init() {
	link.Register("tun", func(name string, mtu int, opts map[string]any) (stack.Device, error) {
		var o Options
		if err := link.DecodeOptions(opts, &o); err != nil {
			return nil, err
		}
		if o.Interface == "" {
			o.Interface = name
		}
		return New(name, mtu, o.Interface), nil
	})
}

// New creates a TUN device bound to the named kernel interface.
func New(name string, mtu int, ifname string) *Device {
	return &Device{
		name:   name,
		mtu:    mtu,
		ifname: ifname,
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

// Attach stores the dispatcher the read loop delivers to.
func (d *Device) Attach(dispatcher stack.NetworkDispatcher) {
	d.dispatcher = dispatcher
}

// open clones the TUN interface. The descriptor is made nonblocking
// before it is handed to the runtime poller, so closing the file
// unblocks a pending Read.
func (d *Device) open() (*os.File, error) {
	fd, err := unix.Open(clonePath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("tun: open %s: %w", clonePath, err)
	}

	ifr, err := unix.NewIfreq(d.ifname)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tun: interface name %q: %w", d.ifname, err)
	}
	// IFF_NO_PI drops the 4-byte packet-info prefix: reads start at
	// the IP version nibble.
	ifr.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tun: attach to %s: %w", d.ifname, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tun: set nonblocking: %w", err)
	}
	return os.NewFile(uintptr(fd), clonePath), nil
}

// Run reads frames from the interface until ctx is cancelled.
func (d *Device) Run(ctx context.Context) error {
	f, err := d.open()
	if err != nil {
		return err
	}
	defer f.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			f.Close()
		case <-done:
		}
	}()

	slog.Info("tun device up", "device", d.name, "interface", d.ifname)

	buf := make([]byte, d.mtu)
	for {
		n, err := f.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("tun device down", "device", d.name)
				return nil
			}
			metrics.DeviceReadErrors.WithLabelValues(d.name).Inc()
			return fmt.Errorf("tun: read %s: %w", d.ifname, err)
		}

		frame := buf[:n]
		proto, ok := link.RawProtocol(frame)
		if !ok {
			slog.Debug("dropping non-IP frame", "device", d.name)
			continue
		}
		d.dispatcher.DeliverInbound(proto, frame, d)
	}
}
