// Package sniffer wraps a link device and records every frame it
// delivers to a pcap capture file before forwarding it up the stack.
// The daemon applies it to any device configured with a capture_file.
package sniffer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/tyto/internal/stack"
)

const snapLen = 65535

// Device interposes on the dispatcher path of an inner device. The
// stack sees the sniffer as the delivering device.
type Device struct {
	inner      stack.Device
	file       *os.File
	writer     *pcapgo.Writer
	dispatcher stack.NetworkDispatcher
	recording  bool
}

// New wraps inner with a recorder writing to the capture file at path.
func New(inner stack.Device, path string) (*Device, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sniffer: create capture file: %w", err)
	}

	w := pcapgo.NewWriter(f)
	// Devices deliver network-layer frames, so recordings are raw IP.
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeRaw); err != nil {
		f.Close()
		return nil, fmt.Errorf("sniffer: write capture header: %w", err)
	}

	return &Device{
		inner:     inner,
		file:      f,
		writer:    w,
		recording: true,
	}, nil
}

// Name returns the inner device's name.
func (d *Device) Name() string {
	return d.inner.Name()
}

// MTU returns the inner device's MTU.
func (d *Device) MTU() int {
	return d.inner.MTU()
}

// Attach splices the sniffer between the inner device and the real
// dispatcher.
func (d *Device) Attach(dispatcher stack.NetworkDispatcher) {
	d.dispatcher = dispatcher
	d.inner.Attach(d)
}

// DeliverInbound records one frame and forwards it.
func (d *Device) DeliverInbound(proto stack.ProtocolNumber, frame []byte, _ stack.Device) {
	if d.recording {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Now(),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := d.writer.WritePacket(ci, frame); err != nil {
			// Disable recording, keep forwarding.
			slog.Warn("capture write failed, recording disabled",
				"device", d.Name(),
				"error", err)
			d.recording = false
		}
	}
	d.dispatcher.DeliverInbound(proto, frame, d)
}

// Run drives the inner device and closes the capture file once its
// loop returns.
func (d *Device) Run(ctx context.Context) error {
	err := d.inner.Run(ctx)
	if cerr := d.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("sniffer: close capture file: %w", cerr)
	}
	return err
}
