// Package channel provides an in-memory link device. Frames pushed
// with Inject come back out of the Run loop in order, which makes the
// device the standard test and benchmark harness for the stack.
package channel

import (
	"context"

	"firestige.xyz/tyto/internal/link"
	"firestige.xyz/tyto/internal/stack"
)

const defaultBuffer = 64

type frame struct {
	proto stack.ProtocolNumber
	data  []byte
}

// Options configures a channel device.
type Options struct {
	Buffer int `mapstructure:"buffer"`
}

// Device is an in-memory link device fed by Inject.
type Device struct {
	name       string
	mtu        int
	frames     chan frame
	dispatcher stack.NetworkDispatcher
}

func init() {
	link.Register("channel", func(name string, mtu int, opts map[string]any) (stack.Device, error) {
		var o Options
		if err := link.DecodeOptions(opts, &o); err != nil {
			return nil, err
		}
		if o.Buffer <= 0 {
			o.Buffer = defaultBuffer
		}
		return New(name, mtu, o.Buffer), nil
	})
}

// New creates a channel device buffering up to size frames.
func New(name string, mtu, size int) *Device {
	return &Device{
		name:   name,
		mtu:    mtu,
		frames: make(chan frame, size),
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

// Attach stores the dispatcher the Run loop delivers to.
func (d *Device) Attach(dispatcher stack.NetworkDispatcher) {
	d.dispatcher = dispatcher
}

// Inject queues one frame for delivery. The frame data is copied, so
// the caller may reuse its buffer. Returns false when the buffer is
// full and the frame was dropped.
func (d *Device) Inject(proto stack.ProtocolNumber, data []byte) bool {
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case d.frames <- frame{proto: proto, data: buf}:
		return true
	default:
		return false
	}
}

// Close ends the device: Run drains buffered frames and returns.
func (d *Device) Close() {
	close(d.frames)
}

// Run delivers injected frames until ctx is cancelled or the device is
// closed.
func (d *Device) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-d.frames:
			if !ok {
				return nil
			}
			d.dispatcher.DeliverInbound(f.proto, f.data, d)
		}
	}
}
