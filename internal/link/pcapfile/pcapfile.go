// Package pcapfile implements a link device that replays a capture
// file through the stack. Ethernet captures are decapsulated; raw IP
// captures are delivered as-is. The device loop ends at end of file.
package pcapfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/tyto/internal/link"
	"firestige.xyz/tyto/internal/metrics"
	"firestige.xyz/tyto/internal/stack"
)

// ErrLinkType is returned for capture files whose link type the device
// cannot replay.
var ErrLinkType = errors.New("tyto: unsupported pcap link type")

// Pacing gaps longer than this are clamped so replaying a sparse
// capture does not stall the stack for minutes.
const maxPacketGap = time.Second

// Options configures a pcapfile device.
type Options struct {
	Path string `mapstructure:"path"`
	Pace bool   `mapstructure:"pace"`
}

// Device replays one capture file.
type Device struct {
	name       string
	mtu        int
	path       string
	pace       bool
	dispatcher stack.NetworkDispatcher
}

func init() {
	link.Register("pcapfile", func(name string, mtu int, opts map[string]any) (stack.Device, error) {
		var o Options
		if err := link.DecodeOptions(opts, &o); err != nil {
			return nil, err
		}
		if o.Path == "" {
			return nil, fmt.Errorf("pcapfile: path is required")
		}
		return New(name, mtu, o.Path, o.Pace), nil
	})
}

// New creates a replay device for the capture file at path. With pace
// set, delivery follows the recorded inter-packet gaps.
func New(name string, mtu int, path string, pace bool) *Device {
	return &Device{
		name: name,
		mtu:  mtu,
		path: path,
		pace: pace,
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

// Attach stores the dispatcher the replay loop delivers to.
func (d *Device) Attach(dispatcher stack.NetworkDispatcher) {
	d.dispatcher = dispatcher
}

// Run replays the capture file until end of file or ctx cancellation.
func (d *Device) Run(ctx context.Context) error {
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("pcapfile: open capture: %w", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("pcapfile: read capture header: %w", err)
	}

	linkType := r.LinkType()
	switch linkType {
	case layers.LinkTypeEthernet, layers.LinkTypeRaw, layers.LinkTypeIPv4:
	default:
		return fmt.Errorf("%w: %v", ErrLinkType, linkType)
	}

	slog.Info("pcap replay started",
		"device", d.name,
		"file", d.path,
		"link_type", linkType.String())

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, ci, err := r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Info("pcap replay finished", "device", d.name)
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				// Truncated final record, common in live-rotated captures.
				slog.Warn("pcap replay: truncated capture", "device", d.name)
				return nil
			}
			metrics.DeviceReadErrors.WithLabelValues(d.name).Inc()
			return fmt.Errorf("pcapfile: read packet: %w", err)
		}

		if d.pace && !last.IsZero() {
			gap := ci.Timestamp.Sub(last)
			if gap > maxPacketGap {
				gap = maxPacketGap
			}
			if gap > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(gap):
				}
			}
		}
		last = ci.Timestamp

		var proto stack.ProtocolNumber
		payload := data
		if linkType == layers.LinkTypeEthernet {
			proto, payload, err = link.DecodeEthernet(data)
			if err != nil {
				slog.Debug("pcap replay: skipping truncated frame", "device", d.name)
				continue
			}
		} else {
			p, ok := link.RawProtocol(data)
			if !ok {
				slog.Debug("pcap replay: skipping non-IP record", "device", d.name)
				continue
			}
			proto = p
		}

		d.dispatcher.DeliverInbound(proto, payload, d)
	}
}
