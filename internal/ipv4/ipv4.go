// Package ipv4 implements the network-layer ingress path: dotted-decimal
// address handling, header validation, per-device interface addressing,
// and hand-off of accepted datagrams to transport handlers.
package ipv4

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"firestige.xyz/tyto/internal/metrics"
	"firestige.xyz/tyto/internal/stack"
)

// ProtocolNumber is the EtherType the protocol registers under.
const ProtocolNumber stack.ProtocolNumber = 0x0800

// TransportHandler consumes an accepted datagram. Handlers run
// synchronously on the receiving device's goroutine and must not block.
type TransportHandler func(dgram *Datagram)

// Datagram is an accepted inbound datagram. Header and Payload alias the
// frame the device delivered; the handler must copy what it keeps.
type Datagram struct {
	Header  Header
	Payload []byte
	Iface   *Interface
	Device  stack.Device
}

// Stats is a snapshot of the cumulative ingress counters.
type Stats struct {
	Received     uint64 // frames delivered to Input
	Accepted     uint64 // passed validation and address match
	Malformed    uint64 // failed a validation step
	NoInterface  uint64 // receiving device has no IPv4 binding
	AddrMismatch uint64 // destination is not a local address
	Unhandled    uint64 // accepted, but no transport handler installed
}

// Metric label values for ingress drops outside the validation steps.
const (
	reasonNoInterface  = "no_interface"
	reasonAddrMismatch = "not_local"
)

// Protocol is the IPv4 ingress protocol. Create it with Register, bind
// interfaces and transports while the stack is down, then let stack.Run
// start it; Start seals the registration-time state.
type Protocol struct {
	stk *stack.Stack
	reg registry

	tmu        sync.RWMutex
	transports map[uint8]TransportHandler

	unsealedWarn sync.Once

	received     atomic.Uint64
	accepted     atomic.Uint64
	malformed    atomic.Uint64
	noIface      atomic.Uint64
	addrMismatch atomic.Uint64
	unhandled    atomic.Uint64
}

// Register creates the protocol and installs it in the stack's dispatch
// table under ProtocolNumber. Failure to install is fatal to bring-up
// and returned to the caller.
func Register(stk *stack.Stack) (*Protocol, error) {
	p := &Protocol{
		stk:        stk,
		transports: make(map[uint8]TransportHandler),
	}
	if err := stk.RegisterProtocol(p); err != nil {
		return nil, fmt.Errorf("ipv4 dispatch registration: %w", err)
	}
	return p, nil
}

// Number implements stack.NetworkProtocol.
func (p *Protocol) Number() stack.ProtocolNumber { return ProtocolNumber }

// Start implements stack.NetworkProtocol. It seals the interface
// registry; past this point registration fails with ErrRegistrySealed
// and the tables are read-only.
func (p *Protocol) Start() error {
	n := p.reg.seal()
	slog.Info("ipv4 ingress ready", "interfaces", n)
	return nil
}

// RegisterInterface binds ifc to dev. The device's IPv4 family slot is
// claimed first (the device side may reject the binding), then the
// interface joins the global lookup list. Fails on a rebind of an
// already-registered interface, a rejected device binding, or a sealed
// registry.
func (p *Protocol) RegisterInterface(dev stack.Device, ifc *Interface) error {
	if ifc.dev != nil {
		return fmt.Errorf("%w: %s", ErrIfaceBound, ifc)
	}
	if err := p.stk.BindInterface(dev, ifc); err != nil {
		return fmt.Errorf("bind %s to %s: %w", ifc, dev.Name(), err)
	}
	ifc.dev = dev
	if err := p.reg.register(ifc); err != nil {
		return err
	}
	metrics.InterfacesRegistered.Inc()

	slog.Info("interface registered",
		"device", dev.Name(),
		"unicast", ifc.unicast.String(),
		"netmask", ifc.netmask.String(),
		"broadcast", ifc.broadcast.String(),
	)
	return nil
}

// SelectInterface returns the first registered interface whose unicast
// or broadcast address equals addr. First match wins under duplicate
// bindings. A miss reports false, not an error; callers distinguish "no
// such interface" from hard failures.
func (p *Protocol) SelectInterface(addr Addr) (*Interface, bool) {
	return p.reg.selectByAddr(addr)
}

// RegisterTransport installs h as the handler for an IP protocol number
// (e.g. 17 for UDP). Installation happens at bring-up; after the
// registry is sealed it fails with ErrRegistrySealed. One handler per
// number.
func (p *Protocol) RegisterTransport(proto uint8, h TransportHandler) error {
	if p.reg.isSealed() {
		return ErrRegistrySealed
	}
	p.tmu.Lock()
	defer p.tmu.Unlock()
	if _, ok := p.transports[proto]; ok {
		return fmt.Errorf("%w: %d", ErrTransportExists, proto)
	}
	p.transports[proto] = h

	slog.Info("transport registered", "protocol", proto)
	return nil
}

// Stats returns a snapshot of the ingress counters.
func (p *Protocol) Stats() Stats {
	return Stats{
		Received:     p.received.Load(),
		Accepted:     p.accepted.Load(),
		Malformed:    p.malformed.Load(),
		NoInterface:  p.noIface.Load(),
		AddrMismatch: p.addrMismatch.Load(),
		Unhandled:    p.unhandled.Load(),
	}
}

// Input implements stack.NetworkProtocol. It runs the full acceptance
// path on one frame: validate, resolve the receiving device's interface,
// match the destination address, hand off. It never fails outward;
// malformed datagrams, unknown destinations, and devices without an IPv4
// binding are counted, logged, and absorbed.
func (p *Protocol) Input(frame []byte, dev stack.Device) {
	p.received.Add(1)
	if !p.reg.isSealed() {
		p.unsealedWarn.Do(func() {
			slog.Warn("ingress running before interface registry sealed")
		})
	}

	h, payload, err := Parse(frame)
	if err != nil {
		p.malformed.Add(1)
		metrics.DatagramsDropped.WithLabelValues(dev.Name(), dropReason(err)).Inc()
		slog.Debug("datagram rejected", "device", dev.Name(), "len", len(frame), "error", err)
		return
	}

	ifc, ok := p.ifaceOf(dev)
	if !ok {
		p.noIface.Add(1)
		metrics.DatagramsDropped.WithLabelValues(dev.Name(), reasonNoInterface).Inc()
		slog.Debug("no interface for device", "device", dev.Name(), "dst", h.Dst.String())
		return
	}

	if h.Dst != ifc.unicast && h.Dst != ifc.broadcast && h.Dst != AddrBroadcast {
		// Normal under promiscuous reception: traffic for someone else.
		p.addrMismatch.Add(1)
		metrics.DatagramsDropped.WithLabelValues(dev.Name(), reasonAddrMismatch).Inc()
		slog.Debug("destination not local", "device", dev.Name(), "dst", h.Dst.String())
		return
	}

	p.accepted.Add(1)
	metrics.DatagramsAccepted.WithLabelValues(dev.Name()).Inc()
	slog.Debug("datagram accepted",
		"device", dev.Name(),
		"iface", ifc.unicast.String(),
		"protocol", h.Protocol,
		"total", h.TotalLen,
	)
	dumpHeader(&h)

	p.tmu.RLock()
	handler := p.transports[h.Protocol]
	p.tmu.RUnlock()
	if handler == nil {
		p.unhandled.Add(1)
		slog.Debug("no transport handler", "protocol", h.Protocol)
		return
	}
	handler(&Datagram{Header: h, Payload: payload, Iface: ifc, Device: dev})
}

func (p *Protocol) ifaceOf(dev stack.Device) (*Interface, bool) {
	ni, ok := p.stk.Interface(dev, stack.FamilyIPv4)
	if !ok {
		return nil, false
	}
	ifc, ok := ni.(*Interface)
	return ifc, ok
}

// dropReason maps a Parse rejection to its metric label.
func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrTooShort):
		return "too_short"
	case errors.Is(err, ErrBadVersion):
		return "bad_version"
	case errors.Is(err, ErrHeaderLength):
		return "header_length"
	case errors.Is(err, ErrTotalLength):
		return "total_length"
	case errors.Is(err, ErrChecksum):
		return "checksum"
	case errors.Is(err, ErrFragment):
		return "fragment"
	default:
		return "other"
	}
}

// dumpHeader logs every header field at debug level, the wire-level view
// for chasing malformed traffic.
func dumpHeader(h *Header) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	slog.Debug("ipv4 header",
		"vhl", fmt.Sprintf("0x%02x", h.Version<<4|h.HeaderLen/4),
		"tos", fmt.Sprintf("0x%02x", h.TOS),
		"total", h.TotalLen,
		"id", h.ID,
		"flags", fmt.Sprintf("0x%x", h.Flags),
		"offset", h.FragOffset,
		"ttl", h.TTL,
		"protocol", h.Protocol,
		"checksum", fmt.Sprintf("0x%04x", h.Checksum),
		"src", h.Src.String(),
		"dst", h.Dst.String(),
		"options", len(h.Options),
	)
}
