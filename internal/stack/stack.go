// Package stack implements the boundary between link-layer devices and
// network-layer protocols: a device registry, a protocol dispatch table,
// and the run loop that pumps frames between them.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"firestige.xyz/tyto/internal/metrics"
)

// Sentinel errors for stack configuration. Per-frame failures are never
// errors; they are absorbed by the protocols.
var (
	ErrDeviceExists   = errors.New("tyto: device name already in use")
	ErrDeviceUnknown  = errors.New("tyto: device not registered")
	ErrProtocolExists = errors.New("tyto: protocol number already registered")
	ErrFamilyBound    = errors.New("tyto: device already has an interface for family")
	ErrStackRunning   = errors.New("tyto: stack already running")
)

type deviceEntry struct {
	dev    Device
	ifaces map[InterfaceFamily]NetworkInterface
}

// Stack owns the devices and the protocol dispatch table. All
// registration happens during bring-up; Run seals the tables for the
// process lifetime and any later mutation fails with ErrStackRunning.
// After sealing the tables are safe for concurrent readers, one per
// device goroutine.
type Stack struct {
	mu        sync.RWMutex
	running   bool
	devices   map[string]*deviceEntry
	order     []*deviceEntry
	protocols map[ProtocolNumber]NetworkProtocol
}

// New creates an empty stack.
func New() *Stack {
	return &Stack{
		devices:   make(map[string]*deviceEntry),
		protocols: make(map[ProtocolNumber]NetworkProtocol),
	}
}

// AddDevice registers a device under its name and attaches it to the
// dispatch path.
func (s *Stack) AddDevice(dev Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrStackRunning
	}
	name := dev.Name()
	if _, ok := s.devices[name]; ok {
		return fmt.Errorf("%w: %s", ErrDeviceExists, name)
	}
	entry := &deviceEntry{
		dev:    dev,
		ifaces: make(map[InterfaceFamily]NetworkInterface),
	}
	s.devices[name] = entry
	s.order = append(s.order, entry)
	dev.Attach(s)

	slog.Info("device added", "device", name, "mtu", dev.MTU())
	return nil
}

// Device returns a registered device by name.
func (s *Stack) Device(name string) (Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.devices[name]
	if !ok {
		return nil, false
	}
	return entry.dev, true
}

// RegisterProtocol installs a network protocol in the dispatch table.
// Two protocols under one number is a configuration error and fails
// loudly at bring-up.
func (s *Stack) RegisterProtocol(p NetworkProtocol) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrStackRunning
	}
	num := p.Number()
	if _, ok := s.protocols[num]; ok {
		return fmt.Errorf("%w: 0x%04x", ErrProtocolExists, uint16(num))
	}
	s.protocols[num] = p

	slog.Info("protocol registered", "protocol", fmt.Sprintf("0x%04x", uint16(num)))
	return nil
}

// BindInterface claims dev's slot for the interface's family. Binding to
// an unknown device or an occupied family slot fails; this is the
// acceptance check interface registration delegates to the device side.
func (s *Stack) BindInterface(dev Device, ifc NetworkInterface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrStackRunning
	}
	entry, ok := s.devices[dev.Name()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceUnknown, dev.Name())
	}
	family := ifc.Family()
	if _, ok := entry.ifaces[family]; ok {
		return fmt.Errorf("%w: %s family %d", ErrFamilyBound, dev.Name(), family)
	}
	entry.ifaces[family] = ifc
	return nil
}

// Interface returns the interface of the given family bound to dev.
func (s *Stack) Interface(dev Device, family InterfaceFamily) (NetworkInterface, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.devices[dev.Name()]
	if !ok {
		return nil, false
	}
	ifc, ok := entry.ifaces[family]
	return ifc, ok
}

// DeliverInbound routes one frame to the protocol registered under
// proto. It implements NetworkDispatcher; devices call it synchronously
// from their read loops. Frames for unregistered protocols are counted
// and dropped.
func (s *Stack) DeliverInbound(proto ProtocolNumber, frame []byte, dev Device) {
	metrics.FramesDelivered.WithLabelValues(dev.Name()).Inc()

	s.mu.RLock()
	p := s.protocols[proto]
	s.mu.RUnlock()

	if p == nil {
		metrics.FramesUnhandled.WithLabelValues(dev.Name()).Inc()
		slog.Debug("no protocol for frame",
			"device", dev.Name(),
			"protocol", fmt.Sprintf("0x%04x", uint16(proto)),
			"len", len(frame),
		)
		return
	}
	p.Input(frame, dev)
}

// Run starts every registered protocol, then every device read loop,
// and blocks until ctx is cancelled and all loops have returned. Once
// entered the stack stays sealed: there is no teardown back to the
// configurable state.
func (s *Stack) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrStackRunning
	}
	s.running = true
	protocols := make([]NetworkProtocol, 0, len(s.protocols))
	for _, p := range s.protocols {
		protocols = append(protocols, p)
	}
	entries := append([]*deviceEntry(nil), s.order...)
	s.mu.Unlock()

	for _, p := range protocols {
		if err := p.Start(); err != nil {
			return fmt.Errorf("protocol 0x%04x start: %w", uint16(p.Number()), err)
		}
	}

	slog.Info("stack running", "devices", len(entries), "protocols", len(protocols))

	var wg sync.WaitGroup
	errCh := make(chan error, len(entries))
	for _, entry := range entries {
		wg.Add(1)
		go func(dev Device) {
			defer wg.Done()
			err := dev.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("device loop failed", "device", dev.Name(), "error", err)
				errCh <- fmt.Errorf("device %s: %w", dev.Name(), err)
				return
			}
			slog.Debug("device loop finished", "device", dev.Name())
		}(entry.dev)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	slog.Info("stack stopped")
	return errors.Join(errs...)
}
