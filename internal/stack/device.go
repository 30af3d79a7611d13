package stack

import "context"

// ProtocolNumber identifies a network protocol in EtherType space
// (e.g. 0x0800 for IPv4).
type ProtocolNumber uint16

// InterfaceFamily identifies the address family of an interface bound to
// a device. A device accepts at most one interface per family.
type InterfaceFamily uint8

const (
	FamilyIPv4 InterfaceFamily = iota + 1
	FamilyIPv6
)

// Device is a link-layer device. Implementations read frames from some
// source (packet socket, TUN, capture file, channel) and hand them to
// the dispatcher given at attach time.
type Device interface {
	// Name returns the device name, unique within a stack.
	Name() string

	// MTU returns the maximum frame payload size in bytes.
	MTU() int

	// Attach gives the device the dispatcher to deliver inbound frames
	// to. Called once by Stack.AddDevice, before Run.
	Attach(dispatcher NetworkDispatcher)

	// Run blocks reading frames and delivering them until ctx is
	// cancelled or the source is exhausted. Delivery is synchronous from
	// this goroutine.
	Run(ctx context.Context) error
}

// NetworkDispatcher receives inbound frames from devices. The Stack is
// the dispatcher for every attached device.
type NetworkDispatcher interface {
	DeliverInbound(proto ProtocolNumber, frame []byte, dev Device)
}

// NetworkInterface is an address binding a network protocol attaches to
// a device. The concrete type belongs to the protocol package.
type NetworkInterface interface {
	Family() InterfaceFamily
}

// NetworkProtocol is an entry in the stack's protocol dispatch table.
type NetworkProtocol interface {
	// Number returns the protocol number the protocol is dispatched by.
	Number() ProtocolNumber

	// Start is invoked by Stack.Run before any frame is delivered. A
	// protocol uses it to seal registration-time state; an error aborts
	// stack bring-up.
	Start() error

	// Input processes one inbound frame. It must absorb all per-frame
	// failures internally; it never reports an error to the caller.
	Input(frame []byte, dev Device)
}
