package ipv4

import (
	"fmt"
	"sync"
	"sync/atomic"

	"firestige.xyz/tyto/internal/stack"
)

// Interface is one IPv4 address binding on one link device: unicast
// address, netmask, and the broadcast address derived from them. An
// Interface is created unbound by NewInterface and bound to its device
// by Protocol.RegisterInterface, exactly once; there is no unbind and an
// interface lives for the process lifetime.
type Interface struct {
	unicast   Addr
	netmask   Addr
	broadcast Addr
	dev       stack.Device // nil until registered
}

// NewInterface builds an unbound interface from dotted-decimal unicast
// and netmask text. The broadcast address is computed here once, as
// (unicast & netmask) | ^netmask, and never recomputed. Either text
// failing to parse returns the error and nothing else.
func NewInterface(unicast, netmask string) (*Interface, error) {
	u, err := ParseAddr(unicast)
	if err != nil {
		return nil, fmt.Errorf("unicast: %w", err)
	}
	m, err := ParseAddr(netmask)
	if err != nil {
		return nil, fmt.Errorf("netmask: %w", err)
	}
	return &Interface{
		unicast:   u,
		netmask:   m,
		broadcast: u&m | ^m,
	}, nil
}

// Family implements stack.NetworkInterface.
func (i *Interface) Family() stack.InterfaceFamily { return stack.FamilyIPv4 }

// Unicast returns the interface's unicast address.
func (i *Interface) Unicast() Addr { return i.unicast }

// Netmask returns the interface's subnet mask.
func (i *Interface) Netmask() Addr { return i.netmask }

// Broadcast returns the interface's directed broadcast address.
func (i *Interface) Broadcast() Addr { return i.broadcast }

// Device returns the owning device, nil before registration.
func (i *Interface) Device() stack.Device { return i.dev }

// String implements fmt.Stringer.
func (i *Interface) String() string {
	return i.unicast.String() + "/" + i.netmask.String()
}

// registry owns every registered interface, in registration order. It
// is mutable during bring-up and sealed by Protocol.Start before the
// first frame is delivered; after sealing mutation fails and lookups
// are safe from any goroutine.
type registry struct {
	mu     sync.RWMutex
	sealed atomic.Bool
	ifaces []*Interface
}

func (r *registry) register(ifc *Interface) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return ErrRegistrySealed
	}
	r.ifaces = append(r.ifaces, ifc)
	return nil
}

// seal closes the registry for mutation and returns the number of
// interfaces it holds. Sealing twice is a no-op.
func (r *registry) seal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed.Store(true)
	return len(r.ifaces)
}

func (r *registry) isSealed() bool {
	return r.sealed.Load()
}

// selectByAddr returns the first interface, in registration order, whose
// unicast or broadcast address equals addr. A miss is not an error; it
// reports false.
func (r *registry) selectByAddr(addr Addr) (*Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ifc := range r.ifaces {
		if ifc.unicast == addr || ifc.broadcast == addr {
			return ifc, true
		}
	}
	return nil, false
}
