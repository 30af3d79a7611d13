package ipv4

import "fmt"

// Addr is an IPv4 address as a 32-bit value in network byte order: the
// most significant byte is the first octet on the wire. Equality is
// exact four-octet comparison.
type Addr uint32

const (
	// AddrAny is the all-zeros address, 0.0.0.0.
	AddrAny Addr = 0x00000000

	// AddrBroadcast is the all-ones limited broadcast address,
	// 255.255.255.255, a valid destination on any local network.
	AddrBroadcast Addr = 0xffffffff

	// AddrStringMax is the length of the longest possible dotted-decimal
	// rendering, "255.255.255.255".
	AddrStringMax = 15
)

// ParseAddr parses dotted-decimal text: exactly four decimal segments
// separated by '.', each at least one digit and at most 255. Leading
// zeros are accepted ("010.0.0.1" is 10.0.0.1). Anything else, a wrong
// segment count, an empty segment, a non-digit, an out-of-range value,
// trailing bytes, fails with ErrAddrSyntax and no partial result.
func ParseAddr(s string) (Addr, error) {
	var addr uint32
	i := 0
	for seg := 0; seg < 4; seg++ {
		if seg > 0 {
			if i >= len(s) || s[i] != '.' {
				return 0, fmt.Errorf("%w: %q", ErrAddrSyntax, s)
			}
			i++
		}
		v := -1
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			if v < 0 {
				v = 0
			}
			v = v*10 + int(s[i]-'0')
			if v > 255 {
				return 0, fmt.Errorf("%w: %q", ErrAddrSyntax, s)
			}
			i++
		}
		if v < 0 {
			return 0, fmt.Errorf("%w: %q", ErrAddrSyntax, s)
		}
		addr = addr<<8 | uint32(v)
	}
	if i != len(s) {
		return 0, fmt.Errorf("%w: %q", ErrAddrSyntax, s)
	}
	return Addr(addr), nil
}

// Format renders a into dst and returns the number of bytes written. It
// fails with ErrAddrBuffer, writing nothing, unless dst can hold the
// longest possible rendering (AddrStringMax bytes); the failure mode
// never depends on the value being formatted.
func (a Addr) Format(dst []byte) (int, error) {
	if len(dst) < AddrStringMax {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrAddrBuffer, AddrStringMax, len(dst))
	}
	n := 0
	for i := 0; i < 4; i++ {
		if i > 0 {
			dst[n] = '.'
			n++
		}
		oct := byte(a >> (24 - 8*i))
		if oct >= 100 {
			dst[n] = '0' + oct/100
			n++
		}
		if oct >= 10 {
			dst[n] = '0' + oct/10%10
			n++
		}
		dst[n] = '0' + oct%10
		n++
	}
	return n, nil
}

// String implements fmt.Stringer.
func (a Addr) String() string {
	var buf [AddrStringMax]byte
	n, _ := a.Format(buf[:])
	return string(buf[:n])
}
