package link

import (
	"encoding/binary"

	"firestige.xyz/tyto/internal/stack"
)

const (
	// EthernetHeaderLen is the length of an untagged Ethernet header.
	EthernetHeaderLen = 14

	vlanHeaderLen = 4

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
	etherTypeVLAN = 0x8100
	etherTypeQinQ = 0x88A8
)

// DecodeEthernet strips the Ethernet header from a frame, including any
// stacked 802.1Q/802.1ad VLAN tags, and returns the innermost EtherType
// and the network-layer payload. The payload aliases the input frame.
func DecodeEthernet(frame []byte) (stack.ProtocolNumber, []byte, error) {
	if len(frame) < EthernetHeaderLen {
		return 0, nil, ErrTruncatedFrame
	}

	etherType := binary.BigEndian.Uint16(frame[12:14])
	offset := EthernetHeaderLen

	// VLAN tags can be nested (QinQ): keep unwrapping until a real
	// EtherType shows up.
	for etherType == etherTypeVLAN || etherType == etherTypeQinQ {
		if len(frame) < offset+vlanHeaderLen {
			return 0, nil, ErrTruncatedFrame
		}
		etherType = binary.BigEndian.Uint16(frame[offset+2 : offset+4])
		offset += vlanHeaderLen
	}

	return stack.ProtocolNumber(etherType), frame[offset:], nil
}

// RawProtocol infers the protocol number of a raw IP frame from its
// version nibble. Devices without link-layer framing (TUN, raw capture
// files) use it in place of an EtherType. ok is false when the frame is
// empty or the version is neither 4 nor 6.
func RawProtocol(frame []byte) (stack.ProtocolNumber, bool) {
	if len(frame) == 0 {
		return 0, false
	}
	switch frame[0] >> 4 {
	case 4:
		return etherTypeIPv4, true
	case 6:
		return etherTypeIPv6, true
	default:
		return 0, false
	}
}
