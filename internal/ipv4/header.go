package ipv4

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderMinLen is the minimum IPv4 header size in bytes (IHL = 5).
	HeaderMinLen = 20

	// HeaderMaxLen is the maximum IPv4 header size in bytes (IHL = 15).
	HeaderMaxLen = 60

	// Version is the IP version this package accepts.
	Version = 4
)

// Flag bits of the 3-bit flags field.
const (
	FlagMoreFragments uint8 = 1 << 0
	FlagDontFragment  uint8 = 1 << 1
)

// Field offsets into the fixed header.
const (
	offVersIHL  = 0
	offTOS      = 1
	offTotalLen = 2
	offID       = 4
	offFlagsFO  = 6
	offTTL      = 8
	offProtocol = 9
	offChecksum = 10
	offSrc      = 12
	offDst      = 16
)

// Masks for the 16-bit flags+fragment-offset word: the MF bit, and the
// 13-bit offset in 8-byte units.
const (
	moreFragments  = 0x2000
	fragOffsetMask = 0x1fff
)

// Header is a decoded IPv4 header. It is a read-only view: Parse fills
// it from a frame and nothing in this package mutates the underlying
// bytes. Options aliases the source frame and is empty when the header
// carries no options.
type Header struct {
	Version    uint8
	HeaderLen  uint8  // in bytes, IHL x 4
	TOS        uint8
	TotalLen   uint16 // header plus payload, in bytes
	ID         uint16
	Flags      uint8  // 3-bit field, see Flag constants
	FragOffset uint16 // 13-bit field, units of 8 bytes
	TTL        uint8
	Protocol   uint8
	Checksum   uint16
	Src        Addr
	Dst        Addr
	Options    []byte
}

// Parse validates frame as a complete IPv4 datagram and decodes its
// header. Checks run in order and stop at the first failure; each
// failure wraps a distinct sentinel:
//
//	ErrTooShort      frame shorter than the 20-byte minimum header
//	ErrBadVersion    version nibble is not 4
//	ErrHeaderLength  IHL below the minimum or beyond the frame
//	ErrTotalLength   total length below the header length or beyond the frame
//	ErrChecksum      one's-complement sum over the datagram is not zero
//	ErrFragment      more-fragments set or fragment offset nonzero
//
// The checksum extent is the declared total length: the whole datagram
// as the sender measured it. A frame longer than its declared total is
// legal (link-layer padding); the excess bytes are ignored entirely and
// never enter the sum.
//
// On success Parse returns the header view and the payload sub-slice
// frame[HeaderLen:TotalLen]. Both alias frame; the caller keeps
// ownership of the backing array.
func Parse(frame []byte) (Header, []byte, error) {
	if len(frame) < HeaderMinLen {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrTooShort, len(frame))
	}
	if v := frame[offVersIHL] >> 4; v != Version {
		return Header{}, nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	hlen := int(frame[offVersIHL]&0x0f) * 4
	if hlen < HeaderMinLen || hlen > len(frame) {
		return Header{}, nil, fmt.Errorf("%w: %d bytes in a %d byte frame", ErrHeaderLength, hlen, len(frame))
	}
	total := int(binary.BigEndian.Uint16(frame[offTotalLen:]))
	if total < hlen || total > len(frame) {
		return Header{}, nil, fmt.Errorf("%w: %d bytes (header %d, frame %d)", ErrTotalLength, total, hlen, len(frame))
	}
	if sum := Checksum(frame[:total], 0); sum != 0 {
		return Header{}, nil, fmt.Errorf("%w: residual 0x%04x", ErrChecksum, sum)
	}
	flagsFO := binary.BigEndian.Uint16(frame[offFlagsFO:])
	if flagsFO&moreFragments != 0 || flagsFO&fragOffsetMask != 0 {
		return Header{}, nil, fmt.Errorf("%w: flags 0x%x, offset %d", ErrFragment, flagsFO>>13, flagsFO&fragOffsetMask)
	}

	h := Header{
		Version:    Version,
		HeaderLen:  uint8(hlen),
		TOS:        frame[offTOS],
		TotalLen:   uint16(total),
		ID:         binary.BigEndian.Uint16(frame[offID:]),
		Flags:      uint8(flagsFO >> 13),
		FragOffset: flagsFO & fragOffsetMask,
		TTL:        frame[offTTL],
		Protocol:   frame[offProtocol],
		Checksum:   binary.BigEndian.Uint16(frame[offChecksum:]),
		Src:        Addr(binary.BigEndian.Uint32(frame[offSrc:])),
		Dst:        Addr(binary.BigEndian.Uint32(frame[offDst:])),
	}
	if hlen > HeaderMinLen {
		h.Options = frame[HeaderMinLen:hlen:hlen]
	}
	return h, frame[hlen:total:total], nil
}
