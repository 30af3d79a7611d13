package ipv4

import "errors"

// Sentinel errors. Datagram rejection reasons are one sentinel per
// validation step so callers and tests can tag the exact cause with
// errors.Is instead of matching message text.
var (
	// Address text errors
	ErrAddrSyntax = errors.New("tyto: invalid dotted-decimal address")
	ErrAddrBuffer = errors.New("tyto: buffer too small for address text")

	// Datagram rejection reasons, in validation order
	ErrTooShort     = errors.New("tyto: datagram shorter than minimum header")
	ErrBadVersion   = errors.New("tyto: version is not 4")
	ErrHeaderLength = errors.New("tyto: header length out of bounds")
	ErrTotalLength  = errors.New("tyto: total length out of bounds")
	ErrChecksum     = errors.New("tyto: header checksum mismatch")
	ErrFragment     = errors.New("tyto: fragmented datagram")

	// Registration errors
	ErrRegistrySealed  = errors.New("tyto: interface registry sealed")
	ErrIfaceBound      = errors.New("tyto: interface already registered")
	ErrTransportExists = errors.New("tyto: transport protocol already registered")
)
