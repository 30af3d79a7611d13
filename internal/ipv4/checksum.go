package ipv4

// Checksum computes the RFC 1071 Internet checksum of b: big-endian
// 16-bit words summed with end-around carry, inverted. A trailing odd
// byte is padded on the right. initial seeds the accumulator for callers
// that sum across multiple regions. A buffer whose stored checksum field
// is correct sums to zero.
func Checksum(b []byte, initial uint16) uint16 {
	sum := uint32(initial)
	for ; len(b) >= 2; b = b[2:] {
		sum += uint32(b[0])<<8 | uint32(b[1])
	}
	if len(b) == 1 {
		sum += uint32(b[0]) << 8
	}
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return ^uint16(sum)
}
