package ipv4

import (
	"math/rand"
	"testing"

	gvchecksum "gvisor.dev/gvisor/pkg/tcpip/checksum"
)

func TestChecksumKnownVector(t *testing.T) {
	// The worked example from RFC 1071 section 3: words 0001 f203 f4f5
	// f6f7 sum to ddf2, so the checksum is its complement.
	data := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}

	if got := Checksum(data, 0); got != 0x220d {
		t.Errorf("Checksum = 0x%04x, expected 0x220d", got)
	}
}

func TestChecksumOddLength(t *testing.T) {
	// A trailing odd byte is the high octet of a zero-padded final word.
	if got := Checksum([]byte{0x03}, 0); got != 0xfcff {
		t.Errorf("Checksum([0x03]) = 0x%04x, expected 0xfcff", got)
	}
	if got := Checksum([]byte{0x00, 0x01, 0x03}, 0); got != 0xfcfe {
		t.Errorf("Checksum([0x00 0x01 0x03]) = 0x%04x, expected 0xfcfe", got)
	}
}

func TestChecksumAllZeros(t *testing.T) {
	if got := Checksum(make([]byte, 64), 0); got != 0xffff {
		t.Errorf("Checksum(zeros) = 0x%04x, expected 0xffff", got)
	}
}

func TestChecksumInitialChains(t *testing.T) {
	// Summing a buffer in two pieces through the initial accumulator
	// must equal summing it at once (even-length split).
	rng := rand.New(rand.NewSource(7))
	buf := make([]byte, 128)
	rng.Read(buf)

	whole := Checksum(buf, 0)
	carried := ^Checksum(buf[:64], 0)
	split := Checksum(buf[64:], carried)
	if whole != split {
		t.Errorf("split sum 0x%04x, whole sum 0x%04x", split, whole)
	}
}

func TestChecksumBalancedBufferSumsToZero(t *testing.T) {
	// Storing the complement of a buffer's sum inside the buffer makes
	// the whole buffer sum to zero. This is the property header
	// verification relies on.
	rng := rand.New(rand.NewSource(11))
	buf := make([]byte, 40)
	rng.Read(buf)
	buf[10], buf[11] = 0, 0

	cs := Checksum(buf, 0)
	buf[10] = byte(cs >> 8)
	buf[11] = byte(cs)

	if got := Checksum(buf, 0); got != 0 {
		t.Errorf("balanced buffer sums to 0x%04x, expected 0", got)
	}
}

func TestChecksumMatchesReference(t *testing.T) {
	// Cross-check against the gVisor implementation, which folds without
	// inverting, over every length from 0 to 64 including odd ones.
	rng := rand.New(rand.NewSource(42))
	for size := 0; size <= 64; size++ {
		buf := make([]byte, size)
		rng.Read(buf)

		got := Checksum(buf, 0)
		want := ^gvchecksum.Checksum(buf, 0)
		if got != want {
			t.Fatalf("size %d: Checksum = 0x%04x, reference = 0x%04x", size, got, want)
		}
	}
}

func BenchmarkChecksum1500(b *testing.B) {
	buf := make([]byte, 1500)
	rng := rand.New(rand.NewSource(3))
	rng.Read(buf)

	b.ReportAllocs()
	b.SetBytes(int64(len(buf)))
	for i := 0; i < b.N; i++ {
		Checksum(buf, 0)
	}
}
