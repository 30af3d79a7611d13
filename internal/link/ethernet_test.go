package link

import (
	"errors"
	"testing"
)

func TestDecodeEthernetIPv4(t *testing.T) {
	frame := []byte{
		0x00, 0x1b, 0x21, 0x3c, 0x4d, 0x5e, // dst MAC
		0x00, 0x1b, 0x21, 0x3c, 0x4d, 0x5f, // src MAC
		0x08, 0x00, // EtherType: IPv4
		0x45, 0x00, 0x00, 0x14, // payload
	}

	proto, payload, err := DecodeEthernet(frame)
	if err != nil {
		t.Fatalf("DecodeEthernet failed: %v", err)
	}
	if proto != 0x0800 {
		t.Errorf("Expected protocol 0x0800, got 0x%04x", proto)
	}
	if len(payload) != 4 {
		t.Errorf("Expected 4 payload bytes, got %d", len(payload))
	}
	if payload[0] != 0x45 {
		t.Errorf("Expected payload to start at 0x45, got 0x%02x", payload[0])
	}
}

func TestDecodeEthernetVLAN(t *testing.T) {
	frame := []byte{
		0x00, 0x1b, 0x21, 0x3c, 0x4d, 0x5e,
		0x00, 0x1b, 0x21, 0x3c, 0x4d, 0x5f,
		0x81, 0x00, // EtherType: 802.1Q
		0x00, 0x64, // TCI: VLAN 100
		0x08, 0x00, // inner EtherType: IPv4
		0x45, 0x00,
	}

	proto, payload, err := DecodeEthernet(frame)
	if err != nil {
		t.Fatalf("DecodeEthernet failed: %v", err)
	}
	if proto != 0x0800 {
		t.Errorf("Expected protocol 0x0800, got 0x%04x", proto)
	}
	if len(payload) != 2 || payload[0] != 0x45 {
		t.Errorf("Expected payload [0x45 0x00], got % x", payload)
	}
}

func TestDecodeEthernetQinQ(t *testing.T) {
	frame := []byte{
		0x00, 0x1b, 0x21, 0x3c, 0x4d, 0x5e,
		0x00, 0x1b, 0x21, 0x3c, 0x4d, 0x5f,
		0x88, 0xa8, // EtherType: 802.1ad outer tag
		0x00, 0xc8, // TCI: VLAN 200
		0x81, 0x00, // EtherType: 802.1Q inner tag
		0x00, 0x64, // TCI: VLAN 100
		0x08, 0x00, // inner EtherType: IPv4
		0x45,
	}

	proto, payload, err := DecodeEthernet(frame)
	if err != nil {
		t.Fatalf("DecodeEthernet failed: %v", err)
	}
	if proto != 0x0800 {
		t.Errorf("Expected protocol 0x0800, got 0x%04x", proto)
	}
	if len(payload) != 1 || payload[0] != 0x45 {
		t.Errorf("Expected payload [0x45], got % x", payload)
	}
}

func TestDecodeEthernetNonIP(t *testing.T) {
	frame := []byte{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0x00, 0x1b, 0x21, 0x3c, 0x4d, 0x5f,
		0x08, 0x06, // EtherType: ARP
		0x00, 0x01,
	}

	// Non-IP frames decode fine; the stack drops them as unhandled.
	proto, _, err := DecodeEthernet(frame)
	if err != nil {
		t.Fatalf("DecodeEthernet failed: %v", err)
	}
	if proto != 0x0806 {
		t.Errorf("Expected protocol 0x0806, got 0x%04x", proto)
	}
}

func TestDecodeEthernetTooShort(t *testing.T) {
	frame := []byte{0x00, 0x1b, 0x21, 0x3c, 0x4d, 0x5e, 0x00, 0x1b, 0x21, 0x3c, 0x4d, 0x5f, 0x08}

	_, _, err := DecodeEthernet(frame)
	if !errors.Is(err, ErrTruncatedFrame) {
		t.Errorf("Expected ErrTruncatedFrame, got %v", err)
	}
}

func TestDecodeEthernetTruncatedVLAN(t *testing.T) {
	// A VLAN EtherType with only two bytes of tag after it.
	frame := []byte{
		0x00, 0x1b, 0x21, 0x3c, 0x4d, 0x5e,
		0x00, 0x1b, 0x21, 0x3c, 0x4d, 0x5f,
		0x81, 0x00,
		0x00, 0x64,
	}

	_, _, err := DecodeEthernet(frame)
	if !errors.Is(err, ErrTruncatedFrame) {
		t.Errorf("Expected ErrTruncatedFrame, got %v", err)
	}
}

func TestRawProtocol(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		proto uint16
		ok    bool
	}{
		{"ipv4", []byte{0x45, 0x00}, 0x0800, true},
		{"ipv6", []byte{0x60, 0x00}, 0x86DD, true},
		{"version zero", []byte{0x0f}, 0, false},
		{"empty", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proto, ok := RawProtocol(tt.frame)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if uint16(proto) != tt.proto {
				t.Errorf("Expected protocol 0x%04x, got 0x%04x", tt.proto, proto)
			}
		})
	}
}
