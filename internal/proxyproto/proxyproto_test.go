package proxyproto

import (
	"net"
	"testing"
)

func TestParseV1Scenario(t *testing.T) {
	h, err := ParseV1("PROXY TCP4 192.0.2.1 198.51.100.2 56324 443")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Src.String() != "192.0.2.1" || h.Dst.String() != "198.51.100.2" {
		t.Fatalf("unexpected endpoints: %+v", h.Endpoints)
	}
	if h.SrcPort != 56324 || h.DstPort != 443 {
		t.Fatalf("unexpected ports: %+v", h.Endpoints)
	}
}

func TestParseV1Unknown(t *testing.T) {
	h, err := ParseV1("PROXY UNKNOWN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.Local {
		t.Fatalf("expected Local for UNKNOWN proto")
	}
}

func TestParseV1Malformed(t *testing.T) {
	if _, err := ParseV1("GARBAGE"); err == nil {
		t.Fatalf("expected error for malformed line")
	}
}

func TestV2RoundTripWithCRC(t *testing.T) {
	e := Endpoints{
		Src:     net.ParseIP("192.0.2.1"),
		Dst:     net.ParseIP("198.51.100.2"),
		SrcPort: 56324,
		DstPort: 443,
	}
	wire := FormatV2(e, false, nil, true)
	h, n, err := ParseV2(wire)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("expected to consume entire header, got %d/%d", n, len(wire))
	}
	if h.Src.String() != "192.0.2.1" || h.Dst.String() != "198.51.100.2" {
		t.Fatalf("unexpected endpoints: %+v", h.Endpoints)
	}
	if h.SrcPort != 56324 || h.DstPort != 443 {
		t.Fatalf("unexpected ports: %+v", h.Endpoints)
	}
}

func TestV2CRCMismatchDetected(t *testing.T) {
	e := Endpoints{Src: net.ParseIP("10.0.0.1"), Dst: net.ParseIP("10.0.0.2"), SrcPort: 1, DstPort: 2}
	wire := FormatV2(e, false, nil, true)
	wire[len(wire)-1] ^= 0xFF // corrupt the CRC value itself
	if _, _, err := ParseV2(wire); err != ErrCRCMismatch {
		t.Fatalf("expected CRC mismatch, got %v", err)
	}
}

func TestSOCKS4Reply(t *testing.T) {
	req := FormatSOCKS4Request(net.ParseIP("10.0.0.1"), 80)
	if req[0] != 0x04 || req[1] != 0x01 {
		t.Fatalf("unexpected SOCKS4 request header: %x", req[:2])
	}
	good := []byte{0x00, 0x5A, 0, 0, 0, 0, 0, 0}
	if err := ParseSOCKS4Reply(good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []byte{0x00, 0x5B, 0, 0, 0, 0, 0, 0}
	if err := ParseSOCKS4Reply(bad); err != ErrSOCKS4Rejected {
		t.Fatalf("expected rejection, got %v", err)
	}
}
