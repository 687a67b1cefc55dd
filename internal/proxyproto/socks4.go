package proxyproto

import (
	"encoding/binary"
	"errors"
	"net"
)

var (
	ErrSOCKS4ShortReply = errors.New("proxyproto: short SOCKS4 reply")
	ErrSOCKS4Rejected   = errors.New("proxyproto: SOCKS4 connect rejected")
)

const socks4ReplyGranted = 0x5A

// FormatSOCKS4Request builds the outgoing CONNECT request
// {0x04, 0x01, dport, daddr, "HAProxy\0"} (spec.md 6).
func FormatSOCKS4Request(dst net.IP, dport uint16) []byte {
	v4 := dst.To4()
	req := make([]byte, 0, 9+8)
	req = append(req, 0x04, 0x01)
	req = binary.BigEndian.AppendUint16(req, dport)
	req = append(req, v4...)
	req = append(req, "HAProxy\x00"...)
	return req
}

// ParseSOCKS4Reply validates the 8-byte reply, returning an error
// unless byte[1] == 0x5A (spec.md 6).
func ParseSOCKS4Reply(reply []byte) error {
	if len(reply) < 8 {
		return ErrSOCKS4ShortReply
	}
	if reply[1] != socks4ReplyGranted {
		return ErrSOCKS4Rejected
	}
	return nil
}
