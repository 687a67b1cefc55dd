package conn

import (
	"fmt"
	"net"

	"github.com/fastserver/lbcore/internal/proxyproto"
)

// HandshakeConfig selects which optional pre-application steps run
// before a connection is handed to its mux (spec.md 4.E).
type HandshakeConfig struct {
	SOCKS4    bool
	ProxyV1Out, ProxyV2Out bool
	ProxyV2CRC             bool
	ProxyRecv              bool // expect PROXY protocol on accept
	ALPNProtocols          []string
}

// ErrCode enumerates the handshake error family named in spec.md 7
// ("CO_ER_PRX_*, CO_ER_CIP_*, CO_ER_SOCKS4_*").
type ErrCode int

const (
	ErrNone ErrCode = iota
	ErrPrxBadHeader
	ErrPrxBadCRC
	ErrCipBadHeader
	ErrSocks4Rejected
	ErrSocks4ShortReply
)

func (e ErrCode) String() string {
	switch e {
	case ErrNone:
		return "none"
	case ErrPrxBadHeader:
		return "CO_ER_PRX_BADHDR"
	case ErrPrxBadCRC:
		return "CO_ER_PRX_BADCRC"
	case ErrCipBadHeader:
		return "CO_ER_CIP_BADHDR"
	case ErrSocks4Rejected:
		return "CO_ER_SOCKS4_REJECT"
	case ErrSocks4ShortReply:
		return "CO_ER_SOCKS4_SHORT"
	default:
		return "unknown"
	}
}

// HandshakeError carries the diagnostic code alongside a human message.
type HandshakeError struct {
	Code ErrCode
	Err  error
}

func (e *HandshakeError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }
func (e *HandshakeError) Unwrap() error { return e.Err }

// DoOutgoingSOCKS4 performs the client side of the SOCKS4 handshake
// over an already L4-connected socket, using send/recv callbacks so
// this package stays transport-agnostic.
func DoOutgoingSOCKS4(dst net.IP, dport uint16, send func([]byte) error, recv func([]byte) error) error {
	req := proxyproto.FormatSOCKS4Request(dst, dport)
	if err := send(req); err != nil {
		return &HandshakeError{Code: ErrSocks4Rejected, Err: err}
	}
	reply := make([]byte, 8)
	if err := recv(reply); err != nil {
		return &HandshakeError{Code: ErrSocks4ShortReply, Err: err}
	}
	if err := proxyproto.ParseSOCKS4Reply(reply); err != nil {
		return &HandshakeError{Code: ErrSocks4Rejected, Err: err}
	}
	return nil
}

// SendProxyV1 formats and sends an outgoing PROXY v1 line.
func SendProxyV1(e proxyproto.Endpoints, send func([]byte) error) error {
	line := proxyproto.FormatV1(e) + "\r\n"
	return send([]byte(line))
}

// SendProxyV2 formats and sends an outgoing PROXY v2 binary header,
// optionally with a CRC32C TLV.
func SendProxyV2(e proxyproto.Endpoints, local bool, withCRC bool, send func([]byte) error) error {
	hdr := proxyproto.FormatV2(e, local, nil, withCRC)
	return send(hdr)
}

// RecvProxy parses an incoming PROXY header (v1 text or v2 binary, per
// spec.md 4.E step 4) from the bytes already read into buf, returning
// the number of bytes the header consumed so the caller can trim its
// input buffer before handing the remainder to the mux.
func RecvProxy(c *Conn, buf []byte) (consumed int, err error) {
	if len(buf) >= 12 && bytesEqual(buf[:12], proxyproto.V2Signature) {
		h, n, perr := proxyproto.ParseV2(buf)
		if perr != nil {
			return 0, &HandshakeError{Code: ErrPrxBadCRC, Err: perr}
		}
		applyHeader(c, h)
		return n, nil
	}

	line, n, ok := readLine(buf)
	if !ok {
		return 0, &HandshakeError{Code: ErrPrxBadHeader, Err: fmt.Errorf("no CRLF-terminated PROXY line found")}
	}
	h, perr := proxyproto.ParseV1(line)
	if perr != nil {
		return 0, &HandshakeError{Code: ErrPrxBadHeader, Err: perr}
	}
	applyHeader(c, &proxyproto.Header{Version: 1, Local: h.Local, Endpoints: h.Endpoints})
	return n, nil
}

func applyHeader(c *Conn, h *proxyproto.Header) {
	c.SetFlag(FlagRcvdProxy)
	if h.Local {
		c.SetFlag(FlagLocal)
		return
	}
	c.Src, c.Dst = h.Src, h.Dst
	c.SrcPort, c.DstPort = h.SrcPort, h.DstPort
}

func readLine(buf []byte) (string, int, bool) {
	for i := 1; i < len(buf); i++ {
		if buf[i-1] == '\r' && buf[i] == '\n' {
			return string(buf[:i-1]), i + 1, true
		}
	}
	return "", 0, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SelectMux picks a mux by negotiated ALPN protocol name, falling back
// to fallback (typically the configured protocol mode) when ALPN
// produced nothing (spec.md 4.E step 7).
func SelectMux(alpn string, registry map[string]Mux, fallback Mux) Mux {
	if alpn != "" {
		if m, ok := registry[alpn]; ok {
			return m
		}
	}
	return fallback
}
