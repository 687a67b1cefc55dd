// Package h1 implements the HTTP/1 multiplexer: a single-stream
// request/response parser and formatter operating on internal/buf
// buffers and producing/consuming internal/htx messages, grounded on
// the teacher's zero-allocation byte-scanning style
// (core/http/parser.go) generalized into a full connection-mode state
// machine (spec.md 4.F).
package h1

import (
	"bytes"

	"github.com/fastserver/lbcore/internal/buf"
	"github.com/fastserver/lbcore/internal/htx"
)

// ConnMode is the mutually-exclusive connection-mode decision bit set
// once per direction (spec.md 4.F).
type ConnMode int

const (
	WantKAL ConnMode = iota
	WantCLO
	WantTUN
)

// Flags tracked on the mux beyond ConnMode.
type Flags uint32

const (
	FlagParsingDone Flags = 1 << iota
	FlagEOSRecv
	FlagHaveOConn  // already emitted our own Connection header
	FlagHaveSrvName
	FlagReqError
	FlagResError
)

// RxState is the per-direction parser state machine named in spec.md
// 4.F's diagram.
type RxState int

const (
	StBefore RxState = iota // RQBEFORE / RPBEFORE
	StHdrFirst
	StLastLF
	StData
	StChunkSz
	StChunkCRLF
	StTrailers
	StDone
	StTunnel
)

// BodyMode chosen once headers are classified (spec.md 4.F "classify
// body").
type BodyMode int

const (
	BodyNone BodyMode = iota
	BodyCLen
	BodyChunked
	BodyTunnel
)

// H2Preface is the 24-byte prior-knowledge upgrade marker (spec.md
// 4.F "First-request H2 upgrade").
var H2Preface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// Mux holds the per-connection H1 state. Single stream per connection,
// per spec.md 4.F.
type Mux struct {
	IsBackend bool // server-side semantics when true

	Mode  ConnMode
	Flags Flags

	rx rxParser
	tx txFormatter

	// CaseAdjust optionally rewrites outgoing header names to
	// bug-for-bug mixed case for misbehaving peers (spec.md 4.F).
	CaseAdjust map[string]string

	firstRequest bool
	UpgradeH2C   bool
}

// New creates an H1 mux. isBackend selects server-side connection-mode
// rules (mirrors client-side with its own option set, spec.md 4.F).
func New(isBackend bool) *Mux {
	return &Mux{IsBackend: isBackend, firstRequest: true}
}

// DecideConnModeRequest applies the client-side request connection-mode
// decision (spec.md 4.F "Client-side, on request").
func DecideConnModeRequest(version string, explicitClose, explicitKeepAlive, stopping bool) ConnMode {
	if stopping {
		return WantCLO
	}
	if explicitClose {
		return WantCLO
	}
	if version == "HTTP/1.0" && !explicitKeepAlive {
		return WantCLO
	}
	return WantKAL
}

// DecideConnModeResponse applies the client-side response
// connection-mode decision (spec.md 4.F "Client-side, on response").
func DecideConnModeResponse(status int, method string, hasXferLen, explicitClose, httpCloseOpt, stopping bool) ConnMode {
	if status == 101 || (method == "CONNECT" && status/100 == 2) {
		return WantTUN
	}
	if stopping {
		return WantCLO
	}
	if !hasXferLen || explicitClose || httpCloseOpt {
		return WantCLO
	}
	return WantKAL // "inherit" collapses to KAL here; caller may override with prior mode
}

// DecideConnModeServer mirrors the client-side decision with its own
// option set; server-close forces CLO (spec.md 4.F "Server-side").
func DecideConnModeServer(serverClose, explicitClose, stopping bool) ConnMode {
	if stopping || serverClose || explicitClose {
		return WantCLO
	}
	return WantKAL
}

// DetectH2Preface reports whether the first 24 bytes of the input
// buffer equal the H2 prior-knowledge preface (spec.md 4.F).
func DetectH2Preface(first24 []byte) bool {
	return len(first24) >= len(H2Preface) && bytes.Equal(first24[:len(H2Preface)], H2Preface)
}

// ParseFromBuffer consumes as many bytes as it can from ibuf, appending
// HTX blocks to msg. Returns the state reached and the number of bytes
// consumed. On parse failure it sets FlagReqError/FlagResError instead
// of returning an error value, per spec.md 4.F ("parsing errors set
// REQ_ERROR/RES_ERROR and propagate an EOI|ERROR to conn_stream").
func (m *Mux) ParseFromBuffer(ibuf *buf.Buffer, msg *htx.Message, isRequest bool) (RxState, int) {
	if m.firstRequest && isRequest {
		first := make([]byte, len(H2Preface))
		n := ibuf.BPeek(first, 0)
		if n == len(H2Preface) && DetectH2Preface(first) {
			m.UpgradeH2C = true
			return StBefore, 0
		}
	}

	raw := make([]byte, ibuf.Len())
	ibuf.BPeek(raw, 0)

	consumed, state, err := m.rx.parse(raw, msg, isRequest)
	if err != nil {
		if isRequest {
			m.Flags |= FlagReqError
		} else {
			m.Flags |= FlagResError
		}
	}
	ibuf.BDel(consumed)
	if m.firstRequest && isRequest && consumed > 0 {
		m.firstRequest = false
	}
	return state, consumed
}

// FormatToBuffer consumes HTX blocks from msg, formats them to obuf
// per the Tx pipeline (spec.md 4.F "Tx pipeline"), and returns the
// number of blocks consumed.
func (m *Mux) FormatToBuffer(msg *htx.Message, obuf *buf.Buffer, isRequest bool) int {
	return m.tx.format(m, msg, obuf, isRequest)
}
