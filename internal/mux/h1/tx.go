package h1

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fastserver/lbcore/internal/buf"
	"github.com/fastserver/lbcore/internal/htx"
)

// txFormatter renders HTX blocks back to wire bytes (spec.md 4.F "Tx
// pipeline").
type txFormatter struct {
	chunked bool
}

// format consumes every block currently in msg and writes it to obuf,
// returning how many blocks were consumed. It drops H2-incompatible
// pseudo-header-shaped tokens defensively (already filtered upstream
// on an H2-originated message, kept here for trans-protocol
// correctness per spec.md 4.F).
func (f *txFormatter) format(m *Mux, msg *htx.Message, obuf *buf.Buffer, isRequest bool) int {
	consumed := 0
	for {
		b, ok := msg.PopFront()
		if !ok {
			break
		}
		consumed++
		switch b.Type {
		case htx.ReqSL:
			line := fmt.Sprintf("%s %s %s\r\n", b.StartLine.Method, b.StartLine.Path, b.StartLine.Version)
			obuf.BPut([]byte(line))
		case htx.ResSL:
			line := fmt.Sprintf("%s %d %s\r\n", b.StartLine.Version, b.StartLine.Status, b.StartLine.Reason)
			obuf.BPut([]byte(line))
		case htx.Hdr:
			if strings.HasPrefix(b.Header.Name, ":") {
				continue // H2 pseudo-header leaked through; drop for H1 correctness
			}
			name := b.Header.Name
			if m.CaseAdjust != nil {
				if adj, ok := m.CaseAdjust[strings.ToLower(name)]; ok {
					name = adj
				}
			}
			obuf.BPut([]byte(name + ": " + b.Header.Value + "\r\n"))
		case htx.EOH:
			f.emitConnectionHeader(m, obuf)
			if f.chunked {
				obuf.BPut([]byte("Transfer-Encoding: chunked\r\n"))
			}
			if isRequest && m.Flags&FlagHaveSrvName == 0 {
				m.Flags |= FlagHaveSrvName
			}
			obuf.BPut([]byte("\r\n"))
		case htx.Data:
			if f.chunked {
				sizeLine := strconv.FormatInt(int64(len(b.Data)), 16) + "\r\n"
				obuf.BPut([]byte(sizeLine))
				obuf.BPut(b.Data)
				obuf.BPut([]byte("\r\n"))
			} else {
				obuf.BPut(b.Data)
			}
		case htx.Tlr:
			obuf.BPut([]byte(b.Header.Name + ": " + b.Header.Value + "\r\n"))
		case htx.EOT:
			// trailers end is folded into EOM's "0\r\n\r\n" terminator
		case htx.EOM:
			if f.chunked {
				obuf.BPut([]byte("0\r\n\r\n"))
			}
			m.Flags &^= FlagHaveOConn // the next message gets its own Connection header
		}
	}
	return consumed
}

// emitConnectionHeader writes the Connection header implied by Mode,
// once per message, per spec.md 4.F "computes Connection: per WANT_*
// decision".
func (f *txFormatter) emitConnectionHeader(m *Mux, obuf *buf.Buffer) {
	if m.Flags&FlagHaveOConn != 0 {
		return
	}
	m.Flags |= FlagHaveOConn
	switch m.Mode {
	case WantCLO:
		obuf.BPut([]byte("Connection: close\r\n"))
	case WantKAL:
		obuf.BPut([]byte("Connection: keep-alive\r\n"))
	case WantTUN:
		// tunnel mode: omit Connection header entirely
	}
}

// SetChunked arms or disarms chunked body emission, chosen by the
// caller once it knows whether a content-length is available (spec.md
// 4.F "inserts Transfer-Encoding: chunked when no length is known and
// version >= 1.1").
func (m *Mux) SetChunked(v bool) { m.tx.chunked = v }
