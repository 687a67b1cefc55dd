package h2

import (
	"bytes"
	"encoding/binary"
	"errors"

	"golang.org/x/net/http2/hpack"

	"github.com/fastserver/lbcore/internal/htx"
)

// ErrorCode is the RFC 7540 §11.4 error code family (spec.md 7).
type ErrorCode uint32

const (
	ErrNone              ErrorCode = 0x0
	ErrProtocol          ErrorCode = 0x1
	ErrInternal          ErrorCode = 0x2
	ErrFlowControl       ErrorCode = 0x3
	ErrSettingsTimeout   ErrorCode = 0x4
	ErrStreamClosedCode  ErrorCode = 0x5
	ErrFrameSize         ErrorCode = 0x6
	ErrRefusedStream     ErrorCode = 0x7
	ErrCancel            ErrorCode = 0x8
	ErrCompression       ErrorCode = 0x9
	ErrConnect           ErrorCode = 0xA
	ErrEnhanceYourCalm   ErrorCode = 0xB
	ErrInadequateSecurity ErrorCode = 0xC
	ErrHTTP11Required    ErrorCode = 0xD
)

// DemuxState is the connection-wide state named in spec.md 4.G
// "Demux loop".
type DemuxState int

const (
	StFrameH DemuxState = iota
	StFrameP
	StFrameA
	StFrameE
	StError
	StError2
)

const maxHTTPHdr = 128

// Conn holds one HTTP/2 connection's full multiplexer state: demux
// state, negotiated settings, flow-control windows, HPACK codec pair,
// streams, and the three send lists (spec.md 4.G).
type Conn struct {
	IsBackend bool

	st0 DemuxState

	// negotiated settings (ours and peer's)
	headerTableSize      uint32
	initialWindowSize    int64 // miw: our advertised, applies to new streams
	maxConcurrentStreams uint32
	maxFrameSize         uint32

	peerInitialWindow int64

	mws int64 // our connection send window toward peer

	connRcvd int64 // bytes received on the connection since last WINDOW_UPDATE
	firstWindowBump bool

	streams   map[uint32]*Stream
	lastSID   uint32 // highest client-initiated id seen
	nextLocal uint32 // next id we allocate for server-initiated (push, unused here)

	fctlList    []*Stream
	sendList    []*Stream
	blockedList []*Stream

	enc *hpack.Encoder
	encBuf bytes.Buffer
	dec *hpack.Decoder

	// continuation folding: accumulated HEADERS payload across
	// CONTINUATION frames for the stream currently being assembled.
	foldingSID uint32
	folding    []byte
	foldingEndStream bool

	goAwaySent bool
	lastSIDPromised uint32
}

// NewConn creates a connection with RFC-default settings (spec.md 6).
func NewConn(isBackend bool) *Conn {
	c := &Conn{
		IsBackend:            isBackend,
		headerTableSize:      defaultHeaderTable,
		initialWindowSize:    defaultInitialWindow,
		maxConcurrentStreams: defaultMaxConcurrent,
		maxFrameSize:         defaultMaxFrameSize,
		peerInitialWindow:    defaultInitialWindow,
		mws:                  defaultInitialWindow,
		streams:              make(map[uint32]*Stream),
	}
	c.enc = hpack.NewEncoder(&c.encBuf)
	c.dec = hpack.NewDecoder(defaultHeaderTable, nil)
	return c
}

// DefaultSettings returns the SETTINGS entries this connection sends
// at handshake time (spec.md 6 dynamic knobs).
func (c *Conn) DefaultSettings() []Setting {
	return []Setting{
		{ID: SettingHeaderTableSize, Value: c.headerTableSize},
		{ID: SettingMaxConcurrentStreams, Value: c.maxConcurrentStreams},
		{ID: SettingInitialWindowSize, Value: uint32(c.initialWindowSize)},
		{ID: SettingMaxFrameSize, Value: c.maxFrameSize},
	}
}

// ApplySettings applies peer SETTINGS, updating derived state. A
// changed INITIAL_WINDOW_SIZE adjusts every stream's effective window
// and wakes any that become unblocked (spec.md 4.G "SETTINGS change of
// INITIAL_WINDOW_SIZE").
func (c *Conn) ApplySettings(settings []Setting) error {
	for _, s := range settings {
		switch s.ID {
		case SettingHeaderTableSize:
			c.dec.SetMaxDynamicTableSize(s.Value)
		case SettingInitialWindowSize:
			delta := int64(s.Value) - c.peerInitialWindow
			c.peerInitialWindow = int64(s.Value)
			if delta != 0 {
				c.adjustStreamWindows(delta)
			}
		case SettingMaxFrameSize:
			if s.Value < defaultMaxFrameSize || s.Value > maxMaxFrameSize {
				return errors.New("h2: invalid max_frame_size")
			}
			c.maxFrameSize = s.Value
		case SettingMaxConcurrentStreams:
			c.maxConcurrentStreams = s.Value
		}
	}
	return nil
}

func (c *Conn) adjustStreamWindows(delta int64) {
	// peerInitialWindow already carries delta, and EffectiveWindow adds
	// it to each stream's sws, so sws itself stays as it is.
	for _, st := range c.streams {
		if st.inBlocked && st.EffectiveWindow(c.peerInitialWindow) > 0 {
			c.moveToSend(st)
		}
	}
}

// GetOrCreateStream returns the stream for sid, creating it (in IDLE)
// if this is the first frame referencing it, and updates lastSID.
// Per spec.md 8 invariant 4, ids must be odd and strictly increasing
// for client-initiated streams.
func (c *Conn) GetOrCreateStream(sid uint32) (*Stream, error) {
	if st, ok := c.streams[sid]; ok {
		return st, nil
	}
	if !c.IsBackend {
		if sid%2 == 0 || sid <= c.lastSID {
			return nil, errors.New("h2: non-monotonic or even client stream id")
		}
		c.lastSID = sid
	}
	st := &Stream{ID: sid, State: StIdle, sws: 0}
	c.streams[sid] = st
	return st, nil
}

func (c *Conn) moveToSend(st *Stream) {
	st.inBlocked = false
	st.inSend = true
	c.sendList = append(c.sendList, st)
}

// RecvHeadersPayload decodes an assembled (post-folding) HEADERS
// payload into msg via HPACK, producing REQ_SL + HDR + EOH (+ EOM if
// end-stream), per spec.md 4.G "HPACK decode" and the REQ_SL synthesis
// implied by scenario 2.
func (c *Conn) RecvHeadersPayload(payload []byte, msg *htx.Message, endStream bool) error {
	hdrs, err := c.dec.DecodeFull(payload)
	if err != nil {
		return err // connection error: HPACK state is desynchronized
	}
	if len(hdrs) > maxHTTPHdr {
		return errors.New("h2: too many headers")
	}

	var method, path, authority, scheme string
	var regular []hpack.HeaderField
	for _, h := range hdrs {
		switch h.Name {
		case ":method":
			method = h.Value
		case ":path":
			path = h.Value
		case ":authority":
			authority = h.Value
		case ":scheme":
			scheme = h.Value
		default:
			regular = append(regular, h)
		}
	}
	_ = scheme
	msg.AddReqSL(method, path, "HTTP/1.1")
	if authority != "" {
		msg.AddHeader("host", authority)
	}
	for _, h := range regular {
		msg.AddHeader(h.Name, h.Value)
	}
	msg.AddEOH()
	if endStream {
		msg.AddEOM()
	}
	return nil
}

// EncodeHeaders renders a response header block into HPACK: a :status
// pseudo-header from status, followed by headers in order. No request
// pseudo-headers (:method/:path/:authority/:scheme) are emitted.
func (c *Conn) EncodeHeaders(status int, headers []htx.Header) ([]byte, error) {
	c.encBuf.Reset()
	if err := c.enc.WriteField(hpack.HeaderField{Name: ":status", Value: itoa(status)}); err != nil {
		return nil, err
	}
	for _, h := range headers {
		if err := c.enc.WriteField(hpack.HeaderField{Name: h.Name, Value: h.Value}); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), c.encBuf.Bytes()...), nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// BeginFolding starts accumulating a HEADERS payload that lacked
// END_HEADERS, per spec.md 4.G "HEADERS / CONTINUATION folding".
func (c *Conn) BeginFolding(sid uint32, payload []byte, endStream bool) {
	c.foldingSID = sid
	c.folding = append([]byte(nil), payload...)
	c.foldingEndStream = endStream
}

// FoldContinuation appends a CONTINUATION frame's payload to the
// in-progress fold. Returns an error if sid doesn't match the frame
// under assembly (connection error per spec.md 4.G).
func (c *Conn) FoldContinuation(sid uint32, payload []byte) error {
	if sid != c.foldingSID {
		return errors.New("h2: CONTINUATION for wrong stream")
	}
	c.folding = append(c.folding, payload...)
	return nil
}

// FinishFolding returns the aggregate payload and clears folding state.
func (c *Conn) FinishFolding() ([]byte, bool) {
	out := c.folding
	endStream := c.foldingEndStream
	c.folding = nil
	c.foldingSID = 0
	return out, endStream
}

// IsFolding reports whether a HEADERS/CONTINUATION aggregate is in
// progress.
func (c *Conn) IsFolding() bool { return c.folding != nil }

// RecvDataWindow decrements both the connection and stream windows as
// DATA arrives, and accumulates the bytes toward a future
// WINDOW_UPDATE (spec.md 4.G "Flow control").
func (c *Conn) RecvDataWindow(st *Stream, n int64) {
	c.connRcvd += n
	st.rcvdS += n
}

// PendingWindowUpdates returns (connUpdate, streamUpdate) to emit for
// the connection and for st, per spec.md 4.G: "the
// demuxer emits WINDOW_UPDATE for the connection when rcvd_c > 0 and
// (on first update) enlarges its advertised connection window by
// 2^31-1-65535".
func (c *Conn) PendingWindowUpdates(st *Stream) (connUpdate uint32, streamUpdate uint32) {
	if c.connRcvd > 0 {
		connUpdate = uint32(c.connRcvd)
		if !c.firstWindowBump {
			connUpdate += (1<<31 - 1) - 65535
			c.firstWindowBump = true
		}
		c.connRcvd = 0
	}
	if st != nil && st.rcvdS > 0 {
		streamUpdate = uint32(st.rcvdS)
		st.rcvdS = 0
	}
	return
}

// GoAway marks the connection as going away with lastSIDPromised equal
// to the highest stream id we still promise to process, waking every
// stream with a higher id (spec.md 4.G "GOAWAY").
func (c *Conn) GoAway(code ErrorCode) (lastSID uint32) {
	c.goAwaySent = true
	c.lastSIDPromised = c.lastSID
	for sid, st := range c.streams {
		if sid > c.lastSIDPromised {
			st.Errored()
		}
	}
	c.st0 = StError2
	return c.lastSIDPromised
}

// EncodeGoAwayPayload renders the 8-byte-plus-debug GOAWAY payload.
func EncodeGoAwayPayload(lastSID uint32, code ErrorCode, debug []byte) []byte {
	out := make([]byte, 8+len(debug))
	binary.BigEndian.PutUint32(out[0:4], lastSID&0x7FFFFFFF)
	binary.BigEndian.PutUint32(out[4:8], uint32(code))
	copy(out[8:], debug)
	return out
}
