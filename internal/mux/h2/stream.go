package h2

import "errors"

// StreamState names the client-initiated stream lifecycle (spec.md
// 4.G "Stream state transitions").
type StreamState int

const (
	StIdle StreamState = iota
	StOpen
	StHRem // half-closed, remote end sent ES
	StHLoc // half-closed, local end sent ES
	StClosed
	StError
)

// Stream flag bits.
type StreamFlag uint32

const (
	SFEndStreamRecv StreamFlag = 1 << iota // ES_RCVD
	SFEndStreamSent
	SFTrailersSeen
)

var ErrStreamClosed = errors.New("h2: stream closed")

// Stream is one HTTP/2 stream's state, including its flow-control
// windows and send-list membership (spec.md 4.G "Flow control",
// "Stream send lists").
type Stream struct {
	ID    uint32
	State StreamState
	Flags StreamFlag

	// sws is the peer-advertised offset from miw; effective send
	// window for this stream is miw + sws (spec.md 4.G).
	sws int64

	// rcvdS accumulates bytes received on this stream since the last
	// WINDOW_UPDATE we sent for it.
	rcvdS int64

	inFctl   bool
	inSend   bool
	inBlocked bool
}

// RecvHeaders transitions IDLE -> OPEN on first HEADERS, optionally
// applying end-stream.
func (s *Stream) RecvHeaders(endStream bool) error {
	if s.State != StIdle && s.State != StOpen {
		return ErrStreamClosed
	}
	if s.State == StIdle {
		s.State = StOpen
	}
	if endStream {
		return s.recvEndStream()
	}
	return nil
}

func (s *Stream) recvEndStream() error {
	s.Flags |= SFEndStreamRecv
	switch s.State {
	case StOpen:
		s.State = StHRem
	case StHLoc:
		s.State = StClosed
	}
	return nil
}

// SendEndStream transitions toward HLOC/CLOSED on the local side
// emitting END_STREAM.
func (s *Stream) SendEndStream() {
	s.Flags |= SFEndStreamSent
	switch s.State {
	case StOpen:
		s.State = StHLoc
	case StHRem:
		s.State = StClosed
	}
}

// RecvRST moves the stream straight to CLOSED from any non-closed
// state (spec.md 4.G "OPEN/HREM/HLOC -- recv/send RST -> CLOSED").
func (s *Stream) RecvRST() { s.State = StClosed }

// SendRST is symmetric with RecvRST.
func (s *Stream) SendRST() { s.State = StClosed }

// Errored marks the stream as having hit a protocol error; the next
// action is to send RST_STREAM and move to CLOSED (spec.md 4.G "Any
// (not CLOSED) -- protocol err -> ERROR -> send RST -> CLOSED").
func (s *Stream) Errored() {
	if s.State != StClosed {
		s.State = StError
	}
}

// EffectiveWindow returns the stream's current send window given the
// connection's negotiated initial window size miw.
func (s *Stream) EffectiveWindow(miw int64) int64 { return miw + s.sws }
