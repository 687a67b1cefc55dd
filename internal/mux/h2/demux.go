package h2

import (
	"errors"

	"github.com/fastserver/lbcore/internal/htx"
)

// DemuxResult tells the caller what happened processing one frame and
// whether the demux loop should continue or has produced a complete
// message.
type DemuxResult struct {
	StreamID     uint32
	Msg          *htx.Message // non-nil when a message completed
	SendACK      bool         // ACK to send: SETTINGS ACK, or for a PING a PING ACK echoing its payload
	SendWindowUpdateConn uint32
	SendWindowUpdateStream uint32
	RSTStreamID  uint32
	RSTCode      ErrorCode
	ConnError    error
}

// HandleFrame advances the demux state machine by one frame: it
// implements spec.md 4.G steps FRAME_H through FRAME_E for the frame
// whose header is h and whose (already depadded) payload is payload.
// A zero-length return with ConnError set signals GOAWAY should be
// sent and the connection moved to ERROR2.
func (c *Conn) HandleFrame(h FrameHeader, payload []byte) DemuxResult {
	switch h.Type {
	case FrameSettings:
		return c.handleSettings(h, payload)
	case FrameHeaders:
		return c.handleHeaders(h, payload)
	case FrameContinuation:
		return c.handleContinuation(h, payload)
	case FrameData:
		return c.handleData(h, payload)
	case FrameWindowUpdate:
		return c.handleWindowUpdate(h, payload)
	case FrameRSTStream:
		return c.handleRSTStream(h, payload)
	case FrameGoAway:
		c.st0 = StError2
		return DemuxResult{}
	case FramePing:
		return DemuxResult{SendACK: h.Flags&FlagACK == 0}
	case FramePriority:
		return DemuxResult{} // acknowledged but not acted on in this core
	default:
		return DemuxResult{} // unknown frame type: skip silently per spec.md step 5
	}
}

func (c *Conn) handleSettings(h FrameHeader, payload []byte) DemuxResult {
	if h.Flags&FlagACK != 0 {
		return DemuxResult{}
	}
	settings, err := ParseSettings(payload)
	if err != nil {
		return DemuxResult{ConnError: err}
	}
	if err := c.ApplySettings(settings); err != nil {
		return DemuxResult{ConnError: err}
	}
	return DemuxResult{SendACK: true}
}

func (c *Conn) handleHeaders(h FrameHeader, payload []byte) DemuxResult {
	padLen, body, err := DecodePadLength(payload, h.Flags)
	_ = padLen
	if err != nil {
		return DemuxResult{ConnError: err}
	}
	if h.Flags&FlagPriority != 0 && len(body) >= 5 {
		body = body[5:] // skip stream dependency + weight, not modeled
	}

	endStream := h.Flags&FlagEndStream != 0
	if h.Flags&FlagEndHeaders == 0 {
		c.BeginFolding(h.StreamID, body, endStream)
		return DemuxResult{StreamID: h.StreamID}
	}
	return c.finishHeaders(h.StreamID, body, endStream)
}

func (c *Conn) handleContinuation(h FrameHeader, payload []byte) DemuxResult {
	if !c.IsFolding() {
		return DemuxResult{ConnError: errors.New("h2: unexpected CONTINUATION")}
	}
	if err := c.FoldContinuation(h.StreamID, payload); err != nil {
		return DemuxResult{ConnError: err}
	}
	if h.Flags&FlagEndHeaders == 0 {
		return DemuxResult{StreamID: h.StreamID}
	}
	full, endStream := c.FinishFolding()
	return c.finishHeaders(h.StreamID, full, endStream)
}

func (c *Conn) finishHeaders(sid uint32, payload []byte, endStream bool) DemuxResult {
	st, err := c.GetOrCreateStream(sid)
	if err != nil {
		return DemuxResult{ConnError: err}
	}

	// a HEADERS block arriving after the stream already saw end-stream
	// headers is a trailers block (spec.md 4.G "Trailers").
	if st.Flags&SFEndStreamRecv != 0 || (st.State != StIdle && st.State != StOpen && st.State != StHLoc) {
		msg := htx.New()
		hdrs, err := c.dec.DecodeFull(payload)
		if err != nil {
			return DemuxResult{ConnError: err}
		}
		for _, hf := range hdrs {
			msg.AddTrailer(hf.Name, hf.Value)
		}
		msg.AddEOM()
		return DemuxResult{StreamID: sid, Msg: msg}
	}

	msg := htx.New()
	if err := c.RecvHeadersPayload(payload, msg, endStream); err != nil {
		return DemuxResult{RSTStreamID: sid, RSTCode: ErrCompression}
	}
	if err := st.RecvHeaders(endStream); err != nil {
		return DemuxResult{RSTStreamID: sid, RSTCode: ErrStreamClosedCode}
	}
	return DemuxResult{StreamID: sid, Msg: msg}
}

func (c *Conn) handleData(h FrameHeader, payload []byte) DemuxResult {
	_, body, err := DecodePadLength(payload, h.Flags)
	if err != nil {
		return DemuxResult{ConnError: err}
	}
	st, ok := c.streams[h.StreamID]
	if !ok {
		return DemuxResult{RSTStreamID: h.StreamID, RSTCode: ErrStreamClosedCode}
	}
	c.RecvDataWindow(st, int64(len(payload)))

	msg := htx.New()
	if len(body) > 0 {
		msg.AddData(append([]byte(nil), body...))
	}
	endStream := h.Flags&FlagEndStream != 0
	if endStream {
		st.recvEndStream()
		msg.AddEOM()
	}

	connUpd, streamUpd := c.PendingWindowUpdates(st)
	return DemuxResult{
		StreamID:               h.StreamID,
		Msg:                    msg,
		SendWindowUpdateConn:   connUpd,
		SendWindowUpdateStream: streamUpd,
	}
}

func (c *Conn) handleWindowUpdate(h FrameHeader, payload []byte) DemuxResult {
	if len(payload) != 4 {
		return DemuxResult{ConnError: errors.New("h2: malformed WINDOW_UPDATE")}
	}
	inc := int64(uint32(payload[0])<<24|uint32(payload[1])<<16|uint32(payload[2])<<8|uint32(payload[3])) & 0x7FFFFFFF
	if h.StreamID == 0 {
		c.mws += inc
		c.drainFctl()
	} else if st, ok := c.streams[h.StreamID]; ok {
		st.sws += inc
		if st.inBlocked && st.EffectiveWindow(c.peerInitialWindow) > 0 {
			c.moveToSend(st)
		}
	}
	return DemuxResult{}
}

func (c *Conn) handleRSTStream(h FrameHeader, payload []byte) DemuxResult {
	if st, ok := c.streams[h.StreamID]; ok {
		st.RecvRST()
	}
	return DemuxResult{}
}

// drainFctl moves every stream waiting on the connection window into
// send_list, since the window just opened (spec.md 4.G "Stream send
// lists").
func (c *Conn) drainFctl() {
	if c.mws <= 0 {
		return
	}
	pending := c.fctlList
	c.fctlList = nil
	for _, st := range pending {
		st.inFctl = false
		c.moveToSend(st)
	}
}

// SendPass drains fctl_list first, then send_list, up to budget
// streams total, returning the streams chosen to send this pass
// (spec.md 4.G "On each send pass, drain fctl first ... then send").
func (c *Conn) SendPass(budget int) []*Stream {
	var chosen []*Stream
	for len(c.fctlList) > 0 && len(chosen) < budget {
		st := c.fctlList[0]
		c.fctlList = c.fctlList[1:]
		chosen = append(chosen, st)
	}
	for len(c.sendList) > 0 && len(chosen) < budget {
		st := c.sendList[0]
		c.sendList = c.sendList[1:]
		st.inSend = false
		chosen = append(chosen, st)
	}
	return chosen
}
