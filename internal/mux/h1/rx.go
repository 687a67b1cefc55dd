package h1

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/fastserver/lbcore/internal/htx"
)

var errMalformed = errors.New("h1: malformed message")

// rxParser walks the Rx state machine from spec.md 4.F across
// possibly-incomplete input, consuming complete lines/chunks and
// leaving a partial tail unconsumed for the next call.
type rxParser struct {
	state    RxState
	body     BodyMode
	clenLeft int64
	chunkLen int64
}

// parse consumes as much of raw as forms complete lines/chunks,
// appending HTX blocks to msg. Returns bytes consumed, resulting
// state, and an error on malformed input (caller sets REQ/RES_ERROR).
func (p *rxParser) parse(raw []byte, msg *htx.Message, isRequest bool) (int, RxState, error) {
	off := 0
	for {
		switch p.state {
		case StBefore, StHdrFirst:
			n, err := p.parseStartAndHeaders(raw[off:], msg, isRequest)
			if err != nil {
				if errors.Is(err, errNeedMore) {
					return off, p.state, nil
				}
				return off, p.state, err
			}
			off += n
			p.state = StLastLF
		case StLastLF:
			msg.AddEOH()
			switch p.body {
			case BodyCLen:
				p.state = StData
			case BodyChunked:
				p.state = StChunkSz
			case BodyTunnel:
				p.state = StTunnel
			default:
				p.state = StDone
			}
		case StData:
			n := p.clenLeft
			avail := int64(len(raw) - off)
			take := n
			if avail < take {
				take = avail
			}
			if take > 0 {
				msg.AddData(append([]byte(nil), raw[off:off+int(take)]...))
				off += int(take)
				p.clenLeft -= take
			}
			if p.clenLeft == 0 {
				if p.body == BodyChunked {
					p.state = StChunkCRLF
				} else {
					p.state = StDone
				}
			} else {
				return off, p.state, nil // need more data
			}
		case StChunkSz:
			n, size, err := parseChunkSize(raw[off:])
			if err != nil {
				if errors.Is(err, errNeedMore) {
					return off, p.state, nil
				}
				return off, p.state, err
			}
			off += n
			p.chunkLen = size
			if size == 0 {
				p.state = StTrailers
			} else {
				p.state = StData
				p.clenLeft = size
			}
		case StChunkCRLF:
			if len(raw)-off < 2 {
				return off, p.state, nil
			}
			if raw[off] != '\r' || raw[off+1] != '\n' {
				return off, p.state, errMalformed
			}
			off += 2
			p.state = StChunkSz
		case StTrailers:
			n, done, err := parseTrailers(raw[off:], msg)
			if err != nil {
				if errors.Is(err, errNeedMore) {
					return off, p.state, nil
				}
				return off, p.state, err
			}
			off += n
			if done {
				p.state = StDone
			}
		case StDone:
			msg.AddEOM()
			// rearm for the next message on a keep-alive connection
			*p = rxParser{state: StBefore}
			return off, StDone, nil
		case StTunnel:
			if len(raw)-off > 0 {
				msg.AddData(append([]byte(nil), raw[off:]...))
				off = len(raw)
			}
			return off, p.state, nil
		}
	}
}

var errNeedMore = errors.New("h1: need more data")

func indexCRLF(b []byte) int { return bytes.Index(b, []byte("\r\n")) }

// parseStartAndHeaders consumes the start line and the full header
// block up through the blank line, appending a REQ_SL/RES_SL block and
// one HDR block per header (spec.md 4.F / core/http/parser.go style
// byte-scanning, generalized to HTX block output instead of a Request
// struct).
func (p *rxParser) parseStartAndHeaders(raw []byte, msg *htx.Message, isRequest bool) (int, error) {
	lineEnd := indexCRLF(raw)
	if lineEnd == -1 {
		return 0, errNeedMore
	}
	line := raw[:lineEnd]
	off := lineEnd + 2

	if isRequest {
		sp1 := bytes.IndexByte(line, ' ')
		if sp1 == -1 {
			return 0, errMalformed
		}
		sp2 := bytes.IndexByte(line[sp1+1:], ' ')
		if sp2 == -1 {
			return 0, errMalformed
		}
		sp2 += sp1 + 1
		method := string(line[:sp1])
		path := string(line[sp1+1 : sp2])
		version := string(line[sp2+1:])
		msg.AddReqSL(method, path, version)
	} else {
		sp1 := bytes.IndexByte(line, ' ')
		if sp1 == -1 {
			return 0, errMalformed
		}
		sp2 := bytes.IndexByte(line[sp1+1:], ' ')
		version := string(line[:sp1])
		var status int
		var reason string
		if sp2 == -1 {
			status64, err := strconv.ParseInt(string(line[sp1+1:]), 10, 32)
			if err != nil {
				return 0, errMalformed
			}
			status = int(status64)
		} else {
			sp2 += sp1 + 1
			status64, err := strconv.ParseInt(string(line[sp1+1:sp2]), 10, 32)
			if err != nil {
				return 0, errMalformed
			}
			status = int(status64)
			reason = string(line[sp2+1:])
		}
		msg.AddResSL(version, status, reason)
	}

	p.body = BodyNone
	p.clenLeft = 0
	haveCLen := false

	for {
		end := indexCRLF(raw[off:])
		if end == -1 {
			return 0, errNeedMore
		}
		if end == 0 {
			off += 2
			break
		}
		hdrLine := raw[off : off+end]
		off += end + 2

		colon := bytes.IndexByte(hdrLine, ':')
		if colon == -1 {
			return 0, errMalformed
		}
		name := strings.TrimSpace(string(hdrLine[:colon]))
		value := strings.TrimSpace(string(hdrLine[colon+1:]))
		msg.AddHeader(name, value)

		lname := strings.ToLower(name)
		switch lname {
		case "content-length":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, errMalformed
			}
			p.clenLeft = n
			haveCLen = true
			p.body = BodyCLen
		case "transfer-encoding":
			if strings.EqualFold(value, "chunked") {
				p.body = BodyChunked
				haveCLen = false
			}
		}
	}

	if p.body == BodyCLen && p.clenLeft == 0 {
		p.body = BodyNone
	}
	_ = haveCLen
	return off, nil
}

// parseChunkSize parses one "<hex>[;ext]\r\n" chunk-size line.
func parseChunkSize(raw []byte) (int, int64, error) {
	end := indexCRLF(raw)
	if end == -1 {
		return 0, 0, errNeedMore
	}
	line := raw[:end]
	if i := bytes.IndexByte(line, ';'); i != -1 {
		line = line[:i]
	}
	size, err := strconv.ParseInt(strings.TrimSpace(string(line)), 16, 64)
	if err != nil {
		return 0, 0, errMalformed
	}
	return end + 2, size, nil
}

// parseTrailers consumes zero or more trailer header lines through the
// terminating blank line, returning done=true once the blank line is
// seen (spec.md 4.F TRAILERS state).
func parseTrailers(raw []byte, msg *htx.Message) (int, bool, error) {
	off := 0
	for {
		end := indexCRLF(raw[off:])
		if end == -1 {
			return 0, false, errNeedMore
		}
		if end == 0 {
			off += 2
			msg.AddEOT()
			return off, true, nil
		}
		hdrLine := raw[off : off+end]
		off += end + 2
		colon := bytes.IndexByte(hdrLine, ':')
		if colon == -1 {
			return 0, false, errMalformed
		}
		name := strings.TrimSpace(string(hdrLine[:colon]))
		value := strings.TrimSpace(string(hdrLine[colon+1:]))
		msg.AddTrailer(name, value)
	}
}
