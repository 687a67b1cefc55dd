// Package h2 implements the HTTP/2 multiplexer: frame header parsing,
// the preface/SETTINGS handshake, HEADERS/CONTINUATION folding, HPACK
// decode via golang.org/x/net/http2/hpack, the stream state machine,
// flow control, and GOAWAY (spec.md 4.G).
package h2

import (
	"encoding/binary"
	"errors"
)

// FrameType is the 8-bit frame type field (RFC 7540 §11.2).
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9
)

// Frame flags, shared bit positions reinterpreted per frame type.
const (
	FlagEndStream  uint8 = 0x1
	FlagEndHeaders uint8 = 0x4
	FlagPadded     uint8 = 0x8
	FlagPriority   uint8 = 0x20
	FlagACK        uint8 = 0x1
)

const frameHeaderLen = 9

const (
	defaultMaxFrameSize  = 16384
	maxMaxFrameSize      = 16777215
	defaultHeaderTable   = 4096
	defaultInitialWindow = 65535
	defaultMaxConcurrent = 100
)

var (
	ErrShortFrameHeader = errors.New("h2: short frame header")
	ErrFrameTooLarge    = errors.New("h2: frame exceeds max_frame_size")
	ErrSettingsBadSID   = errors.New("h2: SETTINGS frame must have stream id 0")
	ErrBadPreface       = errors.New("h2: bad connection preface")
)

// FrameHeader is the decoded 9-byte frame header (spec.md 4.G "Frame
// header").
type FrameHeader struct {
	Length uint32 // 24 bits
	Type   FrameType
	Flags  uint8
	StreamID uint32 // 31 bits, top reserved bit masked off
}

// ParseFrameHeader decodes the 9-byte header at the front of b.
func ParseFrameHeader(b []byte, maxFrameSize uint32) (FrameHeader, error) {
	if len(b) < frameHeaderLen {
		return FrameHeader{}, ErrShortFrameHeader
	}
	length := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	typ := FrameType(b[3])
	flags := b[4]
	sid := binary.BigEndian.Uint32(b[5:9]) & 0x7FFFFFFF

	if length > maxFrameSize {
		return FrameHeader{}, ErrFrameTooLarge
	}
	if typ == FrameSettings && sid != 0 {
		return FrameHeader{}, ErrSettingsBadSID
	}
	return FrameHeader{Length: length, Type: typ, Flags: flags, StreamID: sid}, nil
}

// WriteFrameHeader encodes h into the first 9 bytes of dst, which must
// be at least 9 bytes long.
func WriteFrameHeader(dst []byte, h FrameHeader) {
	dst[0] = byte(h.Length >> 16)
	dst[1] = byte(h.Length >> 8)
	dst[2] = byte(h.Length)
	dst[3] = byte(h.Type)
	dst[4] = h.Flags
	binary.BigEndian.PutUint32(dst[5:9], h.StreamID&0x7FFFFFFF)
}

// Preface is the 24-byte client connection preface (spec.md 4.G
// "Connection preface").
var Preface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// DecodePadLength removes PADDED-frame padding from payload. When
// FlagPadded is set, the first byte is the pad length; it returns that
// length and the payload with the pad-length byte and the trailing
// padding stripped. Without FlagPadded it returns 0 and payload as is.
func DecodePadLength(payload []byte, flags uint8) (padLen int, rest []byte, err error) {
	if flags&FlagPadded == 0 {
		return 0, payload, nil
	}
	if len(payload) < 1 {
		return 0, nil, ErrShortFrameHeader
	}
	padLen = int(payload[0])
	rest = payload[1:]
	if padLen > len(rest) {
		return 0, nil, ErrFrameTooLarge
	}
	return padLen, rest[:len(rest)-padLen], nil
}

// SettingID identifies a SETTINGS parameter (spec.md 6).
type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

// Setting is one decoded SETTINGS entry.
type Setting struct {
	ID    SettingID
	Value uint32
}

// ParseSettings decodes a SETTINGS payload (must be a multiple of 6
// bytes) into individual entries.
func ParseSettings(payload []byte) ([]Setting, error) {
	if len(payload)%6 != 0 {
		return nil, errors.New("h2: malformed SETTINGS payload")
	}
	out := make([]Setting, 0, len(payload)/6)
	for i := 0; i+6 <= len(payload); i += 6 {
		id := SettingID(binary.BigEndian.Uint16(payload[i : i+2]))
		val := binary.BigEndian.Uint32(payload[i+2 : i+6])
		out = append(out, Setting{ID: id, Value: val})
	}
	return out, nil
}

// EncodeSettings renders a slice of settings into a SETTINGS frame
// payload (header not included).
func EncodeSettings(settings []Setting) []byte {
	out := make([]byte, 0, len(settings)*6)
	for _, s := range settings {
		var tmp [6]byte
		binary.BigEndian.PutUint16(tmp[0:2], uint16(s.ID))
		binary.BigEndian.PutUint32(tmp[2:6], s.Value)
		out = append(out, tmp[:]...)
	}
	return out
}
