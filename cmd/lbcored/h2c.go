package main

import (
	"bytes"
	"io"
	"net"

	"github.com/fastserver/lbcore/internal/htx"
	"github.com/fastserver/lbcore/internal/mux/h2"
)

// serveH2C drives one prior-knowledge H2C connection: the preface
// itself was already consumed from the connection-level read buffer
// by the caller, so any bytes read past it (already buffered, past
// the 24-byte preface) are replayed via leftover before falling back
// to nc for the rest of the stream. It exchanges an initial SETTINGS
// frame, then loops reading frame headers/payloads and dispatching
// each through the demux, answering completed requests with a
// HEADERS+DATA response (spec.md 4.G's server responsibilities).
func serveH2C(s *Server, nc net.Conn, tid int, leftover []byte) {
	r := io.Reader(nc)
	if len(leftover) > 0 {
		r = io.MultiReader(bytes.NewReader(leftover), nc)
	}

	c := h2.NewConn(false)
	if _, err := nc.Write(h2.EncodeSettings(c.DefaultSettings())); err != nil {
		return
	}

	hdr := make([]byte, 9)
	for {
		if _, err := io.ReadFull(r, hdr); err != nil {
			return
		}
		fh, err := h2.ParseFrameHeader(hdr, 16777215)
		if err != nil {
			return
		}
		payload := make([]byte, fh.Length)
		if fh.Length > 0 {
			if _, err := io.ReadFull(r, payload); err != nil {
				return
			}
		}

		res := c.HandleFrame(fh, payload)
		if res.ConnError != nil {
			s.activity.For(tid).ConnDead.Add(1)
			return
		}
		if res.SendACK {
			ack := h2.FrameHeader{Type: h2.FrameSettings, Flags: h2.FlagACK}
			var ackPayload []byte
			if fh.Type == h2.FramePing {
				ack = h2.FrameHeader{Length: uint32(len(payload)), Type: h2.FramePing, Flags: h2.FlagACK}
				ackPayload = payload
			}
			ackHdr := make([]byte, 9)
			h2.WriteFrameHeader(ackHdr, ack)
			if _, err := nc.Write(append(ackHdr, ackPayload...)); err != nil {
				return
			}
		}
		if res.Msg != nil {
			if err := respondH2(nc, c, res.StreamID, res.Msg); err != nil {
				return
			}
		}
	}
}

// respondH2 encodes and writes a fixed small 200 response on the
// given stream, mirroring buildResponse's H1 counterpart.
func respondH2(nc net.Conn, c *h2.Conn, streamID uint32, req *htx.Message) error {
	headerBlock, err := c.EncodeHeaders(200, []htx.Header{
		{Name: "content-type", Value: "text/plain"},
	})
	if err != nil {
		return err
	}

	hh := make([]byte, 9)
	h2.WriteFrameHeader(hh, h2.FrameHeader{
		Length:   uint32(len(headerBlock)),
		Type:     h2.FrameHeaders,
		Flags:    h2.FlagEndHeaders,
		StreamID: streamID,
	})
	if _, err := nc.Write(append(hh, headerBlock...)); err != nil {
		return err
	}

	body := []byte("ok")
	dh := make([]byte, 9)
	h2.WriteFrameHeader(dh, h2.FrameHeader{
		Length:   uint32(len(body)),
		Type:     h2.FrameData,
		Flags:    h2.FlagEndStream,
		StreamID: streamID,
	})
	_, err = nc.Write(append(dh, body...))
	return err
}
