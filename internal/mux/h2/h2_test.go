package h2

import (
	"bytes"
	"testing"

	"golang.org/x/net/http2/hpack"

	"github.com/fastserver/lbcore/internal/htx"
)

func encodeHeaders(t *testing.T, fields []hpack.HeaderField) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	for _, f := range fields {
		if err := enc.WriteField(f); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}
	return buf.Bytes()
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	h := FrameHeader{Length: 10, Type: FrameHeaders, Flags: FlagEndHeaders | FlagEndStream, StreamID: 1}
	buf := make([]byte, 9)
	WriteFrameHeader(buf, h)
	got, err := ParseFrameHeader(buf, defaultMaxFrameSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestFrameTooLarge(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF, 0, 0, 0, 0, 0, 0}
	if _, err := ParseFrameHeader(buf, defaultMaxFrameSize); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestScenarioTwoSingleGET(t *testing.T) {
	c := NewConn(false)
	payload := encodeHeaders(t, []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "x"},
		{Name: ":path", Value: "/"},
	})

	h := FrameHeader{Length: uint32(len(payload)), Type: FrameHeaders, Flags: FlagEndStream | FlagEndHeaders, StreamID: 1}
	res := c.HandleFrame(h, payload)
	if res.ConnError != nil {
		t.Fatalf("unexpected conn error: %v", res.ConnError)
	}
	if res.Msg == nil {
		t.Fatalf("expected a completed message")
	}

	st := c.streams[1]
	if st == nil || st.State != StHRem {
		t.Fatalf("expected stream 1 in HREM, got %+v", st)
	}
	if st.Flags&SFEndStreamRecv == 0 {
		t.Fatalf("expected ES_RCVD flag")
	}

	want := []htx.BlockType{htx.ReqSL, htx.Hdr, htx.EOH, htx.EOM}
	if res.Msg.Len() != len(want) {
		t.Fatalf("expected %d blocks, got %d: %+v", len(want), res.Msg.Len(), res.Msg.Blocks)
	}
	if res.Msg.Blocks[0].StartLine.Method != "GET" || res.Msg.Blocks[0].StartLine.Path != "/" {
		t.Fatalf("unexpected start line: %+v", res.Msg.Blocks[0].StartLine)
	}
}

func TestContinuationFolding(t *testing.T) {
	c := NewConn(false)
	full := encodeHeaders(t, []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: ":authority", Value: "x"},
	})
	// split into two pieces to exercise folding
	split := len(full) / 2
	h1 := FrameHeader{Length: uint32(split), Type: FrameHeaders, Flags: FlagEndStream, StreamID: 3}
	res1 := c.HandleFrame(h1, full[:split])
	if res1.ConnError != nil || res1.Msg != nil {
		t.Fatalf("expected folding to continue, got %+v", res1)
	}
	h2f := FrameHeader{Length: uint32(len(full) - split), Type: FrameContinuation, Flags: FlagEndHeaders, StreamID: 3}
	res2 := c.HandleFrame(h2f, full[split:])
	if res2.ConnError != nil {
		t.Fatalf("unexpected error: %v", res2.ConnError)
	}
	if res2.Msg == nil {
		t.Fatalf("expected message after END_HEADERS")
	}
}

func TestContinuationWrongStreamIsConnError(t *testing.T) {
	c := NewConn(false)
	c.BeginFolding(1, []byte("partial"), false)
	h := FrameHeader{Type: FrameContinuation, StreamID: 2, Flags: FlagEndHeaders}
	res := c.HandleFrame(h, []byte("x"))
	if res.ConnError == nil {
		t.Fatalf("expected connection error for mismatched stream id")
	}
}

func TestStreamIDMonotonicity(t *testing.T) {
	c := NewConn(false)
	if _, err := c.GetOrCreateStream(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.GetOrCreateStream(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.GetOrCreateStream(3); err != nil {
		t.Fatalf("re-fetching same id should not error: %v", err)
	}
	if _, err := c.GetOrCreateStream(2); err == nil {
		t.Fatalf("expected error for non-monotonic even id")
	}
}

func TestSettingsACK(t *testing.T) {
	c := NewConn(false)
	payload := EncodeSettings([]Setting{{ID: SettingMaxConcurrentStreams, Value: 50}})
	res := c.HandleFrame(FrameHeader{Type: FrameSettings, Length: uint32(len(payload))}, payload)
	if !res.SendACK {
		t.Fatalf("expected SendACK after non-ACK SETTINGS")
	}
	if c.maxConcurrentStreams != 50 {
		t.Fatalf("expected max_concurrent_streams applied, got %d", c.maxConcurrentStreams)
	}

	ack := c.HandleFrame(FrameHeader{Type: FrameSettings, Flags: FlagACK}, nil)
	if ack.SendACK {
		t.Fatalf("an ACK frame should not trigger another ACK")
	}
}

func TestGoAwayMarksHigherStreamsErrored(t *testing.T) {
	c := NewConn(false)
	c.GetOrCreateStream(1)
	c.GetOrCreateStream(3)
	c.lastSID = 1 // pretend only stream 1 is promised to be processed
	c.GoAway(ErrEnhanceYourCalm)
	if c.streams[3].State != StError {
		t.Fatalf("expected stream 3 (beyond last_sid) to be errored")
	}
}
