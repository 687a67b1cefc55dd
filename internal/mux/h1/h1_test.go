package h1

import (
	"testing"

	"github.com/fastserver/lbcore/internal/buf"
	"github.com/fastserver/lbcore/internal/htx"
)

func TestParseScenarioOneRequest(t *testing.T) {
	m := New(false)
	raw := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"
	b := buf.New(make([]byte, 256))
	b.BPut([]byte(raw))
	msg := htx.New()

	state, n := m.ParseFromBuffer(b, msg, true)
	if state != StDone {
		t.Fatalf("expected StDone, got %v", state)
	}
	if n != len(raw) {
		t.Fatalf("expected to consume entire request, got %d/%d", n, len(raw))
	}

	want := []htx.BlockType{htx.ReqSL, htx.Hdr, htx.EOH, htx.EOM}
	if msg.Len() != len(want) {
		t.Fatalf("expected %d blocks, got %d", len(want), msg.Len())
	}
	for i, w := range want {
		if msg.Blocks[i].Type != w {
			t.Fatalf("block %d: expected %v, got %v", i, w, msg.Blocks[i].Type)
		}
	}
	if msg.Blocks[0].StartLine.Method != "GET" || msg.Blocks[0].StartLine.Path != "/" {
		t.Fatalf("unexpected start line: %+v", msg.Blocks[0].StartLine)
	}
	if msg.Blocks[1].Header.Name != "Host" || msg.Blocks[1].Header.Value != "x" {
		t.Fatalf("unexpected header: %+v", msg.Blocks[1].Header)
	}
}

func TestRoundTripDataEOHEOM(t *testing.T) {
	m := New(false)
	m.Mode = WantCLO

	in := htx.New()
	in.AddReqSL("POST", "/up", "HTTP/1.1")
	in.AddHeader("Content-Length", "5")
	in.AddEOH()
	in.AddData([]byte("hello"))
	in.AddEOM()

	ob := buf.New(make([]byte, 256))
	m.FormatToBuffer(in, ob, true)

	raw := make([]byte, ob.Len())
	ob.BPeek(raw, 0)

	m2 := New(false)
	ib := buf.New(make([]byte, 256))
	ib.BPut(raw)
	out := htx.New()
	state, _ := m2.ParseFromBuffer(ib, out, true)
	if state != StDone {
		t.Fatalf("expected StDone, got %v", state)
	}

	var data []byte
	for _, b := range out.Blocks {
		if b.Type == htx.Data {
			data = append(data, b.Data...)
		}
	}
	if string(data) != "hello" {
		t.Fatalf("round-trip mismatch: got %q", data)
	}
}

func TestChunkedBody(t *testing.T) {
	m := New(false)
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n"
	b := buf.New(make([]byte, 256))
	b.BPut([]byte(raw))
	msg := htx.New()

	state, n := m.ParseFromBuffer(b, msg, true)
	if state != StDone {
		t.Fatalf("expected StDone, got %v", state)
	}
	if n != len(raw) {
		t.Fatalf("expected full consume, got %d/%d", n, len(raw))
	}
	var data []byte
	for _, blk := range msg.Blocks {
		if blk.Type == htx.Data {
			data = append(data, blk.Data...)
		}
	}
	if string(data) != "hello" {
		t.Fatalf("expected dechunked body 'hello', got %q", data)
	}
}

func TestH2PrefaceDetection(t *testing.T) {
	m := New(false)
	b := buf.New(make([]byte, 64))
	b.BPut(H2Preface)
	msg := htx.New()
	_, n := m.ParseFromBuffer(b, msg, true)
	if !m.UpgradeH2C {
		t.Fatalf("expected H2C upgrade flag set")
	}
	if n != 0 {
		t.Fatalf("expected no bytes consumed on preface detection, got %d", n)
	}
}

func TestDecideConnModeRequest(t *testing.T) {
	if DecideConnModeRequest("HTTP/1.0", false, false, false) != WantCLO {
		t.Fatalf("HTTP/1.0 without keep-alive should close")
	}
	if DecideConnModeRequest("HTTP/1.1", false, false, false) != WantKAL {
		t.Fatalf("HTTP/1.1 should default to keep-alive")
	}
	if DecideConnModeRequest("HTTP/1.1", true, false, false) != WantCLO {
		t.Fatalf("explicit close should force WantCLO")
	}
}
