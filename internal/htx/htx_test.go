package htx

import "testing"

func TestAppendAndPopFront(t *testing.T) {
	m := New()
	m.AddReqSL("GET", "/", "HTTP/1.1")
	m.AddHeader("host", "x")
	m.AddEOH()
	m.AddEOM()

	want := []BlockType{ReqSL, Hdr, EOH, EOM}
	for _, w := range want {
		b, ok := m.PopFront()
		if !ok || b.Type != w {
			t.Fatalf("expected %v, got %v (ok=%v)", w, b.Type, ok)
		}
	}
	if _, ok := m.PopFront(); ok {
		t.Fatalf("expected message to be drained")
	}
}

func TestHasEOM(t *testing.T) {
	m := New()
	if m.HasEOM() {
		t.Fatalf("empty message should not report EOM")
	}
	m.AddReqSL("GET", "/", "HTTP/1.1")
	m.AddEOH()
	if m.HasEOM() {
		t.Fatalf("message without EOM should not report it")
	}
	m.AddEOM()
	if !m.HasEOM() {
		t.Fatalf("expected EOM")
	}
}

func TestFindHeaderCaseInsensitive(t *testing.T) {
	m := New()
	m.AddHeader("Host", "example.com")
	v, ok := m.FindHeader("host")
	if !ok || v != "example.com" {
		t.Fatalf("expected case-insensitive header lookup, got %q ok=%v", v, ok)
	}
}

func TestSwapExchangesBlocks(t *testing.T) {
	a := New()
	a.AddReqSL("GET", "/", "HTTP/1.1")
	b := New()
	Swap(a, b)
	if a.Len() != 0 || b.Len() != 1 {
		t.Fatalf("expected swap to move blocks, a=%d b=%d", a.Len(), b.Len())
	}
}

func TestScenarioOneShapeForPassthrough(t *testing.T) {
	// Scenario 1: REQ_SL{GET, /, HTTP/1.1}, HDR{host: x}, EOH, EOM
	m := New()
	m.AddReqSL("GET", "/", "HTTP/1.1")
	m.AddHeader("host", "x")
	m.AddEOH()
	m.AddEOM()

	if m.Len() != 4 {
		t.Fatalf("expected 4 blocks, got %d", m.Len())
	}
	if m.Blocks[0].StartLine.Method != "GET" || m.Blocks[0].StartLine.Path != "/" {
		t.Fatalf("unexpected start line: %+v", m.Blocks[0].StartLine)
	}
}
