package buf

import (
	"bytes"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	b := New(make([]byte, 16))
	if _, err := b.BPut([]byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := make([]byte, 5)
	n := b.BGet(out)
	if n != 5 || string(out) != "hello" {
		t.Fatalf("got %q (%d)", out[:n], n)
	}
	if !b.IsEmpty() {
		t.Fatalf("expected empty after full read")
	}
}

func TestWrapAround(t *testing.T) {
	b := New(make([]byte, 8))
	b.BPut([]byte("ABCDEF")) // head=0 data=6
	out := make([]byte, 4)
	b.BGet(out) // consumes ABCD, head=4 data=2
	if _, err := b.BPut([]byte("GHIJ")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	} // EF + GHIJ wraps past end of 8-byte area
	rest := make([]byte, 6)
	n := b.BGet(rest)
	if string(rest[:n]) != "EFGHIJ" {
		t.Fatalf("got %q", rest[:n])
	}
}

func TestNoRoom(t *testing.T) {
	b := New(make([]byte, 4))
	if _, err := b.BPut([]byte("12345")); err != ErrNoRoom {
		t.Fatalf("expected ErrNoRoom, got %v", err)
	}
}

func TestBSlowRealign(t *testing.T) {
	b := New(make([]byte, 8))
	b.BPut([]byte("ABCDEF"))
	out := make([]byte, 4)
	b.BGet(out) // head=4, data=2, bytes "EF" at offsets 4..5
	scratch := make([]byte, 8)
	b.BSlowRealign(scratch, 2)
	peek := make([]byte, 2)
	b.BPeek(peek, 0)
	if !bytes.Equal(peek, []byte("EF")) {
		t.Fatalf("expected EF after realign, got %q", peek)
	}
}

func TestSwap(t *testing.T) {
	a := New(make([]byte, 4))
	b := New(make([]byte, 4))
	a.BPut([]byte("ab"))
	Swap(a, b)
	if a.Len() != 0 || b.Len() != 2 {
		t.Fatalf("swap did not exchange state")
	}
	out := make([]byte, 2)
	b.BGet(out)
	if string(out) != "ab" {
		t.Fatalf("got %q", out)
	}
}

func TestWaitQueueWakesInOrder(t *testing.T) {
	var q WaitQueue
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		q.Park(func() { order = append(order, i) })
	}
	q.Wake()
	if len(order) != 3 || order[0] != 0 || order[2] != 2 {
		t.Fatalf("unexpected wake order: %v", order)
	}
}

func TestRingPushPop(t *testing.T) {
	r := NewRing(2)
	b1 := New(make([]byte, 4))
	b2 := New(make([]byte, 4))
	if !r.PushTail(b1) || !r.PushTail(b2) {
		t.Fatalf("expected both pushes to succeed")
	}
	if r.PushTail(New(make([]byte, 4))) {
		t.Fatalf("expected ring to be full")
	}
	if r.PopHead() != b1 {
		t.Fatalf("expected FIFO order")
	}
	if r.PopHead() != b2 {
		t.Fatalf("expected FIFO order")
	}
}
