package activity

import "testing"

func TestCountersSnapshot(t *testing.T) {
	r := NewRegistry(2)
	r.For(0).ConnDead.Add(3)
	r.For(1).TasksW.Add(7)

	snaps := r.SnapshotAll()
	if snaps[0].ConnDead != 3 {
		t.Fatalf("expected conn_dead=3, got %d", snaps[0].ConnDead)
	}
	if snaps[1].TasksW != 7 {
		t.Fatalf("expected tasksw=7, got %d", snaps[1].TasksW)
	}
}

func TestWireRoundTrip(t *testing.T) {
	s := Snapshot{Thread: 1, ConnDead: 2, EmptyRQ: 3, LongRQ: 4, TasksW: 5, CtxSw: 6, PoolFail: 7}
	enc := EncodeSnapshot(s)
	dec, err := DecodeSnapshot(enc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec != s {
		t.Fatalf("round trip mismatch: got %+v want %+v", dec, s)
	}
}
