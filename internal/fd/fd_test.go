package fd

import "testing"

func TestDirectionStateMachine(t *testing.T) {
	tbl := NewTable(16)
	e := tbl.Get(3)
	if e == nil {
		t.Fatal("expected entry for fd 3")
	}

	e.WantRecv()
	if e.State()&ActiveR == 0 {
		t.Fatalf("expected ActiveR set after WantRecv")
	}

	e.ReportReadable()
	if e.State()&ReadyR == 0 {
		t.Fatalf("expected ReadyR set after ReportReadable")
	}

	e.ShutdownRecv()
	if e.State()&ShutR == 0 {
		t.Fatalf("expected ShutR set after ShutdownRecv")
	}

	e.StopRecv()
	if e.State()&(ActiveR|ReadyR) != 0 {
		t.Fatalf("expected ActiveR|ReadyR cleared after StopRecv")
	}
}

func TestRunningMaskSingleOwner(t *testing.T) {
	tbl := NewTable(4)
	e := tbl.Get(1)

	if !e.TryAcquireRunning(0) {
		t.Fatal("thread 0 should acquire an unowned fd")
	}
	if e.TryAcquireRunning(1) {
		t.Fatal("thread 1 must not acquire a running fd owned by thread 0")
	}
	e.ReleaseRunning(0)
	if !e.TryAcquireRunning(1) {
		t.Fatal("thread 1 should acquire the fd once thread 0 releases it")
	}
}

func TestOutOfRangeReturnsNil(t *testing.T) {
	tbl := NewTable(4)
	if tbl.Get(-1) != nil || tbl.Get(4) != nil {
		t.Fatal("expected nil for out-of-range fd index")
	}
}

func TestUpdateMaskCoalesces(t *testing.T) {
	tbl := NewTable(4)
	e := tbl.Get(0)

	e.MarkUpdate(2)
	e.MarkUpdate(2) // second call within the same tasklet execution
	if e.updateMask.Load() != 1<<2 {
		t.Fatalf("expected a single coalesced bit, got %b", e.updateMask.Load())
	}
	e.ClearUpdate(2)
	if e.updateMask.Load() != 0 {
		t.Fatalf("expected update mask cleared")
	}
}
