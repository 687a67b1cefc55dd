package conn

import (
	"testing"

	"github.com/fastserver/lbcore/internal/fd"
	"github.com/fastserver/lbcore/internal/sched"
)

func newTestConn() *Conn {
	tbl := fd.NewTable(4)
	e := tbl.Get(1)
	return New(1, e, 0)
}

func TestShutWIdempotent(t *testing.T) {
	c := newTestConn()
	c.ShutW(ShutNormal)
	if !c.shutW.Load() {
		t.Fatalf("expected shutW set")
	}
	c.SetFlag(0) // no-op, sanity
	c.ShutW(ShutSilent)
	if c.HasFlag(FlagLingerRisk) {
		t.Fatalf("second shutw call should have no effect (idempotent)")
	}
}

func TestSubscribeWakesImmediatelyWhenDataAvailable(t *testing.T) {
	s := sched.New(1, 32)
	c := newTestConn()
	c.dataAvail.Store(true)

	var ran bool
	tl := sched.NewTasklet(1<<0, sched.Normal, func(ctx any) sched.Result {
		ran = true
		return sched.Done
	}, nil)

	if err := c.Subscribe(SubRetryRecv, tl, s, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.ProcessRunnableTasks(0)
	if !ran {
		t.Fatalf("expected immediate wake since data was already available")
	}
	if c.dataAvail.Load() {
		t.Fatalf("dataAvail should be cleared after immediate wake")
	}
}

func TestProxyV1PassthroughScenario(t *testing.T) {
	c := newTestConn()
	line := "PROXY TCP4 192.0.2.1 198.51.100.2 56324 443\r\nGET / HTTP/1.1\r\nHost: x\r\n\r\n"
	n, err := RecvProxy(c, []byte(line))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rest := line[n:]
	if rest != "GET / HTTP/1.1\r\nHost: x\r\n\r\n" {
		t.Fatalf("unexpected remainder: %q", rest)
	}
	if c.Src.String() != "192.0.2.1" || c.Dst.String() != "198.51.100.2" {
		t.Fatalf("unexpected src/dst: %v %v", c.Src, c.Dst)
	}
	if !c.HasFlag(FlagRcvdProxy) {
		t.Fatalf("expected RCVD_PROXY flag")
	}
}

func TestFullyShutRequiresBothDirectionsAndNoSubscriber(t *testing.T) {
	c := newTestConn()
	if c.FullyShut() {
		t.Fatalf("fresh conn should not be fully shut")
	}
	c.ShutW(ShutNormal)
	c.ShutR(ShutRClean)
	if !c.FullyShut() {
		t.Fatalf("expected fully shut once both directions closed and no subscriber")
	}
}
