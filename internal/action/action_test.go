package action

import (
	"testing"

	"github.com/fastserver/lbcore/internal/sched"
)

func TestChainStopsAtFirstNonContinue(t *testing.T) {
	var ran []int
	c := NewChain(
		func(ctx any) sched.Result { ran = append(ran, 1); return sched.Continue },
		func(ctx any) sched.Result { ran = append(ran, 2); return sched.Deny },
		func(ctx any) sched.Result { ran = append(ran, 3); return sched.Continue },
	)
	if r := c.Run(nil); r != sched.Deny {
		t.Fatalf("expected Deny, got %v", r)
	}
	if len(ran) != 2 {
		t.Fatalf("expected step 3 to be skipped, ran=%v", ran)
	}
}

func TestChainAllContinue(t *testing.T) {
	c := NewChain(
		func(ctx any) sched.Result { return sched.Continue },
		func(ctx any) sched.Result { return sched.Continue },
	)
	if r := c.Run(nil); r != sched.Continue {
		t.Fatalf("expected Continue, got %v", r)
	}
}
