package pool

import (
	"sync"
	"testing"
)

type widget struct{ n int }

func TestAllocFreeSameThreadSameAddress(t *testing.T) {
	p := New("widget", 16, 0, func() any { return &widget{} })
	p.EnsureThread(0)

	obj := p.Alloc(0)
	w, ok := obj.(*widget)
	if !ok {
		t.Fatalf("expected *widget, got %T", obj)
	}
	w.n = 42
	p.Free(0, w)

	again := p.Alloc(0)
	if again != obj {
		t.Fatalf("expected same address back: free followed by alloc on one thread with no cross-thread transfer must return the same object")
	}
}

func TestAccountingInvariant(t *testing.T) {
	p := New("widget", 16, 0, func() any { return &widget{} })
	p.EnsureThread(0)

	var held []any
	for i := 0; i < 10; i++ {
		held = append(held, p.Alloc(0))
	}
	st := p.Stats()
	if st.Allocated < st.Used || st.Used != 10 {
		t.Fatalf("invariant broken: allocated=%d used=%d", st.Allocated, st.Used)
	}
	for _, o := range held {
		p.Free(0, o)
	}
	st = p.Stats()
	if st.Used != 0 {
		t.Fatalf("expected used=0 after freeing everything, got %d", st.Used)
	}
	if st.Allocated < 10 {
		t.Fatalf("expected allocated to stay >= 10, got %d", st.Allocated)
	}
}

func TestLimitReturnsNil(t *testing.T) {
	p := New("capped", 16, 2, func() any { return &widget{} })
	p.EnsureThread(0)

	a := p.Alloc(0)
	b := p.Alloc(0)
	if a == nil || b == nil {
		t.Fatalf("expected two allocations under the limit to succeed")
	}
	if c := p.Alloc(0); c != nil {
		t.Fatalf("expected nil once the hard limit is reached, got %v", c)
	}
}

func TestCrossThreadFreeGoesThroughGlobal(t *testing.T) {
	p := New("widget", 16, 0, func() any { return &widget{} })
	p.EnsureThread(0)
	p.EnsureThread(1)
	p.limitPT = 1 // thread 1's cache holds one object before evicting

	obj := p.Alloc(0)
	other := p.Alloc(0)
	p.Free(1, obj)   // freed from a different thread's cache
	p.Free(1, other) // pushes thread 1's cache over its limit: obj, the oldest, is evicted to global

	// Thread 0's cache is empty, so it must fall through to the
	// global free-list and find the object evicted by thread 1.
	got := p.Alloc(0)
	if got != obj {
		t.Fatalf("expected the cross-thread-freed object via the global stack")
	}
}

func TestConcurrentAllocFreeNoCorruption(t *testing.T) {
	p := New("widget", 16, 0, func() any { return &widget{} })
	const threads = 8
	for i := 0; i < threads; i++ {
		p.EnsureThread(i)
	}

	var wg sync.WaitGroup
	for tid := 0; tid < threads; tid++ {
		tid := tid
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				o := p.Alloc(tid)
				if o == nil {
					t.Errorf("unexpected nil alloc")
					return
				}
				p.Free(tid, o)
			}
		}()
	}
	wg.Wait()

	st := p.Stats()
	if st.Used != 0 {
		t.Fatalf("expected used=0 at quiescence, got %d", st.Used)
	}
}

func TestFlushReturnsToAllocatorAccounting(t *testing.T) {
	p := New("widget", 16, 0, func() any { return &widget{} })
	p.EnsureThread(0)

	for i := 0; i < 5; i++ {
		p.Free(0, p.Alloc(0))
	}
	p.Flush()

	st := p.Stats()
	if st.Allocated != 0 {
		t.Fatalf("expected Flush to zero allocated count, got %d", st.Allocated)
	}
}

func TestSizeClassIndexBuckets(t *testing.T) {
	cases := []struct {
		size  uintptr
		class int
	}{
		{1, 0}, {8, 0}, {9, 1}, {16, 1}, {17, 2}, {32, 2},
		{1 << 20, numSizeClasses - 1}, // clamps rather than indexing out of range
	}
	for _, c := range cases {
		if got := sizeClassIndex(c.size); got != c.class {
			t.Fatalf("sizeClassIndex(%d) = %d, want %d", c.size, got, c.class)
		}
	}
}

func TestLookupFindsPoolBySizeClass(t *testing.T) {
	p := New("lookup-widget", 48, 0, func() any { return &widget{} })
	if got := Lookup(48); got != p {
		t.Fatalf("expected Lookup to find the pool registered at size 48")
	}
	if got := Lookup(49); got == p {
		t.Fatalf("Lookup must not return a pool of a different exact size")
	}
}

func TestFailRateFuzzesAlloc(t *testing.T) {
	p := New("widget", 16, 0, func() any { return &widget{} })
	p.EnsureThread(0)
	p.SetFailRate(100)

	if obj := p.Alloc(0); obj != nil {
		t.Fatalf("expected Alloc to fail at 100%% fail rate")
	}
}
