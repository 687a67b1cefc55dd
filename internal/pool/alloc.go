package pool

import (
	"math/rand"
)

// Alloc returns an object from the pool for thread tid, or nil if the
// pool's hard limit has been reached or the OS allocator fails twice in
// a row (spec.md 4.A step 3). Objects are not zeroed by Alloc; a fresh
// object comes straight from newFunc, a reused one carries whatever the
// previous owner left in it (as intended for a "poisoned-or-zeroed on
// the caller's terms" contract — callers that need a clean object reset
// it in Reset() the way the teacher's SmartPool config does).
func (p *Pool) Alloc(tid int) any {
	if r := p.failRate.Load(); r > 0 && uint32(rand.Intn(100)) < r {
		p.failed.Add(1)
		return nil
	}

	// 1. per-thread cache
	c := p.cacheFor(tid)
	c.mu.Lock()
	if n := len(c.items); n > 0 {
		obj := c.items[n-1]
		c.items = c.items[:n-1]
		c.mu.Unlock()
		p.used.Add(1)
		p.bumpNeededAvg(p.used.Load())
		return obj
	}
	c.mu.Unlock()

	// 2. global lock-free stack
	for {
		head := p.global.Load()
		if head == nil {
			break
		}
		if p.global.CompareAndSwap(head, head.next) {
			obj := head.obj
			head.obj = nil
			head.next = nil
			nodePool.Put(head)
			p.used.Add(1)
			p.bumpNeededAvg(p.used.Load())
			return obj
		}
	}

	// 3. fall through to the OS/Go allocator, with accounting.
	if p.limit > 0 && p.allocated.Load() >= p.limit {
		p.failed.Add(1)
		return nil
	}
	obj := p.newFunc()
	if obj == nil {
		// retry once after a GC, as a global emergency measure.
		GC()
		obj = p.newFunc()
		if obj == nil {
			p.failed.Add(1)
			return nil
		}
	}
	p.allocated.Add(1)
	p.used.Add(1)
	p.bumpNeededAvg(p.used.Load())
	return obj
}

// Free returns obj to thread tid's cache; when the cache grows past its
// calibrated limit, the oldest quarter of it is evicted to the global
// free-list (spec.md 4.A step 4).
func (p *Pool) Free(tid int, obj any) {
	if obj == nil {
		return
	}
	p.used.Add(-1)

	c := p.cacheFor(tid)
	c.mu.Lock()
	c.items = append(c.items, obj)
	if len(c.items) > p.limitPT {
		evict := len(c.items) / 4
		if evict < 1 {
			evict = 1
		}
		toGlobal := append([]any(nil), c.items[:evict]...)
		c.items = append(c.items[:0], c.items[evict:]...)
		c.mu.Unlock()
		for _, o := range toGlobal {
			p.pushGlobal(o)
		}
		return
	}
	c.mu.Unlock()
}

func (p *Pool) pushGlobal(obj any) {
	n := nodePool.Get().(*freeNode)
	n.obj = obj
	for {
		head := p.global.Load()
		n.next = head
		if p.global.CompareAndSwap(head, n) {
			return
		}
	}
}

// Flush drops the pool's entire global free-list (and every per-thread
// cache), returning objects to the Go GC. allocated/used accounting is
// adjusted so the pool invariant keeps holding.
func (p *Pool) Flush() {
	for {
		head := p.global.Load()
		if head == nil {
			break
		}
		if p.global.CompareAndSwap(head, nil) {
			n := head
			count := int64(0)
			for n != nil {
				next := n.next
				n.obj = nil
				n.next = nil
				nodePool.Put(n)
				n = next
				count++
			}
			p.allocated.Add(-count)
			break
		}
	}

	p.mu.RLock()
	caches := p.caches
	p.mu.RUnlock()
	for _, c := range caches {
		c.mu.Lock()
		p.allocated.Add(-int64(len(c.items)))
		c.items = c.items[:0]
		c.mu.Unlock()
	}
}

// GC flushes every registered pool's global free-list. Conceptually this
// runs "while the caller is thread-isolated" (spec.md 4.A); lbcore does
// not require a stop-the-world barrier since Flush only touches shared
// structures that are already safe for concurrent access.
func GC() {
	for _, p := range AllPools() {
		p.Flush()
	}
}
