package sched

import "container/heap"

// node is one entry of an ordered tree (runqueue tree or timer tree, per
// spec.md 3). Both trees are "ordered by a wrapping 32-bit key"; lbcore
// represents that ordering with a container/heap min-heap whose Less
// uses Tick's wrap-aware comparison, which is equivalent to HAProxy's
// windowed eb32 lookup but considerably simpler in a garbage-collected
// language with no need to hand-roll a balanced tree (see DESIGN.md).
type node struct {
	key        Tick
	threadMask uint64 // eligible threads; 0 means "any" for single-thread trees
	value      any
	index      int // heap bookkeeping
}

type nodeHeap []*node

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].key.Before(h[j].key) }
func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *nodeHeap) Push(x any) {
	n := x.(*node)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// orderedTree is a thin, mutex-free wrapper (callers serialize access
// externally, matching how HAProxy holds rq_lock/wq_lock only around
// insert/remove) around a nodeHeap.
type orderedTree struct {
	h nodeHeap
}

func newOrderedTree() *orderedTree {
	t := &orderedTree{}
	heap.Init(&t.h)
	return t
}

func (t *orderedTree) Len() int { return len(t.h) }

func (t *orderedTree) Insert(key Tick, threadMask uint64, value any) *node {
	n := &node{key: key, threadMask: threadMask, value: value}
	heap.Push(&t.h, n)
	return n
}

// Remove deletes n from the tree; idempotent if n.index is already -1
// (already removed), matching spec.md 9 "idempotent removal".
func (t *orderedTree) Remove(n *node) {
	if n.index < 0 || n.index >= len(t.h) {
		return
	}
	heap.Remove(&t.h, n.index)
	n.index = -1
}

// PeekMin returns the smallest-key node without removing it, or nil.
func (t *orderedTree) PeekMin() *node {
	if len(t.h) == 0 {
		return nil
	}
	return t.h[0]
}

// PopMin removes and returns the smallest-key node, or nil.
func (t *orderedTree) PopMin() *node {
	if len(t.h) == 0 {
		return nil
	}
	return heap.Pop(&t.h).(*node)
}

// PopEligible removes and returns the smallest-key node whose
// threadMask includes threadBit, scanning past ineligible nodes the
// way HAProxy's eb32sc_lookup_ge skips entries outside the scope mask
// (spec.md 3 "Runqueue tree"). O(n) worst case; acceptable since the
// global runqueue tree is only consulted when the local one is short.
func (t *orderedTree) PopEligible(threadBit uint64) *node {
	var skipped []*node
	var found *node
	for len(t.h) > 0 {
		n := heap.Pop(&t.h).(*node)
		if n.threadMask == 0 || n.threadMask&threadBit != 0 {
			found = n
			break
		}
		skipped = append(skipped, n)
	}
	for _, n := range skipped {
		heap.Push(&t.h, n)
	}
	return found
}
