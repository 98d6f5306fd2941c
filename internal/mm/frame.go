// Package mm implements physical frame allocation, Sv39 page tables, memory
// attributes, and the memory-area/memory-set abstractions that together
// form a thread's address space.
package mm

import (
	"errors"
	"fmt"
	"sync"

	"sv39kernel/internal/log"
	"sv39kernel/internal/riscv"
)

// ErrOutOfFrames is returned when the allocator has no free frame left in
// its range. Every caller in this core treats it as fatal.
var ErrOutOfFrames = errors.New("mm: out of frames")

// FrameAllocator hands out and reclaims physical page frames from a fixed,
// half-open PPN range [L, R). It is backed by a segment tree recording, at
// each node, whether the subtree below has a free leaf, so alloc/dealloc
// are O(log N). Shared state is guarded behind a plain sync.Mutex rather
// than a hand-rolled spinlock, since Go has no notion of a spin-only lock
// at this level.
type FrameAllocator struct {
	mut sync.Mutex
	log *log.Logger

	base  riscv.PPN // L
	limit riscv.PPN // R
	n     int       // Number of leaves, next power of two >= R-L.
	tree  []bool    // tree[i] true means subtree rooted at i has a free leaf.
}

// NewFrameAllocator creates an allocator over the half-open range [l, r).
func NewFrameAllocator(l, r riscv.PPN) *FrameAllocator {
	size := int(r - l)
	if size <= 0 {
		panic("mm: empty frame range")
	}

	n := 1
	for n < size {
		n *= 2
	}

	fa := &FrameAllocator{
		log:   log.DefaultLogger(),
		base:  l,
		limit: r,
		n:     n,
		tree:  make([]bool, 2*n),
	}

	for i := 0; i < size; i++ {
		fa.tree[n+i] = true
	}
	for i := n - 1; i >= 1; i-- {
		fa.tree[i] = fa.tree[2*i] || fa.tree[2*i+1]
	}

	return fa
}

// WithLogger overrides the allocator's logger.
func (fa *FrameAllocator) WithLogger(l *log.Logger) *FrameAllocator {
	fa.log = l
	return fa
}

// Alloc reserves and returns one free frame, preferring the lowest PPN.
func (fa *FrameAllocator) Alloc() (riscv.PPN, error) {
	fa.mut.Lock()
	defer fa.mut.Unlock()

	if !fa.tree[1] {
		return 0, fmt.Errorf("%w: range [%#x,%#x)", ErrOutOfFrames, fa.base, fa.limit)
	}

	i := 1
	for i < fa.n {
		if fa.tree[2*i] {
			i = 2 * i
		} else {
			i = 2*i + 1
		}
	}

	leaf := i

	fa.tree[i] = false
	for i > 1 {
		i /= 2
		fa.tree[i] = fa.tree[2*i] || fa.tree[2*i+1]
	}

	ppn := fa.base + riscv.PPN(leaf-fa.n)
	fa.log.Debug("frame allocated", "ppn", fmt.Sprintf("%#x", ppn))

	return ppn, nil
}

// Dealloc returns ppn to the free pool. It is the caller's responsibility
// to ensure ppn was previously allocated from this allocator and is not
// still referenced.
func (fa *FrameAllocator) Dealloc(ppn riscv.PPN) {
	fa.mut.Lock()
	defer fa.mut.Unlock()

	if ppn < fa.base || ppn >= fa.limit {
		panic(fmt.Sprintf("mm: dealloc ppn %#x out of range [%#x,%#x)", ppn, fa.base, fa.limit))
	}

	i := fa.n + int(ppn-fa.base)
	fa.tree[i] = true

	for i > 1 {
		i /= 2
		fa.tree[i] = fa.tree[2*i] || fa.tree[2*i+1]
	}

	fa.log.Debug("frame freed", "ppn", fmt.Sprintf("%#x", ppn))
}

// Range returns the allocator's configured [L, R) bounds.
func (fa *FrameAllocator) Range() (riscv.PPN, riscv.PPN) { return fa.base, fa.limit }
