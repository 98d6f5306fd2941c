package mm

import (
	"fmt"

	"sv39kernel/internal/riscv"
)

// Handler is the policy for how a virtual page acquires its physical
// backing. It is attached to a MemoryArea at push time: a small object
// registered once at a VA range, consulted on every subsequent operation
// in that range.
type Handler interface {
	// Map backs one page of va in pt with physical memory and applies attr.
	Map(pt *PageTable, va riscv.VA, attr Attr) error

	// Unmap removes the mapping for one page of va in pt.
	Unmap(pt *PageTable, va riscv.VA) error

	// PageCopy initializes a freshly mapped page with src (which may be
	// shorter than a page; the remainder is zero-filled).
	PageCopy(pt *PageTable, va riscv.VA, src []byte) error
}

// frames is the process-wide backing store for ByFrame/Linear page
// contents, keyed by PPN. It stands in for "the bytes of physical memory"
// in a model with no actual byte array indexed by physical address.
var frames = map[riscv.PPN]*[riscv.PageSize]byte{}

func framePage(ppn riscv.PPN) *[riscv.PageSize]byte {
	p, ok := frames[ppn]
	if !ok {
		p = &[riscv.PageSize]byte{}
		frames[ppn] = p
	}

	return p
}

// Linear backs a virtual range at a fixed offset from physical memory:
// pa = va - offset. It never allocates a frame; used for the kernel's
// direct map and the physical-memory window.
type Linear struct {
	Offset uint64
}

type linearHandler struct{ Linear }

// NewLinear returns a Handler implementing the Linear policy.
func NewLinear(offset uint64) Handler { return linearHandler{Linear{Offset: offset}} }

func (h linearHandler) Map(pt *PageTable, va riscv.VA, attr Attr) error {
	pa := riscv.PA(uint64(va) - h.Offset)
	return pt.Map(va, pa, attr.Flags())
}

func (h linearHandler) Unmap(pt *PageTable, va riscv.VA) error {
	return pt.Unmap(va)
}

func (h linearHandler) PageCopy(pt *PageTable, va riscv.VA, src []byte) error {
	e, err := pt.GetEntry(va)
	if err != nil {
		return fmt.Errorf("linear page copy: %w", err)
	}

	dst := framePage(e.PPN())
	n := copy(dst[:], src)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}

	return nil
}

// ByFrame backs each virtual page with a freshly allocated physical frame.
// Used for user segments and user/kernel stacks.
type byFrameHandler struct {
	alloc *FrameAllocator
}

// NewByFrame returns a Handler implementing the ByFrame policy, drawing
// frames from alloc.
func NewByFrame(alloc *FrameAllocator) Handler { return byFrameHandler{alloc: alloc} }

func (h byFrameHandler) Map(pt *PageTable, va riscv.VA, attr Attr) error {
	ppn, err := h.alloc.Alloc()
	if err != nil {
		return fmt.Errorf("by-frame map %#x: %w", va, err)
	}

	if err := pt.Map(va, riscv.PA(ppn.Addr()), attr.Flags()); err != nil {
		h.alloc.Dealloc(ppn)
		return err
	}

	return nil
}

func (h byFrameHandler) Unmap(pt *PageTable, va riscv.VA) error {
	e, err := pt.GetEntry(va)
	if err != nil {
		return err
	}

	if err := pt.Unmap(va); err != nil {
		return err
	}

	h.alloc.Dealloc(e.PPN())
	delete(frames, e.PPN())

	return nil
}

func (h byFrameHandler) PageCopy(pt *PageTable, va riscv.VA, src []byte) error {
	e, err := pt.GetEntry(va)
	if err != nil {
		return fmt.Errorf("by-frame page copy: %w", err)
	}

	dst := framePage(e.PPN())
	n := copy(dst[:], src)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}

	return nil
}
