package mm

import (
	"fmt"

	"sv39kernel/internal/log"
	"sv39kernel/internal/riscv"
)

// KernelLayout describes the section boundaries a real link script would
// provide as the symbols stext, etext, srodata, erodata, sdata, edata,
// sbss, ebss, end. Every memory set's kernel preamble is built from one
// shared instance of this, constructed once at boot.
type KernelLayout struct {
	KernelBeginPaddr riscv.PA
	KernelBeginVaddr riscv.VA
	PhysMemEnd       riscv.PA

	Stext, Etext     riscv.VA
	Srodata, Erodata riscv.VA
	Sdata, Edata     riscv.VA
	Sbss, Ebss       riscv.VA
	End              riscv.VA
}

// KernelOffset is the constant difference between a kernel virtual address
// and its backing physical address, used by every Linear handler in the
// preamble.
func (kl KernelLayout) KernelOffset() uint64 {
	return uint64(kl.KernelBeginVaddr) - uint64(kl.KernelBeginPaddr)
}

// MemorySet is a virtual address space: an ordered collection of disjoint
// memory areas, a page table, and the fixed kernel preamble every address
// space carries so that a trap taken in user mode still lands in valid
// kernel code without switching tables.
type MemorySet struct {
	pt    *PageTable
	areas []Area
	log   *log.Logger
}

// NewMemorySet constructs an address space containing only the kernel
// preamble: text (R|X), rodata (R), data (R|W), bss (R|W), and the
// physical-memory window (R|W), all mapped Linear at the kernel offset.
func NewMemorySet(alloc *FrameAllocator, kl KernelLayout) (*MemorySet, error) {
	pt, err := NewBare(alloc)
	if err != nil {
		return nil, fmt.Errorf("new memory set: %w", err)
	}

	ms := &MemorySet{pt: pt, log: log.DefaultLogger()}

	linear := NewLinear(kl.KernelOffset())

	sections := []struct {
		name       string
		start, end riscv.VA
		attr       Attr
	}{
		{"text", kl.Stext, kl.Etext, AttrKernelText},
		{"rodata", kl.Srodata, kl.Erodata, AttrKernelRO},
		{"data", kl.Sdata, kl.Edata, AttrKernelRW},
		{"bss", kl.Sbss, kl.Ebss, AttrKernelRW},
	}

	for _, s := range sections {
		if s.start == s.end {
			continue
		}
		if err := ms.Push(s.start, s.end, s.attr, linear, nil); err != nil {
			return nil, fmt.Errorf("kernel preamble %s: %w", s.name, err)
		}
	}

	physWindowStart := kl.End
	physWindowEnd := riscv.VA(uint64(kl.PhysMemEnd) + kl.KernelOffset())

	if physWindowStart < physWindowEnd {
		if err := ms.Push(physWindowStart, physWindowEnd, AttrKernelRW, linear, nil); err != nil {
			return nil, fmt.Errorf("kernel preamble phys window: %w", err)
		}
	}

	return ms, nil
}

// PageData describes the source bytes to initialize a freshly pushed
// area's pages with; pages past len(Src), and the tail of the last page
// Src reaches, are zero-filled.
type PageData struct {
	Src []byte
}

// Push asserts the range is well-formed and disjoint from every existing
// area, maps every page in range through handler, optionally initializes
// the pages from data, and appends the area to the ordered list.
func (ms *MemorySet) Push(start, end riscv.VA, attr Attr, handler Handler, data *PageData) error {
	if err := validateRange(start, end); err != nil {
		return err
	}

	area := Area{Start: start, End: end, Handler: handler, Attr: attr}

	for _, existing := range ms.areas {
		if area.overlaps(existing) {
			return fmt.Errorf("%w: [%#x,%#x) intersects [%#x,%#x)",
				ErrOverlap, start, end, existing.Start, existing.End)
		}
	}

	for _, va := range pages(start, end) {
		if err := handler.Map(ms.pt, va, attr); err != nil {
			return fmt.Errorf("push [%#x,%#x): %w", start, end, err)
		}
	}

	if data != nil {
		if err := ms.copyData(handler, start, end, data.Src); err != nil {
			return err
		}
	}

	ms.areas = append(ms.areas, area)

	ms.log.Debug("area pushed", "start", fmt.Sprintf("%#x", start), "end", fmt.Sprintf("%#x", end))

	return nil
}

func (ms *MemorySet) copyData(handler Handler, start, end riscv.VA, src []byte) error {
	remaining := src

	for _, va := range pages(start, end) {
		var chunk []byte

		if len(remaining) > 0 {
			n := riscv.PageSize
			if n > len(remaining) {
				n = len(remaining)
			}
			chunk = remaining[:n]
			remaining = remaining[n:]
		}

		if err := handler.PageCopy(ms.pt, va, chunk); err != nil {
			return fmt.Errorf("page copy at %#x: %w", va, err)
		}
	}

	return nil
}

// Areas returns the ordered list of areas currently pushed.
func (ms *MemorySet) Areas() []Area { return ms.areas }

// PageTable returns the underlying page table.
func (ms *MemorySet) PageTable() *PageTable { return ms.pt }

// Token returns the satp value that activates this memory set.
func (ms *MemorySet) Token() riscv.Satp { return ms.pt.Token() }

// Activate installs this memory set's page table as the HART's active
// address space.
func (ms *MemorySet) Activate() { ms.pt.Activate() }
