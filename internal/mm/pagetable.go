package mm

import (
	"errors"
	"fmt"

	"sv39kernel/internal/log"
	"sv39kernel/internal/riscv"
)

// ErrNotMapped is returned by GetEntry/Unmap when the virtual page has no
// valid mapping.
var ErrNotMapped = errors.New("mm: not mapped")

// ErrAlreadyMapped is returned by Map when the virtual page already has a
// valid leaf entry; callers are expected to route through MemorySet.Push,
// which asserts disjointness before ever reaching here.
var ErrAlreadyMapped = errors.New("mm: already mapped")

// PageTable is an Sv39 three-level page table rooted at a single allocated
// frame, the table's "token". Interior frames are allocated on demand from
// a FrameAllocator as the walk descends; Map/Unmap only ever touch one
// leaf entry at a time.
type PageTable struct {
	alloc *FrameAllocator
	root  riscv.PPN
	log   *log.Logger

	// nodes maps each table frame's PPN to its 512 entries. The
	// software model keeps interior and leaf nodes in plain maps keyed by
	// frame rather than literally decoding raw bytes out of frames,
	// since there is no RV64 interpreter in this core to execute loads
	// against simulated physical memory; the frame is still allocated and
	// owned exactly as the real walk would.
	nodes map[riscv.PPN]*node
}

type node struct {
	entries [512]riscv.PTE
}

// NewBare allocates a root frame and returns an empty page table. Unlike
// the real kernel, the physical-memory-window identity map is installed by
// NewMemorySet, not here; NewBare only guarantees a valid root.
func NewBare(alloc *FrameAllocator) (*PageTable, error) {
	root, err := alloc.Alloc()
	if err != nil {
		return nil, fmt.Errorf("new page table: %w", err)
	}

	pt := &PageTable{
		alloc: alloc,
		root:  root,
		log:   log.DefaultLogger(),
		nodes: map[riscv.PPN]*node{root: {}},
	}

	return pt, nil
}

// Root returns the table's root PPN.
func (pt *PageTable) Root() riscv.PPN { return pt.root }

// Token returns the satp value that activates this table.
func (pt *PageTable) Token() riscv.Satp { return riscv.NewSatp(pt.root) }

// Map walks the three Sv39 levels for va, allocating interior frames on
// demand, and writes a leaf entry for pa with the given flags. It returns
// ErrAlreadyMapped if a valid leaf already exists there.
func (pt *PageTable) Map(va riscv.VA, pa riscv.PA, flags riscv.PTEFlag) error {
	idx := riscv.Indices(va.VPN())

	n := pt.nodes[pt.root]
	ppn := pt.root

	for level := 0; level < 2; level++ {
		i := idx[level]
		e := n.entries[i]

		if !e.Valid() {
			next, err := pt.alloc.Alloc()
			if err != nil {
				return fmt.Errorf("map %#x: %w", va, err)
			}

			n.entries[i] = riscv.NewPTE(next, riscv.FlagV)
			pt.nodes[next] = &node{}
			e = n.entries[i]
		} else if e.Leaf() {
			return fmt.Errorf("map %#x: %w: interior level %d is a leaf", va, ErrAlreadyMapped, level)
		}

		ppn = e.PPN()
		n = pt.nodes[ppn]
	}

	leafIdx := idx[2]
	if n.entries[leafIdx].Valid() {
		return fmt.Errorf("map %#x: %w", va, ErrAlreadyMapped)
	}

	n.entries[leafIdx] = riscv.NewPTE(pa.PPN(), flags|riscv.FlagA|riscv.FlagD)

	pt.log.Debug("mapped", "va", fmt.Sprintf("%#x", va), "pa", fmt.Sprintf("%#x", pa))

	return nil
}

// GetEntry walks to the leaf for va and returns its entry. ErrNotMapped is
// returned if any level along the walk is not present.
func (pt *PageTable) GetEntry(va riscv.VA) (riscv.PTE, error) {
	idx := riscv.Indices(va.VPN())
	n := pt.nodes[pt.root]

	for level := 0; level < 2; level++ {
		e := n.entries[idx[level]]
		if !e.Valid() {
			return 0, fmt.Errorf("%w: va %#x", ErrNotMapped, va)
		}

		n = pt.nodes[e.PPN()]
	}

	e := n.entries[idx[2]]
	if !e.Valid() {
		return 0, fmt.Errorf("%w: va %#x", ErrNotMapped, va)
	}

	return e, nil
}

// Unmap walks to the leaf for va and clears it (V=0). Interior frames along
// the path are left in place; memory sets are long-lived and per-thread,
// so the waste is accepted (see design notes on interior-frame reclaim).
func (pt *PageTable) Unmap(va riscv.VA) error {
	idx := riscv.Indices(va.VPN())
	n := pt.nodes[pt.root]

	for level := 0; level < 2; level++ {
		e := n.entries[idx[level]]
		if !e.Valid() {
			return fmt.Errorf("%w: va %#x", ErrNotMapped, va)
		}

		n = pt.nodes[e.PPN()]
	}

	leafIdx := idx[2]
	if !n.entries[leafIdx].Valid() {
		return fmt.Errorf("%w: va %#x", ErrNotMapped, va)
	}

	n.entries[leafIdx] = 0

	pt.log.Debug("unmapped", "va", fmt.Sprintf("%#x", va))

	return nil
}

// PageBytes returns the backing frame's contents for the page containing
// va, read the way the kernel reads any frame: through the physical-memory
// window. ErrNotMapped if the walk fails.
func (pt *PageTable) PageBytes(va riscv.VA) ([]byte, error) {
	e, err := pt.GetEntry(va.PageFloor())
	if err != nil {
		return nil, err
	}

	return framePage(e.PPN())[:], nil
}

// activeTable records, per HART, which table is currently activated. This
// core models one HART, so it is a single package-level slot guarded by
// the same discipline as the Processor: only the code running on the HART
// touches it, and that code is single-threaded between switches.
var activeTable *PageTable

// Activate installs this table as the HART's active address space. The
// real primitive writes satp and issues sfence.vma; the software model
// only records which table is the current address space, readable via
// Active().
func (pt *PageTable) Activate() {
	activeTable = pt
	pt.log.Debug("activated page table", "satp", fmt.Sprintf("%#x", pt.Token()))
}

// Active returns the page table currently activated on this HART, or nil
// before the first activation.
func Active() *PageTable { return activeTable }
