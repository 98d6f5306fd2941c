package mm

import (
	"errors"
	"fmt"

	"sv39kernel/internal/riscv"
)

// ErrOverlap is returned when a pushed area's range intersects an existing
// area in the same memory set. It is treated as a caller bug, fatal at the
// call site.
var ErrOverlap = errors.New("mm: mapping overlap")

// Area is a page-aligned, half-open virtual range with an attached backing
// policy and protection attribute. Areas within one memory set are
// pairwise disjoint by construction (MemorySet.Push asserts it).
type Area struct {
	Start   riscv.VA
	End     riscv.VA
	Handler Handler
	Attr    Attr
}

// Contains reports whether va falls within the area's range.
func (a Area) Contains(va riscv.VA) bool { return va >= a.Start && va < a.End }

// overlaps reports whether two half-open ranges intersect.
func (a Area) overlaps(b Area) bool {
	return a.Start < b.End && b.Start < a.End
}

// pageFloor rounds a VA down to the nearest page boundary.
func pageFloor(va riscv.VA) riscv.VA { return va.PageFloor() }

// pages returns every page-aligned VA in [start, end).
func pages(start, end riscv.VA) []riscv.VA {
	var out []riscv.VA
	for va := pageFloor(start); va < end; va += riscv.PageSize {
		out = append(out, va)
	}
	return out
}

func validateRange(start, end riscv.VA) error {
	if start > end {
		return fmt.Errorf("mm: invalid range [%#x,%#x)", start, end)
	}
	return nil
}
