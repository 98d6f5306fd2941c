package mm_test

import (
	"errors"
	"testing"

	"sv39kernel/internal/mm"
	"sv39kernel/internal/riscv"
)

func TestFrameAllocatorBoundary(t *testing.T) {
	fa := mm.NewFrameAllocator(10, 11) // R-L == 1

	ppn, err := fa.Alloc()
	if err != nil {
		t.Fatalf("first alloc: %v", err)
	}
	if ppn != 10 {
		t.Errorf("ppn = %#x, want 10", ppn)
	}

	if _, err := fa.Alloc(); !errors.Is(err, mm.ErrOutOfFrames) {
		t.Fatalf("second alloc: err = %v, want ErrOutOfFrames", err)
	}

	fa.Dealloc(ppn)

	if _, err := fa.Alloc(); err != nil {
		t.Fatalf("alloc after dealloc: %v", err)
	}
}

func TestFrameAllocatorRange(t *testing.T) {
	fa := mm.NewFrameAllocator(100, 104)

	seen := map[riscv.PPN]bool{}
	for i := 0; i < 4; i++ {
		ppn, err := fa.Alloc()
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		if seen[ppn] {
			t.Fatalf("ppn %#x allocated twice", ppn)
		}
		seen[ppn] = true
	}

	if _, err := fa.Alloc(); !errors.Is(err, mm.ErrOutOfFrames) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
}

func TestPageTableMapUnmapRoundTrip(t *testing.T) {
	fa := mm.NewFrameAllocator(0x1000, 0x2000)

	pt, err := mm.NewBare(fa)
	if err != nil {
		t.Fatalf("new bare: %v", err)
	}

	va := riscv.VA(0x0000_0000_4000_0000)
	pa := riscv.PA(0x0000_0000_8000_0000)
	attr := mm.AttrKernelRW

	if err := pt.Map(va, pa, attr.Flags()); err != nil {
		t.Fatalf("map: %v", err)
	}

	e, err := pt.GetEntry(va)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}

	if e.PPN() != pa.PPN() {
		t.Errorf("entry PPN = %#x, want %#x", e.PPN(), pa.PPN())
	}

	if err := pt.Unmap(va); err != nil {
		t.Fatalf("unmap: %v", err)
	}

	if _, err := pt.GetEntry(va); !errors.Is(err, mm.ErrNotMapped) {
		t.Errorf("get entry after unmap: err = %v, want ErrNotMapped", err)
	}
}

func TestPageTableDoubleMapFails(t *testing.T) {
	fa := mm.NewFrameAllocator(0x1000, 0x2000)
	pt, _ := mm.NewBare(fa)

	va := riscv.VA(0x1000_0000)

	if err := pt.Map(va, riscv.PA(0x2000_0000), mm.AttrKernelRW.Flags()); err != nil {
		t.Fatalf("first map: %v", err)
	}

	if err := pt.Map(va, riscv.PA(0x3000_0000), mm.AttrKernelRW.Flags()); !errors.Is(err, mm.ErrAlreadyMapped) {
		t.Fatalf("second map: err = %v, want ErrAlreadyMapped", err)
	}
}

func testLayout() mm.KernelLayout {
	return mm.KernelLayout{
		KernelBeginPaddr: 0x8020_0000,
		KernelBeginVaddr: 0xffff_ffff_8020_0000,
		PhysMemEnd:       0x8800_0000,

		Stext:   0xffff_ffff_8020_0000,
		Etext:   0xffff_ffff_8021_0000,
		Srodata: 0xffff_ffff_8021_0000,
		Erodata: 0xffff_ffff_8021_2000,
		Sdata:   0xffff_ffff_8021_2000,
		Edata:   0xffff_ffff_8021_4000,
		Sbss:    0xffff_ffff_8021_4000,
		Ebss:    0xffff_ffff_8021_6000,
		End:     0xffff_ffff_8021_6000,
	}
}

func TestMemorySetKernelPreamble(t *testing.T) {
	fa := mm.NewFrameAllocator(0x1000, 0x1_0000)
	kl := testLayout()

	ms, err := mm.NewMemorySet(fa, kl)
	if err != nil {
		t.Fatalf("new memory set: %v", err)
	}

	areas := ms.Areas()
	if len(areas) < 4 {
		t.Fatalf("expected at least 4 preamble areas (text/rodata/data/bss), got %d", len(areas))
	}

	// Invariant: kernel preamble present with specified protections.
	if areas[0].Attr != mm.AttrKernelText {
		t.Errorf("text area attr = %+v, want AttrKernelText", areas[0].Attr)
	}
}

func TestMemorySetPushDisjointness(t *testing.T) {
	fa := mm.NewFrameAllocator(0x1000, 0x1_0000)
	ms, err := mm.NewMemorySet(fa, mm.KernelLayout{})
	if err != nil {
		t.Fatalf("new memory set: %v", err)
	}

	byFrame := mm.NewByFrame(fa)

	if err := ms.Push(0x1000_0000, 0x1000_2000, mm.AttrUserRW, byFrame, nil); err != nil {
		t.Fatalf("first push: %v", err)
	}

	if err := ms.Push(0x1000_1000, 0x1000_3000, mm.AttrUserRW, byFrame, nil); !errors.Is(err, mm.ErrOverlap) {
		t.Fatalf("overlapping push: err = %v, want ErrOverlap", err)
	}
}

func TestMemorySetPushEmptyRange(t *testing.T) {
	fa := mm.NewFrameAllocator(0x1000, 0x1_0000)
	ms, err := mm.NewMemorySet(fa, mm.KernelLayout{})
	if err != nil {
		t.Fatalf("new memory set: %v", err)
	}

	byFrame := mm.NewByFrame(fa)

	if err := ms.Push(0x2000_0000, 0x2000_0000, mm.AttrUserRW, byFrame, nil); err != nil {
		t.Fatalf("empty push: %v", err)
	}

	found := false
	for _, a := range ms.Areas() {
		if a.Start == 0x2000_0000 && a.End == 0x2000_0000 {
			found = true
		}
	}
	if !found {
		t.Error("empty area was not recorded")
	}
}

func TestMemorySetPageCopy(t *testing.T) {
	fa := mm.NewFrameAllocator(0x1000, 0x1_0000)
	ms, err := mm.NewMemorySet(fa, mm.KernelLayout{})
	if err != nil {
		t.Fatalf("new memory set: %v", err)
	}

	byFrame := mm.NewByFrame(fa)
	src := []byte("hello")

	// Two pages backed by one short source: the first page carries the
	// bytes with a zero tail, the second is wholly zero-filled even if
	// its frame held stale contents from a previous owner.
	if err := ms.Push(0x3000_0000, 0x3000_2000, mm.AttrUserRW, byFrame, &mm.PageData{Src: src}); err != nil {
		t.Fatalf("push with data: %v", err)
	}

	page, err := ms.PageTable().PageBytes(0x3000_0000)
	if err != nil {
		t.Fatalf("page bytes: %v", err)
	}

	if string(page[:len(src)]) != "hello" {
		t.Errorf("page prefix = %q, want %q", page[:len(src)], src)
	}

	for i := len(src); i < len(page); i++ {
		if page[i] != 0 {
			t.Fatalf("byte %d = %#x, want zero tail", i, page[i])
		}
	}

	tail, err := ms.PageTable().PageBytes(0x3000_1000)
	if err != nil {
		t.Fatalf("tail page bytes: %v", err)
	}

	for i, b := range tail {
		if b != 0 {
			t.Fatalf("tail byte %d = %#x, want 0", i, b)
		}
	}
}
