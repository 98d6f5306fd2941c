package syscall_test

import (
	"bytes"
	"errors"
	"testing"

	"sv39kernel/internal/elf"
	"sv39kernel/internal/firmware"
	"sv39kernel/internal/fs"
	"sv39kernel/internal/mm"
	"sv39kernel/internal/riscv"
	"sv39kernel/internal/sched"
	"sv39kernel/internal/syscall"
)

func testLayout() mm.KernelLayout {
	return mm.KernelLayout{
		KernelBeginPaddr: 0x8020_0000,
		KernelBeginVaddr: 0xffff_ffff_8020_0000,
		PhysMemEnd:       0x8030_0000,

		Stext: 0xffff_ffff_8020_0000,
		Etext: 0xffff_ffff_8020_1000,
		End:   0xffff_ffff_8020_1000,
	}
}

func testDeps() (*syscall.Deps, *fs.MemFS, *syscall.Programs) {
	memfs := fs.NewMemFS()
	programs := syscall.NewPrograms()

	deps := &syscall.Deps{
		SBI:          firmware.NewHeadless(),
		Stdin:        firmware.NewStdin(),
		FS:           memfs,
		Alloc:        mm.NewFrameAllocator(0x80201, 0x80300),
		KernelLayout: testLayout(),
		Paths:        syscall.NewPaths(),
		Programs:     programs,
	}

	return deps, memfs, programs
}

func installImage(memfs *fs.MemFS, programs *syscall.Programs, path string) []byte {
	code := []byte{0x13, 0x00, 0x00, 0x00}

	image := elf.Encode(&elf.File{
		Entry: 0x1_0000,
		Segments: []elf.Segment{
			{Vaddr: 0x1_0000, Memsz: 0x1000, Flags: elf.PFRead | elf.PFExecute, Data: code},
			{Vaddr: 0x2_0000, Memsz: 0x2000, Flags: elf.PFRead | elf.PFWrite, Data: []byte("data")},
		},
	})

	memfs.Add(path, image)
	programs.Register(path, func(*sched.Thread) {})

	return code
}

// TestBuildUserThread checks the full exec construction: segments mapped
// at their requested addresses with translated protections, file bytes
// copied in, the BSS tail zero-filled, and the user stack mapped R|W.
func TestBuildUserThread(t *testing.T) {
	deps, memfs, programs := testDeps()
	code := installImage(memfs, programs, "rust/hello_world")

	th, err := syscall.BuildUserThread(deps, "rust/hello_world")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	pt := th.MemorySet.PageTable()

	codeEntry, err := pt.GetEntry(0x1_0000)
	if err != nil {
		t.Fatalf("code entry: %v", err)
	}

	if !codeEntry.Is(riscv.FlagU | riscv.FlagR | riscv.FlagX) {
		t.Errorf("code flags = %#x, want U|R|X", codeEntry.Flags())
	}

	if codeEntry.Is(riscv.FlagW) {
		t.Error("code segment should not be writable")
	}

	dataEntry, err := pt.GetEntry(0x2_0000)
	if err != nil {
		t.Fatalf("data entry: %v", err)
	}

	if !dataEntry.Is(riscv.FlagU | riscv.FlagR | riscv.FlagW) {
		t.Errorf("data flags = %#x, want U|R|W", dataEntry.Flags())
	}

	page, err := pt.PageBytes(0x1_0000)
	if err != nil {
		t.Fatalf("code page: %v", err)
	}

	if !bytes.Equal(page[:len(code)], code) {
		t.Errorf("code bytes = %v, want %v", page[:len(code)], code)
	}

	// Past the file bytes, the rest of the page is zero-filled.
	for i := len(code); i < len(page); i++ {
		if page[i] != 0 {
			t.Fatalf("code page byte %d = %#x, want 0", i, page[i])
		}
	}

	// The second data page is wholly past Filesz: all zeros, never stale
	// frame contents.
	bssPage, err := pt.PageBytes(0x2_1000)
	if err != nil {
		t.Fatalf("bss page: %v", err)
	}

	for i, b := range bssPage {
		if b != 0 {
			t.Fatalf("bss byte %d = %#x, want 0", i, b)
		}
	}

	// The user stack range is mapped and user-writable.
	stackTop := syscall.UserStackOffset + syscall.UserStackSize - riscv.PageSize

	stackEntry, err := pt.GetEntry(riscv.VA(stackTop))
	if err != nil {
		t.Fatalf("stack entry: %v", err)
	}

	if !stackEntry.Is(riscv.FlagU | riscv.FlagR | riscv.FlagW) {
		t.Errorf("stack flags = %#x, want U|R|W", stackEntry.Flags())
	}
}

func TestBuildUserThreadMissingFile(t *testing.T) {
	deps, _, _ := testDeps()

	if _, err := syscall.BuildUserThread(deps, "no/such"); !errors.Is(err, fs.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBuildUserThreadInvalidElf(t *testing.T) {
	deps, memfs, programs := testDeps()

	memfs.Add("bad", []byte("not an elf"))
	programs.Register("bad", func(*sched.Thread) {})

	if _, err := syscall.BuildUserThread(deps, "bad"); !errors.Is(err, elf.ErrInvalidELF) {
		t.Errorf("err = %v, want ErrInvalidELF", err)
	}
}

func TestBuildUserThreadUnregisteredBody(t *testing.T) {
	deps, memfs, _ := testDeps()

	memfs.Add("orphan", elf.Encode(&elf.File{Entry: 0x1_0000}))

	if _, err := syscall.BuildUserThread(deps, "orphan"); err == nil {
		t.Error("expected error for image with no registered body")
	}
}
