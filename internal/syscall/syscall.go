// Package syscall implements the four syscalls this core exposes
// (read, write, exit, exec) over the trap dispatcher: a dispatch table
// from syscall id to handler function, results written back through the
// trap frame's a0.
package syscall

import (
	"fmt"
	"sync"

	"sv39kernel/internal/elf"
	"sv39kernel/internal/firmware"
	"sv39kernel/internal/fs"
	"sv39kernel/internal/log"
	"sv39kernel/internal/mm"
	"sv39kernel/internal/riscv"
	"sv39kernel/internal/sched"
)

// Syscall ids, matching the RISC-V Linux ABI numbering this core targets.
const (
	SysRead  = 63
	SysWrite = 64
	SysExit  = 93
	SysExec  = 221
)

// UserStackOffset and UserStackSize are the fixed VA range every exec'd
// user thread's stack occupies.
const (
	UserStackOffset = riscv.VA(0x0000_0010_0000_0000)
	UserStackSize   = 8 * riscv.PageSize
)

// Programs resolves a path to the Go closure standing in for the loaded
// ELF's machine code: since there is no RV64 interpreter in this core,
// "loading" an executable still fully parses its ELF headers and builds
// a real memory set, but the code that actually runs at the entry point
// is whatever body was registered under the same path.
type Programs struct {
	mut   sync.Mutex
	table map[string]sched.Body
}

// NewPrograms returns an empty program registry.
func NewPrograms() *Programs { return &Programs{table: map[string]sched.Body{}} }

// Register associates path with the body that runs when it is exec'd.
func (p *Programs) Register(path string, body sched.Body) {
	p.mut.Lock()
	defer p.mut.Unlock()

	p.table[path] = body
}

func (p *Programs) lookup(path string) (sched.Body, bool) {
	p.mut.Lock()
	defer p.mut.Unlock()

	body, ok := p.table[path]

	return body, ok
}

// Paths stands in for "a NUL-terminated path in the kernel's direct map":
// since this core has no byte-addressable simulation of arbitrary user
// virtual addresses, a caller wanting to exec a path registers it here and
// passes the returned handle as SYS_EXEC's a0, the software-model
// equivalent of a pointer the dispatcher resolves through the active page
// table.
type Paths struct {
	mut   sync.Mutex
	next  riscv.Word
	table map[riscv.Word]string
}

// NewPaths returns an empty path-handle table.
func NewPaths() *Paths { return &Paths{table: map[riscv.Word]string{}} }

// Register returns a handle for path, allocating a fresh one if this is
// the first time path has been registered.
func (p *Paths) Register(path string) riscv.Word {
	p.mut.Lock()
	defer p.mut.Unlock()

	for h, existing := range p.table {
		if existing == path {
			return h
		}
	}

	h := p.next
	p.next++
	p.table[h] = path

	return h
}

func (p *Paths) resolve(h riscv.Word) (string, bool) {
	p.mut.Lock()
	defer p.mut.Unlock()

	path, ok := p.table[h]

	return path, ok
}

// Deps collects every external collaborator the syscall handlers need:
// the firmware console, the stdin queue, the filesystem, the frame
// allocator and kernel layout to build a fresh address space for exec,
// the path-handle table, and the program registry.
type Deps struct {
	SBI          firmware.SBI
	Stdin        *firmware.Stdin
	FS           fs.FileSystem
	Alloc        *mm.FrameAllocator
	KernelLayout mm.KernelLayout
	Paths        *Paths
	Programs     *Programs
}

// Dispatch runs the syscall named by id with args [a0,a1,a2], writing any
// side effects (SYS_READ's result byte) into tf, and returns the value the
// trap dispatcher places in x10.
func Dispatch(id riscv.Word, args [3]riscv.Word, tf *riscv.TrapFrame, deps *Deps) riscv.Word {
	switch id {
	case SysRead:
		return sysRead(tf, deps)
	case SysWrite:
		return sysWrite(args, deps)
	case SysExit:
		sysExit(args)
		return 0
	case SysExec:
		return sysExec(args, deps)
	default:
		panic(fmt.Sprintf("syscall: unknown syscall id %d", id))
	}
}

// sysRead blocks on the stdin condvar until a byte is available. The real
// contract stores the byte at the user pointer in a1 and returns 1; this
// model has no byte-addressable user memory to write through, so the
// dispatcher writes the byte directly into the a1 register slot of tf,
// which the caller reads back with tf.Arg(1).
func sysRead(tf *riscv.TrapFrame, deps *Deps) riscv.Word {
	c := deps.Stdin.Pop()
	tf.X[riscv.RegA1] = riscv.Word(c)

	return 1
}

func sysWrite(args [3]riscv.Word, deps *Deps) riscv.Word {
	deps.SBI.ConsolePutChar(byte(args[0]))
	return 0
}

func sysExit(args [3]riscv.Word) {
	sched.Exit(int(int64(args[0])))
}

// segAttr translates ELF segment flags to a memory attribute: user is
// always true (exec'd images only ever run in user mode), readable is
// always true.
func segAttr(flags elf.ProgramFlag) mm.Attr {
	return mm.Attr{
		User:     true,
		Readonly: flags&elf.PFWrite == 0,
		Execute:  flags&elf.PFExecute != 0,
	}
}

// BuildUserThread resolves path through the filesystem, parses the ELF,
// builds a fresh memory set from its LOAD segments plus the fixed user
// stack range, and returns the constructed (not yet admitted) user thread.
// It is shared by SYS_EXEC and by the boot sequence, which launches the
// initial user thread the same way an exec would, minus the parent wait.
func BuildUserThread(deps *Deps, path string) (*sched.Thread, error) {
	inode, err := deps.FS.Lookup(path)
	if err != nil {
		return nil, fmt.Errorf("exec %q: %w", path, err)
	}

	data, err := inode.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("exec %q: %w", path, err)
	}

	image, err := elf.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("exec %q: %w", path, err)
	}

	body, ok := deps.Programs.lookup(path)
	if !ok {
		return nil, fmt.Errorf("exec %q: no registered program body", path)
	}

	ms, err := mm.NewMemorySet(deps.Alloc, deps.KernelLayout)
	if err != nil {
		panic(fmt.Errorf("exec: %w", err)) // OutOfFrames is fatal, not recoverable.
	}

	byFrame := mm.NewByFrame(deps.Alloc)

	for _, seg := range image.Segments {
		start := riscv.VA(seg.Vaddr)
		end := riscv.VA(seg.Vaddr + seg.Memsz)
		attr := segAttr(seg.Flags)

		if err := ms.Push(start, end, attr, byFrame, &mm.PageData{Src: seg.Data}); err != nil {
			return nil, fmt.Errorf("exec %q: %w", path, err)
		}
	}

	ustackTop := riscv.VA(UserStackOffset + UserStackSize)

	if err := ms.Push(UserStackOffset, ustackTop, mm.AttrUserRW, byFrame, nil); err != nil {
		panic(fmt.Errorf("exec: user stack: %w", err))
	}

	return sched.NewUserThread(body, ms, riscv.Word(image.Entry), riscv.Word(ustackTop)), nil
}

// sysExec resolves a0 to a path, builds a new user thread from the named
// ELF whose wait tid is the caller's, admits it, and yields. Any
// recoverable failure (an unregistered handle, a missing file, a
// malformed ELF) returns 0 without yielding, never propagating past this
// syscall.
func sysExec(args [3]riscv.Word, deps *Deps) riscv.Word {
	l := log.DefaultLogger()

	path, ok := deps.Paths.resolve(args[0])
	if !ok {
		l.Error("exec: unresolved path handle", "handle", args[0])
		return 0
	}

	th, err := BuildUserThread(deps, path)
	if err != nil {
		l.Error("exec failed", "path", path, "err", err)
		return 0
	}

	tid, ok := sched.CurrentTid()
	if !ok {
		panic("exec: called outside any thread")
	}

	th.Wait = tid

	sched.Current().Pool().Add(th)

	l.Info("exec", "path", path)

	sched.Yield()

	return 0
}
