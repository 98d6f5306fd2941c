package sched

import (
	"sv39kernel/internal/log"
	"sv39kernel/internal/mm"
	"sv39kernel/internal/riscv"
)

// KernelStackPages is the fixed size, in pages, of every kernel stack.
const KernelStackPages = 8

// KernelStack is a fixed-size heap allocation a thread's context lives on
// top of. It owns its memory: Free releases the backing allocation. The
// boot thread's stack is the sentinel returned by bootStack, whose address
// is 0 and whose Free is a no-op.
type KernelStack struct {
	top  riscv.Word
	boot bool
}

// newKernelStack "allocates" a kernel stack. The software model has no
// byte-addressable heap to carve real pages out of, so the stack is
// represented by a unique synthetic top-of-stack address; what matters to
// the rest of the kernel is that it is a distinct, stable value suitable
// for seeding a Context's stack pointer.
var nextStackTop riscv.Word = 0x9000_0000

func newKernelStack() *KernelStack {
	top := nextStackTop
	nextStackTop += KernelStackPages * riscv.PageSize

	return &KernelStack{top: top}
}

func bootStack() *KernelStack { return &KernelStack{top: 0, boot: true} }

// Top returns the stack's initial top-of-stack address.
func (k *KernelStack) Top() riscv.Word { return k.top }

// Free releases the stack's backing allocation. It is a no-op for the boot
// sentinel stack.
func (k *KernelStack) Free() {
	if k.boot {
		return
	}
	// The software model's stacks are synthetic addresses, not real
	// allocations, so there is nothing further to release; a real
	// kernel would return these pages to the frame allocator here.
}

// Body is a kernel or user thread's entry point. It runs on its own
// goroutine, standing in for "the code this thread's saved PC eventually
// resumes at". A body that returns normally is equivalent to the thread
// falling off the end of its entry function, which the real kernel
// translates into SYS_EXIT(0).
type Body func(t *Thread)

// Thread owns a context address and a kernel stack, and optionally records
// the tid of a parent to wake on exit (set by SYS_EXEC for the child it
// spawns).
type Thread struct {
	Tid       int
	Context   *Context
	Stack     *KernelStack
	Wait      int // -1 if no parent is waiting on this thread.
	MemorySet *mm.MemorySet

	body Body
	log  *log.Logger

	started bool
}

const NoWait = -1

// NewKernelThread constructs a kernel thread: a fresh kernel stack, a
// context synthesized so the first switch lands in body, and a goroutine
// parked waiting for that first switch.
func NewKernelThread(body Body, satp riscv.Satp) *Thread {
	stack := newKernelStack()
	ctx := NewKernelThreadContext(0, stack.Top(), satp)

	t := &Thread{
		Context: ctx,
		Stack:   stack,
		Wait:    NoWait,
		body:    body,
		log:     log.DefaultLogger(),
	}

	t.spawn()

	return t
}

// NewUserThread constructs a user thread whose entry point, user stack,
// and address space the caller (SYS_EXEC) has already built via ms. body
// is the registered closure standing in for the loaded ELF's machine
// code, resolved by the path it was installed under.
func NewUserThread(body Body, ms *mm.MemorySet, entry, ustackTop riscv.Word) *Thread {
	stack := newKernelStack()
	ctx := NewUserThreadContext(entry, ustackTop, stack.Top(), ms.Token())

	t := &Thread{
		Context:   ctx,
		Stack:     stack,
		Wait:      NoWait,
		MemorySet: ms,
		body:      body,
		log:       log.DefaultLogger(),
	}

	t.spawn()

	return t
}

// NewBootThread returns the sentinel thread the very first switch
// transfers control away from. Its context address is the sentinel
// (address 0); the callee-saved state the switch primitive writes there
// on the first call is discarded, since the boot thread is never resumed.
func NewBootThread() *Thread {
	return &Thread{
		Tid:     -1,
		Context: newBootContext(),
		Stack:   bootStack(),
		Wait:    NoWait,
	}
}

// spawn starts the thread's goroutine. It immediately blocks waiting for
// the first Switch into this thread's context; only then does it run body.
func (t *Thread) spawn() {
	if t.body == nil {
		return
	}

	go func() {
		<-t.Context.resume

		t.body(t)

		// Falling off the end of body without an explicit exit call is
		// equivalent to the entry function returning, which the real
		// kernel routes to SYS_EXIT(0).
		Exit(0)
	}()
}
