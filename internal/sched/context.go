// Package sched implements thread lifecycle, context switching, the
// round-robin scheduler, the slotted thread pool, and the per-HART
// processor dispatch loop.
//
// There is no naked-assembly switch primitive here, since this core has no
// RV64 interpreter to run saved register state through, but the Context
// block it would operate on is still a real, fixed-shape value, and Switch
// keeps the same shape: it
// transfers control from exactly one stack of execution to exactly one
// other, and its callers disable interrupts before calling it. The transfer itself is
// realized as a rendezvous between the two goroutines standing in for the
// "current" and "target" kernel/user stacks, which is the idiomatic Go
// analogue of "only one of these two stacks runs at a time."
package sched

import (
	"sv39kernel/internal/riscv"
)

// Context is the saved architectural state of a suspended thread: the
// return address execution resumes at, the address-space token, the
// callee-saved registers, and the embedded trap frame that a first-ever
// switch restores into the trap-return epilogue. Field order is fixed:
// ra, satp, s0..s11, then the trap frame.
type Context struct {
	RA   riscv.Word
	Satp riscv.Satp
	S    [12]riscv.Word

	TrapFrame riscv.TrapFrame

	// resume is the rendezvous channel standing in for "this stack is
	// runnable again." Switch sends on the target's resume channel to
	// wake it, and blocks receiving on the caller's own resume channel
	// until some other switch wakes it back up.
	resume chan struct{}
}

// newContext allocates an empty context with its rendezvous channel ready.
func newContext() *Context {
	return &Context{resume: make(chan struct{})}
}

// NewKernelThreadContext synthesizes the context for a kernel thread that
// has never run: ra points at the (notional) trap-return epilogue, so the
// first switch into this context resumes at entry in supervisor mode with
// interrupts enabled, stack pointer at the top of its kernel stack.
func NewKernelThreadContext(entry, kstackTop riscv.Word, satp riscv.Satp) *Context {
	ctx := newContext()
	ctx.Satp = satp
	ctx.TrapFrame = riscv.NewEntryFrame(entry, kstackTop, riscv.Supervisor)

	return ctx
}

// NewUserThreadContext is identical to NewKernelThreadContext except the
// synthesized trap frame's stack pointer is the user stack top and SPP is
// User, so sret from the epilogue drops into user mode. The caller must
// have already mapped ustackTop, kstackTop, and the entry code into the
// target address space.
func NewUserThreadContext(entry, ustackTop, kstackTop riscv.Word, satp riscv.Satp) *Context {
	ctx := newContext()
	ctx.Satp = satp
	ctx.TrapFrame = riscv.NewEntryFrame(entry, ustackTop, riscv.User)
	_ = kstackTop // recorded on the owning Thread, not the context itself

	return ctx
}

// newBootContext returns the sentinel context for the boot thread: its
// resume channel exists only so Switch has somewhere valid to send the
// first wake-up to whatever it switches into, mirroring the "dummy block
// at address 0" allowance in the design notes. Nothing ever switches back
// into it in normal operation.
func newBootContext() *Context { return newContext() }

// AppendInitialArguments patches the synthesized trap frame so the thread
// sees [a0, a1, a2] as arguments after its first return from switch.
func (c *Context) AppendInitialArguments(a0, a1, a2 riscv.Word) {
	c.TrapFrame.AppendInitialArguments(a0, a1, a2)
}

// Switch transfers control from the calling stack to target: it wakes
// target's goroutine and then blocks until some other Switch call wakes
// this one back up. Every call site must already have interrupts disabled
// (see riscv.DisableAndStore); Switch itself does not touch sstatus.
func Switch(from, to *Context) {
	to.resume <- struct{}{}
	<-from.resume
}

// handoff wakes target without blocking the caller on its own resume
// channel. Used for the idle loop's final transfer back to the boot
// sentinel at shutdown, and by Exit to hand the HART to idle from a thread
// that will never be resumed.
func handoff(to *Context) {
	to.resume <- struct{}{}
}
