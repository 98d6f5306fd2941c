package sched

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"sv39kernel/internal/log"
	"sv39kernel/internal/riscv"
)

// current is the processor's view of the thread presently executing: the
// handle has been moved out of the pool's slot into here, severing the
// ownership cycle pool -> thread -> pool. It is touched only by the idle
// thread (while nil) or by the Exit/Yield paths running on behalf of the
// current thread (while non-nil), never both at once, by construction.
type current struct {
	tid    int
	thread *Thread
}

// Processor is the process-wide, per-HART singleton owning the idle
// thread, the thread pool, and the currently running thread, if any. Its
// interior state is not lock-protected: only the idle thread or the
// currently running thread on this HART may touch it, and they are
// mutually exclusive, which this single-HART model upholds by
// construction (only one goroutine is ever not blocked on a resume
// channel at a time).
type Processor struct {
	pool *Pool
	idle *Context
	boot *Thread
	cur  *current

	// needResched is set by the timer-interrupt path when the running
	// thread's quantum expires. Go offers no way to interrupt a running
	// goroutine from outside, so the preemption the trap entry would
	// deliver on the victim's own stack is instead delivered at the
	// victim's next syscall boundary, where Preempt consumes the flag.
	needResched atomic.Bool

	log *log.Logger
}

// proc is the process-wide Processor singleton.
var proc *Processor

// NewProcessor constructs the singleton processor around pool. Call
// InstallProcessor to make it the one Exit/Yield/WakeUp act on.
func NewProcessor(pool *Pool) *Processor {
	return &Processor{
		pool: pool,
		idle: newContext(),
		boot: NewBootThread(),
		log:  log.DefaultLogger(),
	}
}

// InstallProcessor installs p as the process-wide singleton.
func InstallProcessor(p *Processor) { proc = p }

// Current returns the process-wide processor singleton.
func Current() *Processor { return proc }

// Pool returns the processor's thread pool.
func (p *Processor) Pool() *Pool { return p.pool }

// Run is the kernel's first transfer: it switches from the boot thread's
// sentinel context into the idle dispatch loop, which thereafter owns the
// HART until ctx is cancelled. Cancellation is a software-model-only
// affordance so tests can bound how long the idle loop runs; a real kernel
// never returns from here.
func (p *Processor) Run(ctx context.Context) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		p.idleLoop(ctx)
	}()

	// Like every switch, the first transfer happens with interrupts off;
	// the idle loop re-enables them itself whenever it has nothing to run.
	prev := riscv.DisableAndStore()

	Switch(p.boot.Context, p.idle)

	riscv.Restore(prev)

	<-done
}

// idleLoop is the idle thread's body: disable interrupts, then either
// acquire and run the next ready thread or wait for an interrupt.
func (p *Processor) idleLoop(ctx context.Context) {
	<-p.idle.resume

	riscv.SetSIE(false)

	for {
		select {
		case <-ctx.Done():
			handoff(p.boot.Context)
			return
		default:
		}

		tid, th, ok := p.pool.Acquire()
		if !ok {
			p.waitForInterrupt(ctx)
			continue
		}

		p.cur = &current{tid: tid, thread: th}

		// Activate the target thread's address space before handing it
		// the HART, so the running thread and the active page table
		// always agree: kernel threads carry no MemorySet and run in
		// whatever space was already active.
		if th.MemorySet != nil {
			th.MemorySet.Activate()
		}

		Switch(p.idle, th.Context)

		c := p.cur
		p.cur = nil
		p.pool.Retrieve(c.tid, c.thread)
	}
}

// waitForInterrupt enables interrupts and blocks briefly, standing in for
// WFI: the real instruction halts the HART until any interrupt arrives; in
// the software model, the timer and console goroutines wake the idle loop
// by the ordinary means of making a thread ready again, so this only needs
// to yield the Go scheduler and re-check for cancellation.
func (p *Processor) waitForInterrupt(ctx context.Context) {
	riscv.SetSIE(true)

	select {
	case <-ctx.Done():
	case <-time.After(time.Millisecond):
	}

	riscv.SetSIE(false)
}

// Exit is called on behalf of the currently running thread (by SYS_EXIT,
// or implicitly when a thread's body returns). It retires the thread's
// slot, wakes any parent waiting on it, and transfers the HART to idle.
// It never returns: exit is final, so the calling goroutine is terminated
// with runtime.Goexit after the hand-off.
func Exit(code int) {
	prev := riscv.DisableAndStore()

	p := proc
	c := p.cur
	p.pool.Exit(c.tid, code)

	if c.thread.Wait != NoWait {
		p.pool.Wakeup(c.thread.Wait)
	}

	riscv.Restore(prev)

	// The exiting thread's goroutine never resumes; a plain hand-off
	// (rather than Switch) avoids parking it forever on a channel no one
	// will ever send to again.
	handoff(p.idle)
	runtime.Goexit()
}

// Yield voluntarily relinquishes the HART: the current thread is marked
// Sleeping (it must be explicitly woken, via WakeUp, to run again) and
// control switches to idle.
func Yield() {
	prev := riscv.DisableAndStore()

	p := proc
	c := p.cur
	p.pool.SetSleeping(c.tid)

	Switch(c.thread.Context, p.idle)

	riscv.Restore(prev)
}

// Rotate voluntarily surrenders the remainder of the quantum: the caller
// re-enters the tail of the ready queue and the HART moves on, so every
// other ready thread runs once before this one is re-acquired. The wakeup
// is registered before the yield; a thread that yields with no wakeup
// pending sleeps until some other thread wakes it.
func Rotate() {
	p := proc
	c := p.cur

	p.pool.Wakeup(c.tid)
	Yield()
}

// WakeUp marks tid ready and re-enters it into the scheduler.
func WakeUp(tid int) {
	proc.pool.Wakeup(tid)
}

// CurrentTid returns the tid of the thread presently executing, and false
// if called from outside any thread's context (e.g. from the idle loop
// itself).
func CurrentTid() (int, bool) {
	p := proc
	if p.cur == nil {
		return 0, false
	}

	return p.cur.tid, true
}

// CurrentThread returns the Thread presently executing.
func CurrentThread() (*Thread, bool) {
	p := proc
	if p.cur == nil {
		return nil, false
	}

	return p.cur.thread, true
}

// TimerTick is called from the trap dispatcher's timer-interrupt path
// after bumping the tick counter. If the running thread's quantum is
// exhausted, it flags the processor for rescheduling; the flag is consumed
// by Preempt at the running thread's next syscall boundary.
func TimerTick() {
	p := proc
	if p == nil {
		return
	}

	if p.pool.Tick() {
		p.needResched.Store(true)
	}
}

// Preempt yields the HART if a timer tick has expired the current quantum.
// It must be called on behalf of the currently running thread (the trap
// dispatcher does so after every handled ecall) and is a no-op otherwise.
func Preempt() {
	p := proc
	if p == nil || p.cur == nil {
		return
	}

	if !p.needResched.CompareAndSwap(true, false) {
		return
	}

	prev := riscv.DisableAndStore()
	Switch(p.cur.thread.Context, p.idle)
	riscv.Restore(prev)
}
