package trap

import (
	"context"
	"fmt"
	"time"

	"sv39kernel/internal/firmware"
	"sv39kernel/internal/log"
	"sv39kernel/internal/riscv"
	"sv39kernel/internal/sched"
	"sv39kernel/internal/syscall"
)

// PollInterval is how often the software model polls the firmware console
// for a pending character, standing in for the PLIC routing UART0's
// receive-interrupt line to this HART.
const PollInterval = 2 * time.Millisecond

// Dispatcher decodes scause and routes to the matching handler. It owns
// the syscall dependencies and the firmware/timer collaborators the
// timer and external-interrupt paths need.
type Dispatcher struct {
	sbi   firmware.SBI
	timer *firmware.Timer
	deps  *syscall.Deps
	log   *log.Logger
}

// New constructs a Dispatcher. deps.SBI and deps.Stdin must already be set;
// timer wraps the same sbi for next-tick programming.
func New(sbi firmware.SBI, timer *firmware.Timer, deps *syscall.Deps) *Dispatcher {
	return &Dispatcher{sbi: sbi, timer: timer, deps: deps, log: log.Sub("trap")}
}

var current *Dispatcher

// Install makes d the process-wide dispatcher Ecall operates against.
func Install(d *Dispatcher) { current = d }

// Current returns the installed dispatcher.
func Current() *Dispatcher { return current }

// Boot performs the trap machinery's one-time setup: program the first
// timer tick and enable interrupts. The sscratch/stvec/PLIC programming
// a real kernel performs here has no register to write in this software
// model (there is no assembly trap entry to vector to); Boot logs the
// steps it stands in for and leaves SIE enabled, matching the real boot
// sequence's end state.
func (d *Dispatcher) Boot() {
	d.log.Info("trap: sscratch <- 0 (supervisor mode sentinel)")
	d.log.Info("trap: stvec <- __alltraps (direct mode)")
	d.timer.ProgramNext()
	riscv.SetSIE(true)
	d.log.Info("trap: sstatus.SIE set, PLIC routed, UART interrupt enabled")
}

// RunTimer starts the goroutine standing in for the hardware timer firing
// supervisor-timer interrupts into the trap entry, once per PollInterval.
func (d *Dispatcher) RunTimer(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.HandleTimer()
			}
		}
	}()
}

// RunExternal starts the goroutine standing in for the PLIC delivering
// UART0's receive-interrupt to this HART: it polls the console for a
// pending byte and, when one arrives, runs the external-interrupt path.
func (d *Dispatcher) RunExternal(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.HandleExternal()
			}
		}
	}()
}

// HandleTimer is the supervisor-timer interrupt path: program the next
// tick, bump the counter, and notify the scheduler, which flags the
// running thread for preemption at its next ecall if its quantum is
// exhausted.
func (d *Dispatcher) HandleTimer() {
	d.timer.Tick()
	sched.TimerTick()
}

// HandleExternal is the supervisor-external interrupt path: drain one
// character from the console, translating '\r' to '\n', and push it to
// the stdin queue.
func (d *Dispatcher) HandleExternal() {
	c, ok := d.sbi.ConsoleGetChar()
	if !ok {
		return
	}

	if c == '\r' {
		c = '\n'
	}

	d.deps.Stdin.Push(c)
}

// HandleBreakpoint logs the breakpoint and advances sepc past the
// (notional) 2-byte compressed instruction that raised it.
func (d *Dispatcher) HandleBreakpoint(tf *riscv.TrapFrame) {
	d.log.Info("breakpoint", "sepc", fmt.Sprintf("%#x", tf.Sepc))
	tf.Sepc += 2
}

// HandlePageFault is fatal: no demand paging in this core. It logs the
// cause, faulting VA, and sepc, then panics.
func (d *Dispatcher) HandlePageFault(tf *riscv.TrapFrame, cause riscv.Cause) {
	d.log.Error("page fault", "cause", describe(cause), "va", fmt.Sprintf("%#x", tf.Stval), "sepc", fmt.Sprintf("%#x", tf.Sepc))
	panic(fmt.Sprintf("%s va=%#x sepc=%#x", describe(cause), tf.Stval, tf.Sepc))
}

// HandleUserECall dispatches a0..a2/x17-encoded syscall and writes its
// result into x10, advancing sepc past the ecall instruction first. Before
// returning to the caller it consumes any pending quantum expiry: the trap
// taken for the ecall is also the boundary at which a timer-flagged
// preemption lands.
func (d *Dispatcher) HandleUserECall(tf *riscv.TrapFrame) {
	tf.Sepc += 4

	id := tf.SyscallID()
	args := [3]riscv.Word{tf.Arg(0), tf.Arg(1), tf.Arg(2)}

	ret := syscall.Dispatch(id, args, tf, d.deps)
	tf.SetReturn(ret)

	sched.Preempt()
}

// Handle decodes cause and routes to the matching handler. Anything
// undefined, including every page-fault exception, is fatal.
func (d *Dispatcher) Handle(tf *riscv.TrapFrame, cause riscv.Cause) {
	switch cause {
	case riscv.CauseBreakpoint:
		d.HandleBreakpoint(tf)
	case riscv.CauseSupervisorTimer:
		d.HandleTimer()
	case riscv.CauseSupervisorExternal:
		d.HandleExternal()
	case riscv.CauseUserECall:
		d.HandleUserECall(tf)
	case riscv.CauseInstructionPageFault, riscv.CauseLoadPageFault, riscv.CauseStorePageFault:
		d.HandlePageFault(tf, cause)
	default:
		if !fatal(cause) {
			panic(fmt.Sprintf("trap: cause %s claimed non-fatal but unhandled", describe(cause)))
		}

		d.log.Error("undefined trap", "cause", describe(cause))
		panic(fmt.Sprintf("undefined trap: cause=%d", cause))
	}
}

// Ecall synthesizes a trap frame carrying id/a0/a1/a2, runs it through
// HandleUserECall exactly as the real ECall exception path would, and
// returns the result written to x10. This is how a thread body, the
// closure standing in for real machine code, performs a syscall: there
// is no ecall instruction to trap on, so the body calls Ecall directly.
// The returned frame's a1 carries SYS_READ's result byte; callers that
// need it can recover it with tf.Arg(1), which is why Ecall returns the
// frame too.
func (d *Dispatcher) Ecall(id, a0, a1, a2 riscv.Word) (riscv.Word, riscv.TrapFrame) {
	var tf riscv.TrapFrame

	tf.X[riscv.RegA7] = id
	tf.X[riscv.RegA0] = a0
	tf.X[riscv.RegA1] = a1
	tf.X[riscv.RegA2] = a2

	d.HandleUserECall(&tf)

	return tf.X[riscv.RegA0], tf
}
