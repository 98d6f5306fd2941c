package trap_test

import (
	"strings"
	"testing"

	"sv39kernel/internal/firmware"
	"sv39kernel/internal/riscv"
	"sv39kernel/internal/syscall"
	"sv39kernel/internal/trap"
)

func newDispatcher() (*trap.Dispatcher, *firmware.Headless, *firmware.Stdin) {
	sbi := firmware.NewHeadless()
	stdin := firmware.NewStdin()
	timer := firmware.NewTimer(sbi, 1)

	deps := &syscall.Deps{
		SBI:   sbi,
		Stdin: stdin,
	}

	return trap.New(sbi, timer, deps), sbi, stdin
}

func TestBreakpointAdvancesSepc(t *testing.T) {
	d, _, _ := newDispatcher()

	tf := riscv.TrapFrame{Sepc: 0x8000_0100}
	d.Handle(&tf, riscv.CauseBreakpoint)

	if tf.Sepc != 0x8000_0102 {
		t.Errorf("sepc = %#x, want entry+2", tf.Sepc)
	}
}

func TestPageFaultIsFatal(t *testing.T) {
	d, _, _ := newDispatcher()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on page fault")
		}

		msg, ok := r.(string)
		if !ok {
			t.Fatalf("panic value %T, want string", r)
		}

		if !strings.Contains(msg, "LoadPageFault") || !strings.Contains(msg, "0x12345678") {
			t.Errorf("panic %q should name the cause and faulting va", msg)
		}
	}()

	tf := riscv.TrapFrame{Stval: 0x1234_5678, Sepc: 0x8000_0200}
	d.Handle(&tf, riscv.CauseLoadPageFault)
}

func TestUndefinedTrapIsFatal(t *testing.T) {
	d, _, _ := newDispatcher()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on undefined trap")
		}
	}()

	var tf riscv.TrapFrame

	d.Handle(&tf, riscv.Cause(24))
}

func TestExternalInterruptDrainsConsole(t *testing.T) {
	d, sbi, stdin := newDispatcher()

	sbi.Feed('a', '\r')

	d.HandleExternal()
	d.HandleExternal()

	if n := stdin.Len(); n != 2 {
		t.Fatalf("stdin has %d bytes, want 2", n)
	}

	// No byte pending: the handler is a no-op.
	d.HandleExternal()

	if n := stdin.Len(); n != 2 {
		t.Errorf("stdin has %d bytes after empty drain, want 2", n)
	}
}

func TestTimerInterruptCounts(t *testing.T) {
	sbi := firmware.NewHeadless()
	timer := firmware.NewTimer(sbi, 1)
	d := trap.New(sbi, timer, &syscall.Deps{SBI: sbi, Stdin: firmware.NewStdin()})

	d.HandleTimer()
	d.HandleTimer()

	if ticks := timer.Ticks(); ticks != 2 {
		t.Errorf("ticks = %d, want 2", ticks)
	}
}

func TestEcallWrite(t *testing.T) {
	d, sbi, _ := newDispatcher()

	for _, c := range []byte("hi\n") {
		ret, _ := d.Ecall(syscall.SysWrite, riscv.Word(c), 0, 0)
		if ret != 0 {
			t.Fatalf("write returned %d, want 0", ret)
		}
	}

	if got := sbi.Output(); got != "hi\n" {
		t.Errorf("console output = %q, want %q", got, "hi\n")
	}
}

func TestEcallAdvancesSepc(t *testing.T) {
	d, _, _ := newDispatcher()

	var tf riscv.TrapFrame

	tf.Sepc = 0x10000
	tf.X[riscv.RegA7] = syscall.SysWrite

	d.HandleUserECall(&tf)

	if tf.Sepc != 0x10004 {
		t.Errorf("sepc = %#x, want ecall+4", tf.Sepc)
	}
}
