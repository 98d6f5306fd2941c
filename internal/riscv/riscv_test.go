package riscv_test

import (
	"testing"

	"sv39kernel/internal/riscv"
)

func TestPTERoundTrip(t *testing.T) {
	pte := riscv.NewPTE(riscv.PPN(0x1234), riscv.FlagV|riscv.FlagR|riscv.FlagW)

	if got := pte.PPN(); got != 0x1234 {
		t.Errorf("PPN() = %#x, want %#x", got, 0x1234)
	}

	if !pte.Valid() {
		t.Error("Valid() = false, want true")
	}

	if !pte.Leaf() {
		t.Error("Leaf() = false, want true (R or W set)")
	}

	interior := riscv.NewPTE(riscv.PPN(7), riscv.FlagV)
	if interior.Leaf() {
		t.Error("Leaf() = true for interior entry, want false")
	}
}

func TestSstatusRoundTrip(t *testing.T) {
	var s riscv.Sstatus

	s = s.WithSIE(true)
	if !s.SIE() {
		t.Fatal("SIE() = false after WithSIE(true)")
	}

	s = s.WithSIE(false)
	if s.SIE() {
		t.Fatal("SIE() = true after WithSIE(false)")
	}

	s = s.WithSPP(riscv.User)
	if s.SPP() != riscv.User {
		t.Errorf("SPP() = %v, want User", s.SPP())
	}

	s = s.WithSPP(riscv.Supervisor)
	if s.SPP() != riscv.Supervisor {
		t.Errorf("SPP() = %v, want Supervisor", s.SPP())
	}
}

// DisableAndStore/Restore model the single SIE bit in hart.go; here we only
// verify the bit-identity round trip the property depends on: saving and
// restoring the raw word changes nothing.
func TestSstatusDisableRestoreIdempotent(t *testing.T) {
	before := riscv.Sstatus(0).WithSIE(true).WithSPP(riscv.Supervisor)
	saved := before
	disabled := before.WithSIE(false)
	restored := disabled.WithSIE(saved.SIE())

	if restored != before {
		t.Errorf("restore: got %#x, want %#x", restored, before)
	}
}

func TestCauseDecode(t *testing.T) {
	if !riscv.CauseSupervisorTimer.IsInterrupt() {
		t.Error("CauseSupervisorTimer should be an interrupt")
	}

	if riscv.CauseLoadPageFault.IsInterrupt() {
		t.Error("CauseLoadPageFault should be an exception")
	}

	if code := riscv.CauseSupervisorExternal.Code(); code != 9 {
		t.Errorf("Code() = %d, want 9", code)
	}
}

func TestNewEntryFrameArguments(t *testing.T) {
	tf := riscv.NewEntryFrame(0x8000_1000, 0x9000_0000, riscv.Supervisor)
	tf.AppendInitialArguments(1, 2, 3)

	if tf.Arg(0) != 1 || tf.Arg(1) != 2 || tf.Arg(2) != 3 {
		t.Errorf("arguments = %d,%d,%d want 1,2,3", tf.Arg(0), tf.Arg(1), tf.Arg(2))
	}

	if tf.Sepc != 0x8000_1000 {
		t.Errorf("Sepc = %#x, want entry", tf.Sepc)
	}

	if tf.Sstatus.SPP() != riscv.Supervisor {
		t.Error("SPP should be Supervisor")
	}

	if !tf.Sstatus.SPIE() {
		t.Error("SPIE should be set so sret enables interrupts")
	}
}

func TestVPNIndices(t *testing.T) {
	va := riscv.VA(0x0000_0040_2010_3040)
	idx := riscv.Indices(va.VPN())

	for i, v := range idx {
		if v > 0x1ff {
			t.Errorf("index %d = %#x exceeds 9 bits", i, v)
		}
	}
}

func TestSatpRoundTrip(t *testing.T) {
	satp := riscv.NewSatp(riscv.PPN(0xabcd))
	if satp.PPN() != 0xabcd {
		t.Errorf("PPN() = %#x, want 0xabcd", satp.PPN())
	}
}
