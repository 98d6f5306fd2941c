package riscv

// Sstatus is the supervisor status register. Only the fields the trap
// machinery touches are modeled; the rest of the word is opaque and
// preserved across reads and writes, exposing named accessors over a
// handful of bits while leaving the others alone.
type Sstatus uint64

// Status bit positions this core depends on.
const (
	sstatusSIE  = 1 << 1 // Supervisor interrupt enable.
	sstatusSPIE = 1 << 5 // Prior value of SIE, saved across a trap.
	sstatusSPP  = 1 << 8 // Prior privilege: 0 = user, 1 = supervisor.
)

// SIE reports whether supervisor interrupts are enabled.
func (s Sstatus) SIE() bool { return s&sstatusSIE != 0 }

// WithSIE returns a copy of the status word with SIE set or cleared.
func (s Sstatus) WithSIE(on bool) Sstatus {
	if on {
		return s | sstatusSIE
	}
	return s &^ sstatusSIE
}

// SPIE reports the interrupt-enable value saved at the most recent trap.
func (s Sstatus) SPIE() bool { return s&sstatusSPIE != 0 }

// WithSPIE returns a copy of the status word with SPIE set or cleared.
func (s Sstatus) WithSPIE(on bool) Sstatus {
	if on {
		return s | sstatusSPIE
	}
	return s &^ sstatusSPIE
}

// Privilege is the processor mode recorded in SPP.
type Privilege int

const (
	User       Privilege = 0
	Supervisor Privilege = 1
)

// SPP returns the privilege mode the trap will return to.
func (s Sstatus) SPP() Privilege {
	if s&sstatusSPP != 0 {
		return Supervisor
	}
	return User
}

// WithSPP returns a copy of the status word with SPP set to priv.
func (s Sstatus) WithSPP(priv Privilege) Sstatus {
	if priv == Supervisor {
		return s | sstatusSPP
	}
	return s &^ sstatusSPP
}

// Cause identifies the reason a trap was taken: the decoded scause value,
// sign bit split into Interrupt/Exception.
type Cause uint64

const causeInterruptBit = Cause(1) << 63

// IsInterrupt reports whether the cause is an asynchronous interrupt, as
// opposed to a synchronous exception.
func (c Cause) IsInterrupt() bool { return c&causeInterruptBit != 0 }

// Code returns the cause code with the interrupt bit removed.
func (c Cause) Code() uint64 { return uint64(c &^ causeInterruptBit) }

// Exception causes (scause with the interrupt bit clear).
const (
	CauseInstructionPageFault Cause = 12
	CauseLoadPageFault        Cause = 13
	CauseStorePageFault       Cause = 15
	CauseBreakpoint           Cause = 3
	CauseUserECall            Cause = 8
)

// Interrupt causes (scause with the interrupt bit set).
const (
	CauseSupervisorTimer    Cause = causeInterruptBit | 5
	CauseSupervisorExternal Cause = causeInterruptBit | 9
)

//go:generate stringer -type=Privilege -output=csr_string.go
