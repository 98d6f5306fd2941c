// Package trap implements the trap/interrupt dispatcher: it decodes the
// cause of a trap and routes it to the matching handler, the single place
// every asynchronous or synchronous exception becomes a structured call.
package trap

import "sv39kernel/internal/riscv"

// fatal reports whether a cause is unconditionally fatal in this core:
// page faults (no demand paging) and anything else undefined.
func fatal(cause riscv.Cause) bool {
	switch cause {
	case riscv.CauseInstructionPageFault, riscv.CauseLoadPageFault, riscv.CauseStorePageFault:
		return true
	case riscv.CauseBreakpoint, riscv.CauseSupervisorTimer, riscv.CauseSupervisorExternal, riscv.CauseUserECall:
		return false
	default:
		return true
	}
}

// describe returns a short, human-readable name for a cause, for log
// lines and panic messages.
func describe(cause riscv.Cause) string {
	switch cause {
	case riscv.CauseBreakpoint:
		return "Breakpoint"
	case riscv.CauseSupervisorTimer:
		return "SupervisorTimer"
	case riscv.CauseSupervisorExternal:
		return "SupervisorExternal"
	case riscv.CauseUserECall:
		return "UserECall"
	case riscv.CauseInstructionPageFault:
		return "InstructionPageFault"
	case riscv.CauseLoadPageFault:
		return "LoadPageFault"
	case riscv.CauseStorePageFault:
		return "StorePageFault"
	default:
		return "UndefinedTrap"
	}
}
