package riscv

import "sync/atomic"

// sie models the single HART's sstatus.SIE bit as the trap dispatcher and
// the scheduler see it. There is exactly one HART in this core's scope
// (see Non-goals: SMP), so a single atomically-guarded flag is sufficient
// and avoids introducing a lock the dispatch loop would have to take on
// every switch.
var sie atomic.Bool

// DisableAndStore clears SIE and returns its prior value. Every call to
// the switch primitive must be bracketed by a DisableAndStore/Restore
// pair, since switch itself does not preserve sstatus.
func DisableAndStore() Sstatus {
	prev := sie.Swap(false)

	var s Sstatus
	return s.WithSIE(prev)
}

// Restore writes sstatus.SIE back from a value previously captured by
// DisableAndStore.
func Restore(prev Sstatus) {
	sie.Store(prev.SIE())
}

// SIEEnabled reports the current value of sstatus.SIE, for assertions
// that every switch occurs with interrupts disabled.
func SIEEnabled() bool { return sie.Load() }

// SetSIE sets sstatus.SIE directly; used at boot to enable interrupts
// before the idle loop ever runs, and by the trap entry path's save/SPIE
// dance.
func SetSIE(on bool) { sie.Store(on) }
