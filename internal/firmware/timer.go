package firmware

import "sync/atomic"

// DefaultTickInterval is the number of ticks ahead set_timer programs by
// default, matching the real clock_set_next_event's fixed stride.
const DefaultTickInterval = 100000

// Timer programs the next supervisor-timer fire via the firmware and
// counts ticks as they occur. The tick counter is logically mutated from
// the timer handler with no synchronization, safe only because interrupts
// are disabled for the handler's duration on this single HART; it uses an
// atomic counter only so tests may read it concurrently with the
// dispatcher goroutine without a race detector complaint, not because the
// increment itself needs to be atomic.
type Timer struct {
	sbi      SBI
	interval uint64
	ticks    atomic.Uint64
}

// NewTimer returns a Timer that programs sbi with the given tick interval.
func NewTimer(sbi SBI, interval uint64) *Timer {
	if interval == 0 {
		interval = DefaultTickInterval
	}

	return &Timer{sbi: sbi, interval: interval}
}

// ProgramNext asks the firmware to fire the next supervisor-timer
// interrupt one interval from now.
func (t *Timer) ProgramNext() {
	t.sbi.SetTimer(t.interval)
}

// Tick bumps the tick counter and reprograms the next fire. Called from
// the trap dispatcher's timer-interrupt path, which runs with interrupts
// disabled for its whole duration.
func (t *Timer) Tick() uint64 {
	t.ProgramNext()
	return t.ticks.Add(1)
}

// Ticks returns the current tick count.
func (t *Timer) Ticks() uint64 { return t.ticks.Load() }
