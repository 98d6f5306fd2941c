package sched

import (
	"fmt"
	"sync"

	"sv39kernel/internal/log"
)

// ThreadStatus is the status recorded in a thread pool slot.
type ThreadStatus int

const (
	Ready ThreadStatus = iota
	Running
	Sleeping
	Exited
)

//go:generate stringer -type=ThreadStatus -output=pool_string.go

// slot is a thread-pool entry. When its thread is parked, thread holds the
// handle; when the thread is executing, the Processor has moved the handle
// out into its own current field and the slot retains only the status.
type slot struct {
	present bool
	status  ThreadStatus
	thread  *Thread
	code    int // Exit code, once Status == Exited.
}

// ErrThreadPoolFull is the fatal condition raised when Add is called with
// no free slot.
var ErrThreadPoolFull = fmt.Errorf("sched: thread pool full")

// Pool is a fixed-capacity, slotted thread table keyed by tid. The real
// kernel leaves it unlocked and relies on interrupts being disabled in
// every path that touches it; here the timer and console goroutines stand
// in for those interrupt deliveries, so the same exclusion is enforced
// with a mutex over every operation instead.
type Pool struct {
	mut   sync.Mutex
	slots []slot
	sched *Scheduler
	log   *log.Logger
}

// NewPool returns a Pool of the given capacity, backed by sched for
// ordering.
func NewPool(capacity int, sched *Scheduler) *Pool {
	return &Pool{
		slots: make([]slot, capacity),
		sched: sched,
		log:   log.DefaultLogger(),
	}
}

// allocTid returns the lowest-index free slot, panicking with
// ErrThreadPoolFull if there is none: every caller in this core expects
// pool capacity to suffice, so exhaustion fails fatally rather than
// returning an error every Add caller would have to check.
func (p *Pool) allocTid() int {
	for i := range p.slots {
		if !p.slots[i].present {
			return i
		}
	}

	panic(ErrThreadPoolFull)
}

// Add admits a new thread: it allocates a tid, marks the slot Ready, and
// pushes the tid onto the scheduler's ready queue.
func (p *Pool) Add(t *Thread) int {
	p.mut.Lock()
	defer p.mut.Unlock()

	tid := p.allocTid()
	t.Tid = tid

	p.slots[tid] = slot{present: true, status: Ready, thread: t}
	p.sched.Push(tid)

	p.log.Debug("thread added", "tid", tid)

	return tid
}

// Acquire pops the next ready tid from the scheduler, marks its slot
// Running, and moves the thread handle out of the slot; the caller, the
// Processor, now owns it as "current".
func (p *Pool) Acquire() (int, *Thread, bool) {
	p.mut.Lock()
	defer p.mut.Unlock()

	tid, ok := p.sched.Pop()
	if !ok {
		return 0, nil, false
	}

	s := &p.slots[tid]
	s.status = Running
	t := s.thread
	s.thread = nil

	return tid, t, true
}

// Retrieve returns a thread handle to its slot after it stops running. If
// the slot is no longer present (the thread exited while running),
// the handle is dropped silently and its stack and goroutine unwind on
// their own. Otherwise, a Running thread transitions back to Ready and
// re-enters the scheduler queue; a Sleeping thread is left alone, to be
// woken only by Wakeup.
func (p *Pool) Retrieve(tid int, t *Thread) {
	p.mut.Lock()
	defer p.mut.Unlock()

	s := &p.slots[tid]

	if !s.present {
		t.Stack.Free()
		return
	}

	s.thread = t

	if s.status == Running {
		s.status = Ready
		p.sched.Push(tid)
	}
}

// Tick delegates to the scheduler, reporting whether the running thread's
// quantum is exhausted.
func (p *Pool) Tick() bool {
	p.mut.Lock()
	defer p.mut.Unlock()

	return p.sched.Tick()
}

// Exit removes tid's slot entirely and tells the scheduler it is gone.
func (p *Pool) Exit(tid int, code int) {
	p.mut.Lock()
	defer p.mut.Unlock()

	p.slots[tid] = slot{present: false, status: Exited, code: code}
	p.sched.Exit(tid)

	p.log.Debug("thread exited", "tid", tid, "code", code)
}

// Wakeup marks a sleeping thread Ready and re-enters it into the
// scheduler. It is a no-op if the slot is gone (the thread exited before
// the wakeup landed).
func (p *Pool) Wakeup(tid int) {
	p.mut.Lock()
	defer p.mut.Unlock()

	s := &p.slots[tid]
	if !s.present {
		return
	}

	s.status = Ready
	p.sched.Push(tid)
}

// Status returns the recorded status for tid and whether the slot is
// present at all.
func (p *Pool) Status(tid int) (ThreadStatus, bool) {
	p.mut.Lock()
	defer p.mut.Unlock()

	s := &p.slots[tid]

	return s.status, s.present
}

// SetSleeping marks tid's slot Sleeping. Used by the condvar/SYS_READ path
// before switching away, so a later Wakeup is the only thing that
// re-enters it into the scheduler.
func (p *Pool) SetSleeping(tid int) {
	p.mut.Lock()
	defer p.mut.Unlock()

	p.slots[tid].status = Sleeping
}

// Capacity returns the pool's fixed slot count.
func (p *Pool) Capacity() int { return len(p.slots) }
