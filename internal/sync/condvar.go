// Package sync provides the one synchronization primitive the kernel core
// needs above the scheduler's own locking: a condition variable threads can
// wait and be notified on without busy-polling.
package sync

import (
	"sync"

	"sv39kernel/internal/sched"
)

// Condvar is a mutex-protected tid queue: Wait parks the calling thread
// by pushing its tid and yielding; Notify pops one waiter and wakes it.
type Condvar struct {
	mut   sync.Mutex
	queue []int
}

// NewCondvar returns an empty condition variable.
func NewCondvar() *Condvar { return &Condvar{} }

// Register enqueues the calling thread on the condvar's wait queue without
// yielding. Callers holding a lock over the condition being waited on must
// Register before releasing it, so a Notify issued between the release and
// the yield still finds this tid queued; the early wake-up then simply
// revives the thread the next time the idle loop runs the ready queue.
func (c *Condvar) Register() {
	tid, ok := sched.CurrentTid()
	if !ok {
		panic("condvar: wait called outside any thread")
	}

	c.mut.Lock()
	c.queue = append(c.queue, tid)
	c.mut.Unlock()
}

// Wait parks the calling thread on the condvar's wait queue and yields the
// HART. It returns only after some other thread calls Notify and wakes this
// tid, so callers must re-check whatever condition they are waiting for
// after Wait returns (Notify wakes the waiter, it does not guarantee the
// condition still holds by the time it runs).
func (c *Condvar) Wait() {
	c.Register()
	sched.Yield()
}

// Notify wakes the single longest-waiting thread, if any. It is a no-op if
// no thread is currently waiting.
func (c *Condvar) Notify() {
	c.mut.Lock()
	if len(c.queue) == 0 {
		c.mut.Unlock()
		return
	}

	tid := c.queue[0]
	c.queue = c.queue[1:]
	c.mut.Unlock()

	sched.WakeUp(tid)
}
