package firmware

import (
	"sync"

	"sv39kernel/internal/sched"
	ksync "sv39kernel/internal/sync"
)

// Stdin is a condvar-protected byte queue: the UART-interrupt handler
// pushes bytes onto it, and SYS_READ pops, yielding on empty rather than
// busy-waiting.
type Stdin struct {
	mut   sync.Mutex
	queue []byte
	cond  *ksync.Condvar
}

// NewStdin returns an empty stdin queue.
func NewStdin() *Stdin {
	return &Stdin{cond: ksync.NewCondvar()}
}

// Push appends a byte and wakes one waiter, if any. Called from the
// external-interrupt path after draining the console and translating '\r'
// to '\n'.
func (s *Stdin) Push(c byte) {
	s.mut.Lock()
	s.queue = append(s.queue, c)
	s.mut.Unlock()

	s.cond.Notify()
}

// Len reports how many bytes are queued and not yet popped.
func (s *Stdin) Len() int {
	s.mut.Lock()
	defer s.mut.Unlock()

	return len(s.queue)
}

// Pop blocks, yielding the calling thread via the condvar, until a byte is
// available, then returns it. Called from SYS_READ. The waiter registers on
// the condvar before releasing the queue lock, so a Push landing between
// the emptiness check and the yield cannot lose its notification.
func (s *Stdin) Pop() byte {
	for {
		s.mut.Lock()
		if len(s.queue) > 0 {
			c := s.queue[0]
			s.queue = s.queue[1:]
			s.mut.Unlock()

			return c
		}

		s.cond.Register()
		s.mut.Unlock()

		sched.Yield()
	}
}
