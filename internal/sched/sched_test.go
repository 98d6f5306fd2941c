package sched_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sv39kernel/internal/riscv"
	"sv39kernel/internal/sched"
)

func TestSchedulerRoundRobin(t *testing.T) {
	s := sched.NewScheduler(1)

	s.Push(1)
	s.Push(2)
	s.Push(3)

	tid, ok := s.Pop()
	if !ok || tid != 1 {
		t.Fatalf("pop = %d,%v want 1,true", tid, ok)
	}

	if !s.Tick() {
		t.Fatal("tick with quantum 1 should report exhausted immediately")
	}
}

func TestThreadPoolCapacityPanics(t *testing.T) {
	s := sched.NewScheduler(1)
	p := sched.NewPool(1, s)

	th := sched.NewBootThread() // a thread with no goroutine body, safe to Add without running
	p.Add(th)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on pool overflow")
		}
	}()

	p.Add(sched.NewBootThread())
}

func TestThreadPoolAddAcquireRetrieve(t *testing.T) {
	s := sched.NewScheduler(1)
	p := sched.NewPool(4, s)

	th := sched.NewBootThread()
	tid := p.Add(th)

	status, present := p.Status(tid)
	if !present || status != sched.Ready {
		t.Fatalf("status = %v,%v want Ready,true", status, present)
	}

	gotTid, gotThread, ok := p.Acquire()
	if !ok || gotTid != tid || gotThread != th {
		t.Fatalf("acquire mismatch: %d %v %v", gotTid, gotThread, ok)
	}

	status, present = p.Status(tid)
	if !present || status != sched.Running {
		t.Fatalf("status after acquire = %v,%v want Running,true", status, present)
	}

	p.Retrieve(tid, gotThread)

	status, present = p.Status(tid)
	if !present || status != sched.Ready {
		t.Fatalf("status after retrieve = %v,%v want Ready,true", status, present)
	}
}

func TestThreadPoolExitFreesSlot(t *testing.T) {
	s := sched.NewScheduler(1)
	p := sched.NewPool(4, s)

	th := sched.NewBootThread()
	tid := p.Add(th)

	_, _, _ = p.Acquire()
	p.Exit(tid, 0)

	_, present := p.Status(tid)
	if present {
		t.Fatal("slot should not be present after exit")
	}
}

// TestKernelThreadPing exercises scenario S1: three kernel threads each
// print their tid a fixed number of times and exit; after Run the output
// contains the expected number of lines in a fair interleaving.
func TestKernelThreadPing(t *testing.T) {
	const (
		numThreads = 3
		numPrints  = 10
	)

	var (
		mut sync.Mutex
		log []string
		wg  sync.WaitGroup
	)

	scheduler := sched.NewScheduler(1)
	pool := sched.NewPool(4, scheduler)
	proc := sched.NewProcessor(pool)
	sched.InstallProcessor(proc)

	wg.Add(numThreads)

	for i := 0; i < numThreads; i++ {
		tid := i
		body := func(th *sched.Thread) {
			defer wg.Done()

			for j := 0; j < numPrints; j++ {
				mut.Lock()
				log = append(log, fmt.Sprintf("tid-%d", tid))
				mut.Unlock()

				sched.Rotate()
			}
		}

		th := sched.NewKernelThread(body, riscv.Satp(0))
		pool.Add(th)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		proc.Run(ctx)
		close(done)
	}()

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		t.Fatal("timed out waiting for all kernel threads to finish printing")
	}

	cancel()
	<-done

	mut.Lock()
	got := len(log)
	mut.Unlock()

	if got != numThreads*numPrints {
		t.Fatalf("log has %d lines, want %d", got, numThreads*numPrints)
	}
}

// TestPreemptionFairness exercises scenario S4: with Q=1, two threads
// running tight print loops interleave without either monopolizing the
// HART; no run of the same character should be much longer than the
// quantum allows.
func TestPreemptionFairness(t *testing.T) {
	const iterations = 20

	var (
		mut sync.Mutex
		out strings.Builder
		wg  sync.WaitGroup
	)

	scheduler := sched.NewScheduler(1)
	pool := sched.NewPool(4, scheduler)
	proc := sched.NewProcessor(pool)
	sched.InstallProcessor(proc)

	wg.Add(2)

	for _, ch := range []string{"A", "B"} {
		c := ch
		body := func(th *sched.Thread) {
			defer wg.Done()

			for i := 0; i < iterations; i++ {
				mut.Lock()
				out.WriteString(c)
				mut.Unlock()

				sched.Rotate()
			}
		}

		th := sched.NewKernelThread(body, riscv.Satp(0))
		pool.Add(th)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		proc.Run(ctx)
		close(done)
	}()

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		t.Fatal("timed out")
	}

	cancel()
	<-done

	mut.Lock()
	result := out.String()
	mut.Unlock()

	counts := map[rune]int{}
	for _, r := range result {
		counts[r]++
	}

	if counts['A'] != iterations || counts['B'] != iterations {
		t.Fatalf("counts = %v, want %d each", counts, iterations)
	}

	// Q=1: no run of the same character may exceed Q+1.
	run := 0
	for i := range result {
		if i > 0 && result[i] == result[i-1] {
			run++
		} else {
			run = 1
		}

		if run > 2 {
			t.Fatalf("run of %q exceeds quantum+1 at %d in %q", result[i], i, result)
		}
	}
}
