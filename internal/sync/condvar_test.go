package sync_test

import (
	"context"
	"testing"
	"time"

	"sv39kernel/internal/riscv"
	"sv39kernel/internal/sched"
	ksync "sv39kernel/internal/sync"
)

// TestCondvarWaitNotify parks one thread on the condvar and has a second
// wake it: the waiter must resume and finish.
func TestCondvarWaitNotify(t *testing.T) {
	scheduler := sched.NewScheduler(1)
	pool := sched.NewPool(4, scheduler)
	proc := sched.NewProcessor(pool)
	sched.InstallProcessor(proc)

	cond := ksync.NewCondvar()
	resumed := make(chan struct{})

	waiter := sched.NewKernelThread(func(*sched.Thread) {
		cond.Wait()
		close(resumed)
	}, riscv.Satp(0))
	pool.Add(waiter)

	notifier := sched.NewKernelThread(func(*sched.Thread) {
		cond.Notify()
	}, riscv.Satp(0))
	pool.Add(notifier)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)
		proc.Run(ctx)
	}()

	select {
	case <-resumed:
	case <-ctx.Done():
		t.Fatal("waiter was never woken")
	}

	cancel()
	<-done
}

// TestCondvarNotifyEmpty: notifying with no waiter is a no-op.
func TestCondvarNotifyEmpty(t *testing.T) {
	cond := ksync.NewCondvar()
	cond.Notify()
}
