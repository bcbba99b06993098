package server

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	p := NewPool(2, 10, nil)
	p.Start()
	defer p.Shutdown(false, 0)

	var done atomic.Int64
	for i := 0; i < 5; i++ {
		ok := p.Submit(func() { done.Add(1) })
		if !ok {
			t.Fatal("submit should succeed with room in the queue")
		}
	}
	deadline := time.After(time.Second)
	for done.Load() != 5 {
		select {
		case <-deadline:
			t.Fatalf("expected 5 tasks to complete, got %d", done.Load())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPoolSubmitFailsAfterShutdown(t *testing.T) {
	p := NewPool(1, 1, nil)
	p.Start()
	p.Shutdown(true, time.Second)

	if p.Submit(func() {}) {
		t.Fatal("submit must fail once the pool has shut down")
	}
}

func TestPoolGracefulShutdownWaitsForInFlightTask(t *testing.T) {
	p := NewPool(1, 4, nil)
	p.Start()

	started := make(chan struct{})
	var finished atomic.Bool
	p.Submit(func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})
	<-started

	p.Shutdown(true, time.Second)
	if !finished.Load() {
		t.Fatal("graceful shutdown must join the in-flight task before returning")
	}
}

func TestPoolGracefulShutdownTimeoutStillJoinsInFlight(t *testing.T) {
	p := NewPool(1, 4, nil)
	p.Start()

	started := make(chan struct{})
	var finished atomic.Bool
	p.Submit(func() {
		close(started)
		time.Sleep(80 * time.Millisecond)
		finished.Store(true)
	})
	<-started

	// Submit one more task that will sit in the queue behind the in-flight
	// one; a short timeout elapses before the in-flight task finishes, and
	// Shutdown must still wait for it (never detach) while discarding the
	// still-queued one.
	p.Submit(func() { finished.Store(false) })

	begin := time.Now()
	p.Shutdown(true, 10*time.Millisecond)
	elapsed := time.Since(begin)

	if !finished.Load() {
		t.Fatal("the in-flight task must finish before Shutdown returns, even past the timeout")
	}
	if elapsed < 70*time.Millisecond {
		t.Fatalf("Shutdown returned too early (%s) to have joined the in-flight task", elapsed)
	}
}

func TestPoolNonGracefulShutdownDiscardsQueueButJoinsCurrent(t *testing.T) {
	p := NewPool(1, 4, nil)
	p.Start()

	started := make(chan struct{})
	var finished atomic.Bool
	p.Submit(func() {
		close(started)
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
	})
	<-started

	var secondRan atomic.Bool
	p.Submit(func() { secondRan.Store(true) })

	p.Shutdown(false, time.Second)
	if !finished.Load() {
		t.Fatal("even non-graceful shutdown must join the currently running task")
	}
	if secondRan.Load() {
		t.Fatal("a task still queued when shutdown begins must be discarded")
	}
}

func TestPoolShutdownIsIdempotent(t *testing.T) {
	p := NewPool(1, 1, nil)
	p.Start()
	p.Shutdown(true, time.Second)
	p.Shutdown(true, time.Second) // must not block or panic
}
