package editing

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_NotifyDuringSaveSchedulesOneFollowUp(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	s := NewScheduler(5*time.Millisecond, func(context.Context) error {
		n := calls.Add(1)
		started <- struct{}{}
		if n == 1 {
			<-release
		}
		return nil
	}, nil)

	s.Notify()
	<-started
	for i := 0; i < 5; i++ {
		s.Notify()
	}
	close(release)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("no follow-up save")
	}
	time.Sleep(30 * time.Millisecond)
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected exactly 2 saves, got %d", n)
	}
	if s.Pending() {
		t.Fatalf("nothing should be pending")
	}
}

func TestScheduler_FlushWaitsForInFlightSave(t *testing.T) {
	t.Parallel()
	var (
		calls   atomic.Int32
		running atomic.Bool
		overlap atomic.Bool
	)
	s := NewScheduler(time.Millisecond, func(context.Context) error {
		if !running.CompareAndSwap(false, true) {
			overlap.Store(true)
		}
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		running.Store(false)
		return nil
	}, nil)
	s.Notify()
	time.Sleep(5 * time.Millisecond)
	s.Notify()
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if overlap.Load() {
		t.Fatalf("saves overlapped")
	}
	if s.Pending() {
		t.Fatalf("Flush should leave nothing pending")
	}
	if n := calls.Load(); n < 2 {
		t.Fatalf("expected the flushed save to run, got %d saves", n)
	}
}

func TestScheduler_StopDropsPending(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	s := NewScheduler(10*time.Millisecond, func(context.Context) error { calls.Add(1); return nil }, nil)
	s.Notify()
	s.Stop()
	s.Notify()
	time.Sleep(40 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("expected no saves after Stop, got %d", n)
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush after Stop: %v", err)
	}
}
