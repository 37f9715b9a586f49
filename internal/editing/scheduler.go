package editing

import (
	"context"
	"sync"
	"time"
)

// Scheduler coalesces change notifications into debounced saves. At most one
// save runs at a time; a Notify that arrives while a save is running
// schedules exactly one follow-up save once it finishes.
type Scheduler struct {
	debounce time.Duration
	save     func(ctx context.Context) error
	done     func(error)

	mu       sync.Mutex
	timer    *time.Timer
	pending  bool
	running  bool
	stopped  bool
	finished chan struct{}
}

// NewScheduler returns a scheduler that calls save debounce after the last
// Notify. done, if set, receives the result of every save.
func NewScheduler(debounce time.Duration, save func(ctx context.Context) error, done func(error)) *Scheduler {
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}
	return &Scheduler{debounce: debounce, save: save, done: done}
}

func (s *Scheduler) Notify() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.pending = true
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.onTimer)
		return
	}
	s.timer.Reset(s.debounce)
}

// Pending reports whether a notified change has not been saved yet.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Scheduler) onTimer() {
	s.mu.Lock()
	if s.running {
		// The running save reschedules when it finishes.
		s.mu.Unlock()
		return
	}
	if !s.pending || s.stopped {
		s.mu.Unlock()
		return
	}
	s.begin()
	s.mu.Unlock()

	s.run(context.Background())
}

// begin marks a save as started. Callers hold s.mu.
func (s *Scheduler) begin() {
	s.pending = false
	s.running = true
	s.finished = make(chan struct{})
}

func (s *Scheduler) run(ctx context.Context) error {
	err := s.save(ctx)
	if s.done != nil {
		s.done(err)
	}

	s.mu.Lock()
	s.running = false
	close(s.finished)
	if s.pending && !s.stopped && s.timer != nil {
		s.timer.Reset(s.debounce)
	}
	s.mu.Unlock()
	return err
}

// Flush runs a pending save now, waiting for an in-flight save first. It
// returns the result of the save it ran, or nil when nothing was pending.
func (s *Scheduler) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.running {
			wait := s.finished
			s.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if !s.pending {
			s.mu.Unlock()
			return nil
		}
		if s.timer != nil {
			s.timer.Stop()
		}
		s.begin()
		s.mu.Unlock()
		return s.run(ctx)
	}
}

// Stop abandons any pending save and refuses further notifications. A save
// already in flight still completes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
	}
}
