package subscription

import (
	"context"
	"time"

	"boardsync/internal/entitystore"
)

// WaitFor polls the entity store until pred holds, up to attempts checks
// spaced by interval. It is used to open an editor for an entity that was
// just created and has not yet arrived through its subscription.
func (m *Manager) WaitFor(ctx context.Context, attempts int, interval time.Duration, pred func(*entitystore.Snapshot) bool) bool {
	if attempts <= 0 {
		attempts = 10
	}
	if interval <= 0 {
		interval = 150 * time.Millisecond
	}
	for i := 0; i < attempts; i++ {
		if pred(m.store.Snapshot()) {
			return true
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
	return false
}

// Settled reports whether every open subscription has delivered at least one
// snapshot since it was last (re)opened.
func (m *Manager) Settled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.subs) == 0 {
		return false
	}
	for _, s := range m.subs {
		if s.state != StateActive {
			return false
		}
	}
	return true
}

// WaitSettled polls Settled until it holds or ctx is done. One-shot callers
// use it to read a complete store before rendering.
func (m *Manager) WaitSettled(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for !m.Settled() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
