package subscription

import (
	"strings"
	"sync"
)

const (
	TopicProjects = "projects"
	TopicNotes    = "notes"
	TopicInbox    = "inbox"
	TopicSession  = "session"
)

func TasksTopic(pid string) string { return "tasks:" + pid }

func ChatTopic(pid string) string { return "chat:" + pid }

// Signal tells views that the entity store changed. Version is the store
// version after the change; receivers re-read the latest snapshot.
type Signal struct {
	Topic   string
	Version uint64
}

// ProjectID returns the project a tasks/chat topic refers to, if any.
func (s Signal) ProjectID() string {
	if _, id, ok := strings.Cut(s.Topic, ":"); ok {
		return id
	}
	return ""
}

// Hub fans out "data changed" signals. Sends never block: a subscriber that
// falls behind misses intermediate signals but always sees a later one.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Signal]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[chan Signal]struct{}{}}
}

func (h *Hub) Subscribe() (<-chan Signal, func()) {
	ch := make(chan Signal, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Broadcast(sig Signal) {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- sig:
		default:
		}
	}
	h.mu.Unlock()
}
