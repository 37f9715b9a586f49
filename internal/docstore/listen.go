package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type queryFunc func(ctx context.Context, q Query) ([]Document, error)

// liveQuery re-runs its query whenever it is poked and emits the diff against
// the previous result set. Pokes coalesce: a burst of commits yields one
// refresh that reflects all of them.
type liveQuery struct {
	q      Query
	run    queryFunc
	onDone func(*liveQuery)
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	dirty  chan struct{}
	out    chan Snapshot

	mu   sync.Mutex
	err  error
	prev map[string]string

	doneOnce sync.Once
	done     chan struct{}
}

var _ Listener = (*liveQuery)(nil)

func newLiveQuery(ctx context.Context, q Query, run queryFunc, onDone func(*liveQuery), log *zap.Logger) *liveQuery {
	ctx, cancel := context.WithCancel(ctx)
	return &liveQuery{
		q:      q,
		run:    run,
		onDone: onDone,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		dirty:  make(chan struct{}, 1),
		out:    make(chan Snapshot, 16),
		done:   make(chan struct{}),
	}
}

func (l *liveQuery) Snapshots() <-chan Snapshot { return l.out }

func (l *liveQuery) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *liveQuery) Close() {
	l.cancel()
	<-l.done
}

func (l *liveQuery) poke() {
	select {
	case l.dirty <- struct{}{}:
	default:
	}
}

func (l *liveQuery) start() {
	go l.loop()
}

func (l *liveQuery) loop() {
	defer l.finish()

	if !l.refresh(true) {
		return
	}
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.dirty:
			if !l.refresh(false) {
				return
			}
		}
	}
}

func (l *liveQuery) finish() {
	l.doneOnce.Do(func() {
		l.cancel()
		if l.onDone != nil {
			l.onDone(l)
		}
		close(l.out)
		close(l.done)
	})
}

// refresh runs the query and delivers a snapshot when anything changed.
// It returns false when the listener must stop.
func (l *liveQuery) refresh(initial bool) bool {
	docs, err := l.run(l.ctx, l.q)
	if err != nil {
		if l.ctx.Err() != nil {
			return false
		}
		if errors.Is(err, ErrClosed) {
			return false
		}
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		l.log.Warn("live query failed", zap.String("query", l.q.String()), zap.Error(err))
		return false
	}

	snap, next := diffDocuments(l.q.Collection, l.prev, docs, initial)
	l.prev = next
	if !initial && len(snap.Changes) == 0 {
		return true
	}
	select {
	case l.out <- snap:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// diffDocuments compares the previous result set (id -> canonical json) with
// docs. Added and modified documents are reported in result order, removed
// ones after them.
func diffDocuments(collection string, prev map[string]string, docs []Document, initial bool) (Snapshot, map[string]string) {
	next := make(map[string]string, len(docs))
	snap := Snapshot{Initial: initial}
	for _, d := range docs {
		b, _ := json.Marshal(d.Fields)
		key := string(b)
		next[d.ID] = key
		old, seen := prev[d.ID]
		switch {
		case !seen:
			snap.Changes = append(snap.Changes, Change{Type: ChangeAdded, Doc: d})
		case old != key:
			snap.Changes = append(snap.Changes, Change{Type: ChangeModified, Doc: d})
		}
	}
	for _, id := range sortedMissing(prev, next) {
		snap.Changes = append(snap.Changes, Change{Type: ChangeRemoved, Doc: Document{ID: id, Collection: collection}})
	}
	return snap, next
}

func sortedMissing(prev, next map[string]string) []string {
	var out []string
	for id := range prev {
		if _, ok := next[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
