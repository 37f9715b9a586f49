package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type SQLiteOptions struct {
	// WatchInterval is how often the store polls for commits made by other
	// processes. Zero means one second; negative disables the watcher.
	WatchInterval time.Duration
	Logger        *zap.Logger
	// Now overrides the clock used for server timestamps.
	Now func() time.Time
}

// SQLite is a Backend over a single SQLite file. Documents are stored as JSON
// blobs; filters run through json_extract/json_each.
type SQLite struct {
	db   *sql.DB
	path string
	log  *zap.Logger
	now  func() time.Time

	writeMu sync.Mutex

	mu        sync.Mutex
	listeners map[*liveQuery]struct{}
	closed    bool

	stopOnce sync.Once
	stopCh   chan struct{}
	watchWG  sync.WaitGroup
}

var _ Backend = (*SQLite)(nil)

func OpenSQLite(ctx context.Context, path string, opts SQLiteOptions) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &SQLite{
		db:        db,
		path:      path,
		log:       log.Named("docstore"),
		now:       now,
		listeners: map[*liveQuery]struct{}{},
		stopCh:    make(chan struct{}),
	}

	interval := opts.WatchInterval
	if interval == 0 {
		interval = time.Second
	}
	if interval > 0 {
		if err := s.startWatcher(ctx, interval); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// sqliteDSN applies pragmas per connection so every pooled connection gets them.
// WAL enables one writer + many readers; busy_timeout avoids "database is locked" flakiness.
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(wal)")
	q.Add("_pragma", "synchronous(normal)")
	q.Add("_pragma", "foreign_keys(on)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			json TEXT NOT NULL,
			created_seq INTEGER NOT NULL,
			created_at_unixms INTEGER NOT NULL,
			updated_at_unixms INTEGER NOT NULL,
			PRIMARY KEY (collection, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(collection, created_seq);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the underlying handle so other local tables (accounts) can share the file.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.watchWG.Wait()

	s.mu.Lock()
	s.closed = true
	ls := make([]*liveQuery, 0, len(s.listeners))
	for l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()
	for _, l := range ls {
		l.Close()
	}
	return s.db.Close()
}

func (s *SQLite) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := validCollection(collection); err != nil {
		return "", err
	}
	for attempt := 0; attempt < 3; attempt++ {
		id, err := newDocumentID(collection)
		if err != nil {
			return "", err
		}
		inserted, err := s.write(ctx, collection, id, func(cur map[string]any, exists bool) (map[string]any, bool, error) {
			if exists {
				return nil, false, nil
			}
			next, err := applyFields(nil, fields, s.now())
			return next, err == nil, err
		})
		if err != nil {
			return "", err
		}
		if inserted {
			return id, nil
		}
	}
	return "", fmt.Errorf("create %s: could not allocate a unique id", collection)
}

func (s *SQLite) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	if id == "" {
		return errors.New("set: empty id")
	}
	_, err := s.write(ctx, collection, id, func(cur map[string]any, exists bool) (map[string]any, bool, error) {
		base := cur
		if !merge {
			base = nil
		}
		next, err := applyFields(base, fields, s.now())
		return next, err == nil, err
	})
	return err
}

func (s *SQLite) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	var missing bool
	_, err := s.write(ctx, collection, id, func(cur map[string]any, exists bool) (map[string]any, bool, error) {
		if !exists {
			missing = true
			return nil, false, nil
		}
		next, err := applyFields(cur, fields, s.now())
		return next, err == nil, err
	})
	if err != nil {
		return err
	}
	if missing {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.writeMu.Lock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(collection)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := s.checkOpen(); err != nil {
		return Document{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, json, created_at_unixms, updated_at_unixms FROM documents WHERE collection = ? AND id = ?`, collection, id)
	doc, err := scanDocument(collection, row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *SQLite) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	stmt, args, err := compileQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(q.Collection, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLite) Listen(ctx context.Context, q Query) (Listener, error) {
	if _, _, err := compileQuery(q); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	l := newLiveQuery(ctx, q, s.Query, func(l *liveQuery) {
		s.mu.Lock()
		delete(s.listeners, l)
		s.mu.Unlock()
	}, s.log)
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	l.start()
	return l, nil
}

type mutateFunc func(cur map[string]any, exists bool) (next map[string]any, write bool, err error)

// write runs a read-modify-write of one document inside a single transaction.
func (s *SQLite) write(ctx context.Context, collection, id string, fn mutateFunc) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		raw       string
		seq       int64
		createdMs int64
		exists    = true
	)
	err = tx.QueryRowContext(ctx, `SELECT json, created_seq, created_at_unixms FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw, &seq, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return false, fmt.Errorf("read %s/%s: %w", collection, id, err)
	}

	var cur map[string]any
	if exists {
		if err := json.Unmarshal([]byte(raw), &cur); err != nil {
			return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
	}
	next, doWrite, err := fn(cur, exists)
	if err != nil {
		return false, err
	}
	if !doWrite {
		return false, nil
	}
	if next == nil {
		next = map[string]any{}
	}
	b, err := json.Marshal(next)
	if err != nil {
		return false, err
	}

	nowMs := s.now().UTC().UnixMilli()
	if !exists {
		createdMs = nowMs
		// Creation sequence keeps snapshot order stable for documents created in the same millisecond.
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(created_seq), 0) + 1 FROM documents`).Scan(&seq); err != nil {
			return false, err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO documents(collection, id, json, created_seq, created_at_unixms, updated_at_unixms) VALUES(?, ?, ?, ?, ?, ?)`,
		collection, id, string(b), seq, createdMs, nowMs); err != nil {
		return false, fmt.Errorf("write %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	s.notify(collection)
	return true, nil
}

func (s *SQLite) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// notify wakes every listener on collection so it re-runs its query.
func (s *SQLite) notify(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for l := range s.listeners {
		if l.q.Collection == collection {
			l.poke()
		}
	}
}

func (s *SQLite) notifyAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for l := range s.listeners {
		l.poke()
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(collection string, r rowScanner) (Document, error) {
	var (
		id        string
		raw       string
		createdMs int64
		updatedMs int64
	)
	if err := r.Scan(&id, &raw, &createdMs, &updatedMs); err != nil {
		return Document{}, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Document{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return Document{
		ID:         id,
		Collection: collection,
		Fields:     fields,
		CreateTime: time.UnixMilli(createdMs).UTC(),
		UpdateTime: time.UnixMilli(updatedMs).UTC(),
	}, nil
}
