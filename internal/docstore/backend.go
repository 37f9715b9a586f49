package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("document not found")

// ErrClosed is reported by operations on a store that has been closed.
var ErrClosed = errors.New("docstore closed")

// Backend is the document-store capability the sync layer is written against.
//
// Collections hold JSON documents keyed by id. Writes may carry field
// sentinels (ServerTimestamp, ArrayUnion, ArrayRemove, ArrayAppend,
// ArrayRemoveBy, DeleteField) which are resolved atomically by the backend.
type Backend interface {
	// Create inserts a document with a generated id and returns the id.
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	// Set writes a document with a caller-chosen id. With merge, top-level
	// fields are merged into an existing document; otherwise the document is replaced.
	Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error
	Get(ctx context.Context, collection, id string) (Document, error)
	// Update merges top-level fields into an existing document (ErrNotFound when missing).
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	// Listen opens a live query: an initial snapshot, then incremental changes
	// until the listener is closed or ctx is done.
	Listen(ctx context.Context, q Query) (Listener, error)
}

type Op string

const (
	OpEq            Op = "=="
	OpArrayContains Op = "array-contains"
)

type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

type Query struct {
	Collection string   `json:"collection"`
	Where      []Filter `json:"where,omitempty"`
	OrderBy    string   `json:"orderBy,omitempty"`
	Desc       bool     `json:"desc,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

func (q Query) Eq(field string, v any) Query {
	q.Where = append(append([]Filter(nil), q.Where...), Filter{Field: field, Op: OpEq, Value: v})
	return q
}

func (q Query) ArrayContains(field string, v any) Query {
	q.Where = append(append([]Filter(nil), q.Where...), Filter{Field: field, Op: OpArrayContains, Value: v})
	return q
}

func (q Query) Order(field string, desc bool) Query {
	q.OrderBy = field
	q.Desc = desc
	return q
}

// Collection starts a query over every document of a collection.
func Collection(name string) Query {
	return Query{Collection: name}
}

func (q Query) String() string {
	s := q.Collection
	for _, f := range q.Where {
		s += fmt.Sprintf(" where %s %s %v", f.Field, f.Op, f.Value)
	}
	if q.OrderBy != "" {
		s += " order by " + q.OrderBy
		if q.Desc {
			s += " desc"
		}
	}
	return s
}

type Document struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Fields     map[string]any `json:"fields"`
	CreateTime time.Time      `json:"createTime"`
	UpdateTime time.Time      `json:"updateTime"`
}

// Decode converts the document into v (a pointer to a json-tagged struct).
// The document id is exposed as the "id" field.
func (d Document) Decode(v any) error {
	m := make(map[string]any, len(d.Fields)+1)
	for k, val := range d.Fields {
		m[k] = val
	}
	m["id"] = d.ID
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

type Change struct {
	Type ChangeType `json:"type"`
	Doc  Document   `json:"doc"`
}

// Snapshot is one delivery of a live query. The first delivery has Initial
// set and reports the whole result set as added.
type Snapshot struct {
	Initial bool     `json:"initial"`
	Changes []Change `json:"changes"`
}

type Listener interface {
	// Snapshots is closed when the listener stops, for any reason.
	Snapshots() <-chan Snapshot
	// Err reports why the listener stopped (nil after Close or ctx cancel).
	Err() error
	Close()
}
