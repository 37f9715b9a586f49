// Package relay exposes a docstore.Backend over websockets so several
// clients can share one store, and provides a Client that implements
// docstore.Backend on top of that connection.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"boardsync/internal/docstore"
)

const (
	opCreate   = "create"
	opSet      = "set"
	opGet      = "get"
	opUpdate   = "update"
	opDelete   = "delete"
	opQuery    = "query"
	opListen   = "listen"
	opUnlisten = "unlisten"
)

const (
	typeResponse    = "response"
	typeSnapshot    = "snapshot"
	typeListenError = "listen_error"
)

const codeNotFound = "not_found"

// ErrFrameTooLarge is returned when a request, response or single document
// change cannot fit in one websocket frame.
var ErrFrameTooLarge = errors.New("relay: frame too large")

// request is a client frame. Sentinels inside Fields travel as
// {"$op": kind, "key": k, "values": [...]}.
type request struct {
	ID         uint64          `json:"id"`
	Op         string          `json:"op"`
	Collection string          `json:"collection,omitempty"`
	DocID      string          `json:"docId,omitempty"`
	Fields     map[string]any  `json:"fields,omitempty"`
	Merge      bool            `json:"merge,omitempty"`
	Query      *docstore.Query `json:"query,omitempty"`
	// Sub is chosen by the client for listen/unlisten so pushes can be routed
	// before the listen response is read.
	Sub string `json:"sub,omitempty"`
}

// message is a server frame: a response to a request, or a push for a
// live query.
type message struct {
	Type  string `json:"type"`
	ID    uint64 `json:"id,omitempty"`
	OK    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`

	DocID string              `json:"docId,omitempty"`
	Doc   *docstore.Document  `json:"doc,omitempty"`
	Docs  []docstore.Document `json:"docs,omitempty"`

	Sub     string            `json:"sub,omitempty"`
	Initial bool              `json:"initial,omitempty"`
	Changes []docstore.Change `json:"changes,omitempty"`
	// More marks a snapshot frame that is continued by the next frame for
	// the same sub. The client delivers the snapshot once More is false.
	More bool `json:"more,omitempty"`
}

func errorMessage(id uint64, err error) message {
	m := message{Type: typeResponse, ID: id, Error: err.Error()}
	if errors.Is(err, docstore.ErrNotFound) {
		m.Code = codeNotFound
	}
	return m
}

// remoteError restores sentinel errors from a failed response.
func remoteError(m message) error {
	if m.Code == codeNotFound {
		return fmt.Errorf("relay: %s: %w", m.Error, docstore.ErrNotFound)
	}
	return fmt.Errorf("relay: %s", m.Error)
}

// snapshotFrames encodes snap as one or more snapshot frames. Changes are
// packed greedily up to target bytes per frame; a change that is larger than
// target travels alone. A frame over limit fails with ErrFrameTooLarge.
func snapshotFrames(sub string, snap docstore.Snapshot, target, limit int) ([][]byte, error) {
	var (
		frames [][]byte
		chunk  []docstore.Change
		size   int
	)
	flush := func(more bool) error {
		b, err := json.Marshal(message{Type: typeSnapshot, Sub: sub, Initial: snap.Initial, Changes: chunk, More: more})
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		if len(b) > limit {
			return fmt.Errorf("%w: snapshot frame of %d bytes", ErrFrameTooLarge, len(b))
		}
		frames = append(frames, b)
		chunk, size = nil, 0
		return nil
	}
	for _, ch := range snap.Changes {
		b, err := json.Marshal(ch)
		if err != nil {
			return nil, fmt.Errorf("encode change %s: %w", ch.Doc.ID, err)
		}
		if len(b) > limit {
			return nil, fmt.Errorf("%w: document %s is %d bytes", ErrFrameTooLarge, ch.Doc.ID, len(b))
		}
		if len(chunk) > 0 && size+len(b) > target {
			if err := flush(true); err != nil {
				return nil, err
			}
		}
		chunk = append(chunk, ch)
		size += len(b)
	}
	if err := flush(false); err != nil {
		return nil, err
	}
	return frames, nil
}
