package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"boardsync/internal/auth"
	"boardsync/internal/docstore"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// conn is one authenticated websocket client on the server.
type conn struct {
	srv  *Server
	ws   *websocket.Conn
	user auth.Identity
	log  *zap.Logger
	send chan []byte

	g *errgroup.Group

	mu   sync.Mutex
	subs map[string]docstore.Listener
}

func newConn(s *Server, ws *websocket.Conn, user auth.Identity) *conn {
	return &conn{
		srv:  s,
		ws:   ws,
		user: user,
		log:  s.log.With(zap.String("conn", uuid.NewString()), zap.String("uid", user.UID)),
		send: make(chan []byte, sendBuffer),
		subs: map[string]docstore.Listener{},
	}
}

func (c *conn) serve(parent context.Context) {
	c.log.Info("client connected")
	g, ctx := errgroup.WithContext(parent)
	c.g = g
	g.Go(func() error { return c.readPump(ctx) })
	g.Go(func() error { return c.writePump(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		return c.ws.Close()
	})
	err := g.Wait()
	c.closeSubs()
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, context.Canceled) {
		c.log.Debug("client connection ended", zap.Error(err))
	}
	c.log.Info("client disconnected")
}

func (c *conn) readPump(ctx context.Context) error {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", zap.Error(err))
			}
			return err
		}
		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			c.log.Warn("malformed request", zap.Error(err))
			continue
		}
		if err := c.enqueue(ctx, c.handle(ctx, req)); err != nil {
			return err
		}
	}
}

func (c *conn) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (c *conn) enqueue(ctx context.Context, m message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(b) > maxMessageSize {
		if m.Type != typeResponse {
			return fmt.Errorf("%w: %s frame of %d bytes", ErrFrameTooLarge, m.Type, len(b))
		}
		c.log.Warn("response too large", zap.Uint64("id", m.ID), zap.Int("bytes", len(b)))
		if b, err = json.Marshal(errorMessage(m.ID, fmt.Errorf("%w: response of %d bytes", ErrFrameTooLarge, len(b)))); err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
	}
	return c.enqueueFrame(ctx, b)
}

func (c *conn) enqueueFrame(ctx context.Context, b []byte) error {
	select {
	case c.send <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) handle(ctx context.Context, req request) message {
	ok := message{Type: typeResponse, ID: req.ID, OK: true}
	b := c.srv.backend
	switch req.Op {
	case opCreate, opSet, opUpdate:
		fields, err := docstore.DecodeFieldOps(req.Fields)
		if err != nil {
			return errorMessage(req.ID, err)
		}
		switch req.Op {
		case opCreate:
			id, err := b.Create(ctx, req.Collection, fields)
			if err != nil {
				return errorMessage(req.ID, err)
			}
			ok.DocID = id
		case opSet:
			err = b.Set(ctx, req.Collection, req.DocID, fields, req.Merge)
		default:
			err = b.Update(ctx, req.Collection, req.DocID, fields)
		}
		if err != nil {
			return errorMessage(req.ID, err)
		}
		return ok
	case opGet:
		doc, err := b.Get(ctx, req.Collection, req.DocID)
		if err != nil {
			return errorMessage(req.ID, err)
		}
		ok.Doc = &doc
		return ok
	case opDelete:
		if err := b.Delete(ctx, req.Collection, req.DocID); err != nil {
			return errorMessage(req.ID, err)
		}
		return ok
	case opQuery:
		if req.Query == nil {
			return errorMessage(req.ID, errors.New("query: missing query"))
		}
		docs, err := b.Query(ctx, *req.Query)
		if err != nil {
			return errorMessage(req.ID, err)
		}
		ok.Docs = docs
		return ok
	case opListen:
		if err := c.listen(ctx, req); err != nil {
			return errorMessage(req.ID, err)
		}
		return ok
	case opUnlisten:
		c.unlisten(req.Sub)
		return ok
	default:
		return errorMessage(req.ID, fmt.Errorf("unknown op %q", req.Op))
	}
}

func (c *conn) listen(ctx context.Context, req request) error {
	if req.Query == nil || req.Sub == "" {
		return errors.New("listen: missing query or sub")
	}
	c.mu.Lock()
	_, dup := c.subs[req.Sub]
	c.mu.Unlock()
	if dup {
		return fmt.Errorf("listen: sub %q already open", req.Sub)
	}
	l, err := c.srv.backend.Listen(ctx, *req.Query)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[req.Sub] = l
	c.mu.Unlock()
	c.log.Debug("listen", zap.String("sub", req.Sub), zap.Stringer("query", req.Query))

	// A snapshot may reach the client before the listen response; the client
	// registers the sub before sending the request.
	c.g.Go(func() error {
		defer func() {
			c.mu.Lock()
			delete(c.subs, req.Sub)
			c.mu.Unlock()
		}()
		for snap := range l.Snapshots() {
			frames, err := snapshotFrames(req.Sub, snap, snapshotFrameSize, maxMessageSize)
			if err != nil {
				// Only this live query ends; the connection stays up.
				c.log.Warn("live query dropped", zap.String("sub", req.Sub), zap.Error(err))
				l.Close()
				_ = c.enqueue(ctx, message{Type: typeListenError, Sub: req.Sub, Error: err.Error()})
				return nil
			}
			for _, f := range frames {
				if err := c.enqueueFrame(ctx, f); err != nil {
					return nil
				}
			}
		}
		if err := l.Err(); err != nil {
			_ = c.enqueue(ctx, message{Type: typeListenError, Sub: req.Sub, Error: err.Error()})
		}
		return nil
	})
	return nil
}

func (c *conn) unlisten(sub string) {
	c.mu.Lock()
	l := c.subs[sub]
	delete(c.subs, sub)
	c.mu.Unlock()
	if l != nil {
		l.Close()
	}
}

func (c *conn) closeSubs() {
	c.mu.Lock()
	subs := c.subs
	c.subs = map[string]docstore.Listener{}
	c.mu.Unlock()
	for _, l := range subs {
		l.Close()
	}
}
