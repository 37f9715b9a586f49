package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"boardsync/internal/auth"
	"boardsync/internal/docstore"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrDisconnected is returned by calls on a client whose connection ended.
var ErrDisconnected = errors.New("relay: disconnected")

type ClientOptions struct {
	Logger *zap.Logger
	Dialer *websocket.Dialer
}

// Client is a docstore.Backend served by a relay over one websocket.
type Client struct {
	ws     *websocket.Conn
	log    *zap.Logger
	nextID atomic.Uint64
	send   chan []byte
	done   chan struct{}

	mu      sync.Mutex
	pending map[uint64]chan message
	subs    map[string]*remoteListener
	err     error
}

var _ docstore.Backend = (*Client)(nil)

// SignIn exchanges credentials for a session token.
func SignIn(ctx context.Context, baseURL, email, password string) (string, auth.Identity, error) {
	body, _ := json.Marshal(signInRequest{Email: email, Password: password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/v1/auth/signin", bytes.NewReader(body))
	if err != nil {
		return "", auth.Identity{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", auth.Identity{}, fmt.Errorf("relay sign-in: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return "", auth.Identity{}, auth.ErrInvalidCredentials
	default:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return "", auth.Identity{}, fmt.Errorf("relay sign-in: %s: %s", resp.Status, e.Error)
	}
	var out signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", auth.Identity{}, fmt.Errorf("relay sign-in: %w", err)
	}
	return out.Token, out.Identity, nil
}

// Dial opens a websocket to baseURL (http or https) authenticated by token.
func Dial(ctx context.Context, baseURL, token string, opts ClientOptions) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, auth.ErrInvalidToken
		}
		return nil, fmt.Errorf("relay dial: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ws.SetReadLimit(maxMessageSize)
	c := &Client{
		ws:      ws,
		log:     log.Named("relay-client"),
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		pending: map[uint64]chan message{},
		subs:    map[string]*remoteListener{},
	}
	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

// Close ends the connection. Open listeners stop with ErrDisconnected.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

// Err reports why the connection ended, if it has.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
	}
	c.err = cause
	close(c.done)
	subs := c.subs
	c.subs = map[string]*remoteListener{}
	c.pending = map[uint64]chan message{}
	c.mu.Unlock()

	_ = c.ws.Close()
	for _, l := range subs {
		l.stop(ErrDisconnected)
	}
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("relay connection lost", zap.Error(err))
			}
			c.shutdown(fmt.Errorf("%w: %v", ErrDisconnected, err))
			return
		}
		var m message
		if err := json.Unmarshal(data, &m); err != nil {
			c.log.Warn("malformed frame", zap.Error(err))
			continue
		}
		c.dispatch(m)
	}
}

func (c *Client) dispatch(m message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch m.Type {
	case typeResponse:
		if ch, ok := c.pending[m.ID]; ok {
			delete(c.pending, m.ID)
			ch <- m
		}
	case typeSnapshot:
		if l, ok := c.subs[m.Sub]; ok {
			l.push(m)
		}
	case typeListenError:
		if l, ok := c.subs[m.Sub]; ok {
			delete(c.subs, m.Sub)
			l.stop(errors.New(m.Error))
		}
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.shutdown(fmt.Errorf("%w: %v", ErrDisconnected, err))
				return
			}
		}
	}
}

func (c *Client) enqueue(ctx context.Context, req request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if len(b) > maxMessageSize {
		return fmt.Errorf("%w: %s request of %d bytes", ErrFrameTooLarge, req.Op, len(b))
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return c.disconnected()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) disconnected() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrDisconnected
}

func (c *Client) call(ctx context.Context, req request) (message, error) {
	req.ID = c.nextID.Add(1)
	ch := make(chan message, 1)
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return message{}, c.disconnected()
	default:
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}
	if err := c.enqueue(ctx, req); err != nil {
		forget()
		return message{}, err
	}
	select {
	case m := <-ch:
		if !m.OK {
			return m, remoteError(m)
		}
		return m, nil
	case <-c.done:
		return message{}, c.disconnected()
	case <-ctx.Done():
		forget()
		return message{}, ctx.Err()
	}
}

func (c *Client) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	m, err := c.call(ctx, request{Op: opCreate, Collection: collection, Fields: fields})
	if err != nil {
		return "", err
	}
	return m.DocID, nil
}

func (c *Client) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	_, err := c.call(ctx, request{Op: opSet, Collection: collection, DocID: id, Fields: fields, Merge: merge})
	return err
}

func (c *Client) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	m, err := c.call(ctx, request{Op: opGet, Collection: collection, DocID: id})
	if err != nil {
		return docstore.Document{}, err
	}
	if m.Doc == nil {
		return docstore.Document{}, fmt.Errorf("relay: get %s/%s: empty response", collection, id)
	}
	return *m.Doc, nil
}

func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := c.call(ctx, request{Op: opUpdate, Collection: collection, DocID: id, Fields: fields})
	return err
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	_, err := c.call(ctx, request{Op: opDelete, Collection: collection, DocID: id})
	return err
}

func (c *Client) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	m, err := c.call(ctx, request{Op: opQuery, Query: &q})
	if err != nil {
		return nil, err
	}
	return m.Docs, nil
}

func (c *Client) Listen(ctx context.Context, q docstore.Query) (docstore.Listener, error) {
	sub := uuid.NewString()
	l := newRemoteListener(c, sub)
	c.mu.Lock()
	c.subs[sub] = l
	c.mu.Unlock()

	if _, err := c.call(ctx, request{Op: opListen, Query: &q, Sub: sub}); err != nil {
		c.mu.Lock()
		delete(c.subs, sub)
		c.mu.Unlock()
		l.stop(nil)
		return nil, err
	}
	go l.run(ctx)
	return l, nil
}

func (c *Client) unlisten(sub string) {
	c.mu.Lock()
	_, open := c.subs[sub]
	delete(c.subs, sub)
	c.mu.Unlock()
	if !open {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	_ = c.enqueue(ctx, request{Op: opUnlisten, Sub: sub})
}

// remoteListener queues pushed snapshots so the read loop never blocks on a
// slow consumer.
type remoteListener struct {
	client *Client
	sub    string
	out    chan docstore.Snapshot
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	queue   []docstore.Snapshot
	partial []docstore.Change
	err     error
}

func newRemoteListener(c *Client, sub string) *remoteListener {
	return &remoteListener{
		client: c,
		sub:    sub,
		out:    make(chan docstore.Snapshot),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (l *remoteListener) Snapshots() <-chan docstore.Snapshot { return l.out }

func (l *remoteListener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *remoteListener) Close() {
	l.client.unlisten(l.sub)
	l.stop(nil)
}

// push collects a snapshot frame and queues the snapshot once its last
// frame has arrived.
func (l *remoteListener) push(m message) {
	l.mu.Lock()
	l.partial = append(l.partial, m.Changes...)
	if m.More {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, docstore.Snapshot{Initial: m.Initial, Changes: l.partial})
	l.partial = nil
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *remoteListener) stop(err error) {
	l.once.Do(func() {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		close(l.done)
	})
}

func (l *remoteListener) run(ctx context.Context) {
	defer close(l.out)
	for {
		l.mu.Lock()
		var next *docstore.Snapshot
		if len(l.queue) > 0 {
			s := l.queue[0]
			l.queue = l.queue[1:]
			next = &s
		}
		l.mu.Unlock()

		if next == nil {
			select {
			case <-l.wake:
				continue
			case <-l.done:
				return
			case <-ctx.Done():
				l.Close()
				return
			}
		}
		select {
		case l.out <- *next:
		case <-l.done:
			return
		case <-ctx.Done():
			l.Close()
			return
		}
	}
}
