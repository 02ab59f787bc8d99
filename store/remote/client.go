// Package remote implements store.Store against a studydeck server over a
// websocket.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"studydeck/pkg/logger"
	"studydeck/socket"
	"studydeck/store"
)

var (
	ErrPermissionDenied = errors.New("remote: permission denied")
	ErrRemote           = errors.New("remote: request failed")
)

type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan socket.WSMessage
	listeners map[string]store.Listener
	err       error

	dispatch *store.Dispatcher
	closed   chan struct{}
	once     sync.Once
}

// Dial connects to a /ws endpoint. token may be empty for visitor access.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		conn:      conn,
		pending:   make(map[string]chan socket.WSMessage),
		listeners: make(map[string]store.Listener),
		dispatch:  store.NewDispatcher(),
		closed:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	var err error
	defer func() { c.shutdown(err) }()
	for {
		var msg socket.WSMessage
		if err = c.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case socket.EventType:
			if msg.Event == nil {
				continue
			}
			ev, handle := *msg.Event, msg.Sub
			c.dispatch.Enqueue(func() {
				c.mu.Lock()
				l := c.listeners[handle]
				c.mu.Unlock()
				// unsubscribed while queued
				if l != nil {
					l(ev)
				}
			})
		case socket.ResultType:
			c.mu.Lock()
			ch := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- msg
			}
		default:
			logger.Sugar.Warnf("Ignoring message of type %q", msg.Type)
		}
	}
}

func (c *Client) shutdown(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		if err == nil {
			err = store.ErrClosed
		}
		c.err = err
		c.pending = make(map[string]chan socket.WSMessage)
		c.mu.Unlock()
		close(c.closed)
		c.dispatch.Close()
		c.conn.Close()
	})
}

func (c *Client) call(ctx context.Context, req socket.Request) (socket.WSMessage, error) {
	select {
	case <-c.closed:
		return socket.WSMessage{}, store.ErrClosed
	default:
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return socket.WSMessage{}, err
	}
	req.ID = id.String()
	ch := make(chan socket.WSMessage, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(req.ID)
		return socket.WSMessage{}, fmt.Errorf("send %s: %w", req.Op, err)
	}

	select {
	case msg := <-ch:
		if msg.Error != "" {
			if strings.Contains(msg.Error, "permission denied") {
				return msg, fmt.Errorf("%w: %s %s", ErrPermissionDenied, req.Op, req.Path)
			}
			return msg, fmt.Errorf("%w: %s", ErrRemote, msg.Error)
		}
		return msg, nil
	case <-ctx.Done():
		c.forget(req.ID)
		return socket.WSMessage{}, ctx.Err()
	case <-c.closed:
		return socket.WSMessage{}, store.ErrClosed
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) Read(ctx context.Context, path string) (any, error) {
	msg, err := c.call(ctx, socket.Request{Op: socket.OpRead, Path: path})
	return msg.Value, err
}

func (c *Client) Write(ctx context.Context, path string, value any) error {
	_, err := c.call(ctx, socket.Request{Op: socket.OpWrite, Path: path, Value: value})
	return err
}

func (c *Client) Update(ctx context.Context, path string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	_, err := c.call(ctx, socket.Request{Op: socket.OpUpdate, Path: path, Values: values})
	return err
}

func (c *Client) Append(ctx context.Context, path string, value any) (string, error) {
	msg, err := c.call(ctx, socket.Request{Op: socket.OpAppend, Path: path, Value: value})
	return msg.Key, err
}

func (c *Client) Remove(ctx context.Context, path string) error {
	_, err := c.call(ctx, socket.Request{Op: socket.OpRemove, Path: path})
	return err
}

func (c *Client) CompareAndSet(ctx context.Context, path string, expected, next any) (bool, any, error) {
	msg, err := c.call(ctx, socket.Request{Op: socket.OpCompareAndSet, Path: path, Expected: expected, Value: next})
	if err != nil {
		return false, nil, err
	}
	return msg.Swapped, msg.Value, nil
}

// Transact runs the compare-and-set loop on this side of the connection.
func (c *Client) Transact(ctx context.Context, path string, fn store.TxFunc) (store.TxResult, error) {
	return store.RunTransaction(ctx, c, path, fn)
}

func (c *Client) OnDisconnectRemove(ctx context.Context, path string) error {
	_, err := c.call(ctx, socket.Request{Op: socket.OpOnDisconnectRemove, Path: path})
	return err
}

func (c *Client) CancelOnDisconnect(ctx context.Context, path string) error {
	_, err := c.call(ctx, socket.Request{Op: socket.OpCancelOnDisconnect, Path: path})
	return err
}

// Subscribe registers l before asking the server, so initial events that
// overtake the reply are not lost.
func (c *Client) Subscribe(ctx context.Context, path string, kind store.EventKind, opts store.SubscribeOptions, l store.Listener) (store.SubscriptionID, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", store.ErrUnknownEvent, kind)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	handle := id.String()
	c.mu.Lock()
	c.listeners[handle] = l
	c.mu.Unlock()

	_, err = c.call(ctx, socket.Request{Op: socket.OpSubscribe, Path: path, Kind: kind, OrderBy: opts.OrderBy, Sub: handle})
	if err != nil {
		c.mu.Lock()
		delete(c.listeners, handle)
		c.mu.Unlock()
		return "", err
	}
	return store.SubscriptionID(handle), nil
}

func (c *Client) Unsubscribe(ctx context.Context, id store.SubscriptionID) error {
	c.mu.Lock()
	_, ok := c.listeners[string(id)]
	delete(c.listeners, string(id))
	c.mu.Unlock()
	if !ok {
		return store.ErrNoSubscription
	}
	_, err := c.call(ctx, socket.Request{Op: socket.OpUnsubscribe, Sub: string(id)})
	return err
}

// Sync waits until every event the server produced before the call has been
// delivered to the listeners.
func (c *Client) Sync(ctx context.Context) error {
	if _, err := c.call(ctx, socket.Request{Op: socket.OpSync}); err != nil {
		return err
	}
	return c.dispatch.Flush(ctx)
}

// Err reports why the connection ended, nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Done() <-chan struct{} { return c.closed }

// Close ends the connection. The server then runs this session's
// disconnect cleanup.
func (c *Client) Close() {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.shutdown(nil)
}
