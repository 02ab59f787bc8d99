package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"studydeck/pkg/logger"
	"studydeck/store"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	opTimeout  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Store  *store.Conn
	UserID string
	Role   string
	Send   chan []byte

	mu     sync.Mutex
	closed bool
	subs   map[string]store.SubscriptionID // client handle -> store subscription
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID, role string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}
	if role != RoleAdmin {
		role = RoleVisitor
	}

	client := &Client{
		Hub:    hub,
		Conn:   conn,
		Store:  hub.Tree.Connect(),
		UserID: userID,
		Role:   role,
		Send:   make(chan []byte, 256),
		subs:   make(map[string]store.SubscriptionID),
	}
	select {
	case client.Hub.Register <- client:
	case <-hub.done:
		client.Store.Close()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// send queues a message for the write pump. A client whose buffer is full
// is lagging and gets disconnected.
func (c *Client) send(msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling message: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- payload:
	default:
		logger.Sugar.Warnf("Client %s's send buffer is full. Disconnecting.", c.UserID)
		c.Conn.Close()
	}
}

// release closes the store connection, which runs the session's disconnect
// cleanup, then stops the write pump.
func (c *Client) release() {
	c.Store.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			logger.Sugar.Errorf("Error unmarshalling request: %v", err)
			continue
		}

		if !Allowed(c.Role, req) {
			deniedTotal.WithLabelValues(req.Op).Inc()
			logger.Sugar.Warnf("Permission Denied: User %s (Role: %s) tried %s on %s", c.UserID, c.Role, req.Op, req.Path)
			c.send(WSMessage{Type: ResultType, ID: req.ID, Error: "permission denied"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		resp := c.handle(ctx, req)
		cancel()
		resp.Type = ResultType
		resp.ID = req.ID
		c.send(resp)
	}
}

func (c *Client) handle(ctx context.Context, req Request) WSMessage {
	var (
		resp WSMessage
		err  error
	)
	switch req.Op {
	case OpRead:
		resp.Value, err = c.Store.Read(ctx, req.Path)
	case OpWrite:
		err = c.Store.Write(ctx, req.Path, req.Value)
	case OpUpdate:
		err = c.Store.Update(ctx, req.Path, req.Values)
	case OpAppend:
		resp.Key, err = c.Store.Append(ctx, req.Path, req.Value)
	case OpRemove:
		err = c.Store.Remove(ctx, req.Path)
	case OpCompareAndSet:
		resp.Swapped, resp.Value, err = c.Store.CompareAndSet(ctx, req.Path, req.Expected, req.Value)
	case OpOnDisconnectRemove:
		err = c.Store.OnDisconnectRemove(ctx, req.Path)
	case OpCancelOnDisconnect:
		err = c.Store.CancelOnDisconnect(ctx, req.Path)
	case OpSubscribe:
		err = c.subscribe(ctx, req)
		resp.Sub = req.Sub
	case OpUnsubscribe:
		err = c.unsubscribe(ctx, req.Sub)
	case OpSync:
		// every event queued so far is in Send before the reply
		err = c.Store.Sync(ctx)
	default:
		err = fmt.Errorf("unknown op %q", req.Op)
	}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	return resp
}

func (c *Client) subscribe(ctx context.Context, req Request) error {
	if req.Sub == "" {
		return fmt.Errorf("missing subscription handle")
	}
	c.mu.Lock()
	_, dup := c.subs[req.Sub]
	c.mu.Unlock()
	if dup {
		return fmt.Errorf("subscription %s already exists", req.Sub)
	}

	handle := req.Sub
	id, err := c.Store.Subscribe(ctx, req.Path, req.Kind, store.SubscribeOptions{OrderBy: req.OrderBy}, func(ev store.Event) {
		c.send(WSMessage{Type: EventType, Sub: handle, Event: &ev})
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[handle] = id
	c.mu.Unlock()
	return nil
}

func (c *Client) unsubscribe(ctx context.Context, handle string) error {
	c.mu.Lock()
	id, ok := c.subs[handle]
	delete(c.subs, handle)
	c.mu.Unlock()
	if !ok {
		return store.ErrNoSubscription
	}
	return c.Store.Unsubscribe(ctx, id)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
