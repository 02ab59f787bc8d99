package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studydeck/store"
)

// Helper function to read messages from a WebSocket connection with a timeout.
func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	var msg WSMessage
	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	require.NoError(t, json.Unmarshal(p, &msg), "Failed to unmarshal WSMessage JSON")
	return msg
}

// call sends req and reads until its result arrives. Events read on the way
// are returned too.
func call(t *testing.T, conn *websocket.Conn, req Request) (WSMessage, []WSMessage) {
	require.NoError(t, conn.WriteJSON(req))
	var events []WSMessage
	for {
		msg := readMessage(t, conn)
		if msg.Type == ResultType && msg.ID == req.ID {
			return msg, events
		}
		events = append(events, msg)
	}
}

func setup(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(store.NewTree("editingLocks"))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// For simplicity, identity and role come straight from the query.
		ServeWs(hub, w, r, r.URL.Query().Get("user_id"), r.URL.Query().Get("role"))
	}))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, wsURL, user, role string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?user_id="+user+"&role="+role, nil)
	require.NoError(t, err, "%s failed to connect", user)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubIntegration(t *testing.T) {
	hub, wsURL := setup(t)
	admin := dial(t, wsURL, "admin1", RoleAdmin)
	visitor := dial(t, wsURL, "visitor1", RoleVisitor)

	res, _ := call(t, admin, Request{ID: "1", Op: OpWrite, Path: "tabs/t1", Value: map[string]any{"name": "Biology", "order": 0}})
	require.True(t, res.OK, res.Error)

	// the visitor watches the tab list
	res, events := call(t, visitor, Request{ID: "2", Op: OpSubscribe, Path: "tabs", Kind: store.EventChildAdded, OrderBy: "order", Sub: "s1"})
	require.True(t, res.OK, res.Error)
	assert.Equal(t, "s1", res.Sub)
	if len(events) == 0 {
		ev := readMessage(t, visitor)
		events = append(events, ev)
	}
	require.Equal(t, EventType, events[0].Type)
	assert.Equal(t, "s1", events[0].Sub)
	assert.Equal(t, "t1", events[0].Event.Key)

	res, _ = call(t, admin, Request{ID: "3", Op: OpAppend, Path: "tabs", Value: map[string]any{"name": "Chemistry", "order": 1}})
	require.True(t, res.OK, res.Error)
	require.NotEmpty(t, res.Key)

	ev := readMessage(t, visitor)
	assert.Equal(t, EventType, ev.Type)
	assert.Equal(t, store.EventChildAdded, ev.Event.Kind)
	assert.Equal(t, res.Key, ev.Event.Key)

	res, _ = call(t, visitor, Request{ID: "4", Op: OpRead, Path: "tabs/t1/name"})
	require.True(t, res.OK)
	assert.Equal(t, "Biology", res.Value)

	assert.Equal(t, 2, hub.Count())
}

func TestVisitorWritesAreRestricted(t *testing.T) {
	_, wsURL := setup(t)
	visitor := dial(t, wsURL, "visitor1", RoleVisitor)

	res, _ := call(t, visitor, Request{ID: "1", Op: OpWrite, Path: "tabs/t1/name", Value: "hacked"})
	assert.False(t, res.OK)
	assert.Equal(t, "permission denied", res.Error)

	res, _ = call(t, visitor, Request{ID: "2", Op: OpCompareAndSet, Path: "editingLocks/a", Value: "me"})
	assert.False(t, res.OK)

	res, _ = call(t, visitor, Request{ID: "3", Op: OpWrite, Path: "tabs/t1/content/q1/userAnswer", Value: "mitosis"})
	assert.True(t, res.OK, res.Error)

	res, _ = call(t, visitor, Request{ID: "4", Op: OpUpdate, Path: "tabs/t1/content", Values: map[string]any{
		"q1/userAnswer": "meiosis",
		"q1/answer":     "leaked",
	}})
	assert.False(t, res.OK)

	res, _ = call(t, visitor, Request{ID: "5", Op: OpRead, Path: "tabs/t1/content/q1"})
	require.True(t, res.OK)
	assert.Equal(t, map[string]any{"userAnswer": "mitosis"}, res.Value)
}

func TestCompareAndSetOverSocket(t *testing.T) {
	_, wsURL := setup(t)
	a := dial(t, wsURL, "a", RoleAdmin)
	b := dial(t, wsURL, "b", RoleAdmin)

	res, _ := call(t, a, Request{ID: "1", Op: OpCompareAndSet, Path: "editingLocks/x", Value: "a"})
	require.True(t, res.OK, res.Error)
	assert.True(t, res.Swapped)

	res, _ = call(t, b, Request{ID: "2", Op: OpCompareAndSet, Path: "editingLocks/x", Value: "b"})
	require.True(t, res.OK, res.Error)
	assert.False(t, res.Swapped)
	assert.Equal(t, "a", res.Value)
}

func TestDisconnectRunsCleanup(t *testing.T) {
	hub, wsURL := setup(t)
	holder := dial(t, wsURL, "holder", RoleAdmin)
	watcher := dial(t, wsURL, "watcher", RoleAdmin)

	res, _ := call(t, holder, Request{ID: "1", Op: OpWrite, Path: "editingLocks/card1", Value: "holder"})
	require.True(t, res.OK, res.Error)
	res, _ = call(t, holder, Request{ID: "2", Op: OpOnDisconnectRemove, Path: "editingLocks/card1"})
	require.True(t, res.OK, res.Error)

	holder.Close()
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	res, _ = call(t, watcher, Request{ID: "3", Op: OpRead, Path: "editingLocks/card1"})
	require.True(t, res.OK)
	assert.Nil(t, res.Value)
}

func TestUnknownOpAndSubscription(t *testing.T) {
	_, wsURL := setup(t)
	conn := dial(t, wsURL, "a", RoleAdmin)

	res, _ := call(t, conn, Request{ID: "1", Op: "explode"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "unknown op")

	res, _ = call(t, conn, Request{ID: "2", Op: OpUnsubscribe, Sub: "nope"})
	assert.False(t, res.OK)

	res, _ = call(t, conn, Request{ID: "3", Op: OpSubscribe, Path: "tabs", Kind: "sideways", Sub: "s"})
	assert.False(t, res.OK)
}

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed(RoleAdmin, Request{Op: OpRemove, Path: "tabs/t1"}))
	assert.True(t, Allowed(RoleVisitor, Request{Op: OpSubscribe, Path: "editingLocks"}))
	assert.False(t, Allowed(RoleVisitor, Request{Op: OpRemove, Path: "tabs/t1"}))
	assert.False(t, Allowed(RoleVisitor, Request{Op: OpUpdate, Path: "tabs"}))
	assert.True(t, Allowed(RoleVisitor, Request{Op: OpRemove, Path: "tabs/t1/content/c1/userAnswer"}))
}
