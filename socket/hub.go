package socket

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"studydeck/pkg/logger"
	"studydeck/store"
)

var (
	clientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studydeck_socket_clients",
		Help: "Connected websocket clients",
	})
	deniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studydeck_socket_denied_total",
		Help: "Requests rejected by role checks",
	}, []string{"op"})
)

// Hub owns the connected clients. Every client gets its own store
// connection, so closing a socket runs that session's disconnect cleanup.
type Hub struct {
	Tree       *store.Tree
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	mu         sync.Mutex
	done       chan struct{}
}

func NewHub(tree *store.Tree) *Hub {
	return &Hub{
		Tree:       tree,
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.Clients[client] = true
			h.mu.Unlock()
			clientsGauge.Inc()
			logger.Sugar.Infof("Client %s connected as %s", client.UserID, client.Role)

		case client := <-h.Unregister:
			if h.drop(client) {
				logger.Sugar.Infof("Client %s disconnected", client.UserID)
			}

		case <-ctx.Done():
			h.CloseAll()
			return
		}
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Clients)
}

// unregister hands c to Run, or releases it directly once Run has exited.
func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
		h.drop(c)
	}
}

// drop releases a registered client and forgets it. Cleanup has run by the
// time the client no longer counts.
func (h *Hub) drop(c *Client) bool {
	h.mu.Lock()
	_, ok := h.Clients[c]
	h.mu.Unlock()
	if !ok {
		c.release()
		return false
	}
	c.release()
	h.mu.Lock()
	delete(h.Clients, c)
	h.mu.Unlock()
	clientsGauge.Dec()
	return true
}

// CloseAll disconnects every client. Their read pumps unregister them.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.Clients {
		client.Conn.Close()
	}
}
