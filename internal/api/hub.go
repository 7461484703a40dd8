package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hostmon/internal/metrics"
)

const (
	hubSendBuffer   = 8
	hubWriteTimeout = 10 * time.Second
)

// Hub broadcasts every written snapshot to connected websocket clients.
// Params: none.
// Returns: sink plus websocket endpoint.
type Hub struct {
	upgrader websocket.Upgrader
	latest   func() (*metrics.Snapshot, bool)
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewHub creates a hub without clients.
// Params: latest optional source of the snapshot sent on connect; logger diagnostics.
// Returns: hub instance.
func NewHub(latest func() (*metrics.Snapshot, bool), logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		latest:  latest,
		logger:  logger,
		clients: make(map[*hubClient]struct{}),
	}
}

// Write fans snap out to every client; clients that fall behind are disconnected.
// Params: ctx unused; snap collected snapshot.
// Returns: encoding error.
func (h *Hub) Write(_ context.Context, snap *metrics.Snapshot) error {
	if snap == nil {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	for _, client := range h.snapshotClients() {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("websocket client too slow, disconnecting", slog.String("remote", client.conn.RemoteAddr().String()))
			h.remove(client)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
// Params: none.
// Returns: client count.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and rejects new ones.
// Params: none.
// Returns: always nil.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for _, client := range clients {
		_ = client.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), deadline)
		h.remove(client)
	}
	return nil
}

// ServeWS upgrades the request and streams snapshots until the peer goes away.
// Params: w response writer; r upgrade request.
// Returns: none.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := &hubClient{
		conn: conn,
		send: make(chan []byte, hubSendBuffer),
		done: make(chan struct{}),
	}
	if !h.add(client) {
		_ = conn.Close()
		return
	}

	if h.latest != nil {
		if snap, ok := h.latest(); ok {
			if payload, err := json.Marshal(snap); err == nil {
				client.send <- payload
			}
		}
	}

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) add(client *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = struct{}{}
	return true
}

func (h *Hub) remove(client *hubClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	client.once.Do(func() {
		close(client.done)
		_ = client.conn.Close()
	})
}

func (h *Hub) snapshotClients() []*hubClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*hubClient, 0, len(h.clients))
	for client := range h.clients {
		out = append(out, client)
	}
	return out
}

// readPump drains inbound frames so close and ping frames are processed.
func (h *Hub) readPump(client *hubClient) {
	defer h.remove(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *hubClient) {
	for {
		select {
		case payload := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(client)
				return
			}
		case <-client.done:
			return
		}
	}
}
