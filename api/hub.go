package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dnldd/screener/metrics"
	"github.com/dnldd/screener/shared"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 8
	// clientBufferSize is the outbound message buffer size per client.
	clientBufferSize = 16

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 512
)

// Envelope represents a message streamed to websocket clients.
type Envelope struct {
	Type     string           `json:"type"`
	Snapshot *shared.Snapshot `json:"snapshot"`
}

// client represents a single websocket peer.
type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// writePump relays queued messages to the peer and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the peer until the connection fails. Clients only listen.
func (c *client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Hub fans published snapshots out to websocket clients.
type Hub struct {
	logger    *zerolog.Logger
	metrics   *metrics.Metrics
	mtx       sync.RWMutex
	clients   map[*client]struct{}
	snapshots chan *shared.Snapshot
}

// NewHub initializes a websocket hub.
func NewHub(logger *zerolog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		logger:    logger,
		metrics:   m,
		clients:   make(map[*client]struct{}),
		snapshots: make(chan *shared.Snapshot, bufferSize),
	}
}

// encodeSnapshot builds the envelope streamed for the provided snapshot.
func encodeSnapshot(snap *shared.Snapshot) ([]byte, error) {
	return json.Marshal(Envelope{Type: "snapshot", Snapshot: snap})
}

// SendSnapshot relays the provided snapshot for broadcast.
func (h *Hub) SendSnapshot(snap *shared.Snapshot) {
	select {
	case h.snapshots <- snap:
		// do nothing.
	default:
		h.logger.Error().Msgf("hub snapshot channel at capacity: %d/%d",
			len(h.snapshots), bufferSize)
	}
}

// register adds a websocket peer to the hub, queueing the provided snapshot as its
// initial state.
func (h *Hub) register(conn *websocket.Conn, initial *shared.Snapshot) {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientBufferSize),
		hub:  h,
	}

	msg, err := encodeSnapshot(initial)
	if err != nil {
		h.logger.Error().Msgf("encoding initial snapshot: %v", err)
	} else {
		c.send <- msg
	}

	h.mtx.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mtx.Unlock()

	h.metrics.WSClients.Set(float64(count))
	h.logger.Debug().Msgf("ws client connected (%d total)", count)

	go c.writePump()
	go c.readPump()
}

// removeClient removes the provided client from the hub.
func (h *Hub) removeClient(c *client) {
	h.mtx.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mtx.Unlock()

	h.metrics.WSClients.Set(float64(count))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mtx.RLock()
	defer h.mtx.RUnlock()

	return len(h.clients)
}

// broadcast sends the provided snapshot to every client, dropping it for clients
// that are not keeping up.
func (h *Hub) broadcast(snap *shared.Snapshot) {
	msg, err := encodeSnapshot(snap)
	if err != nil {
		h.logger.Error().Msgf("encoding snapshot %s: %v", snap.PassID, err)
		return
	}

	h.mtx.RLock()
	defer h.mtx.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.metrics.WSDrops.Inc()
		}
	}
}

// Run manages the lifecycle processes of the hub.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mtx.RLock()
			for c := range h.clients {
				c.conn.Close()
			}
			h.mtx.RUnlock()
			return
		case snap := <-h.snapshots:
			h.broadcast(snap)
		}
	}
}
