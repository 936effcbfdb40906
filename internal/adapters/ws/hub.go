package ws

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/okian/gridlock/pkg/logger"
	"github.com/okian/gridlock/pkg/metrics"
)

// Default hub configuration constants.
const (
	defaultSendBuffer = 64
)

// Hub tracks connected clients and fans events out to them. Delivery is
// best-effort and unordered across recipients; a slow client's queue fills
// and further events to it are dropped rather than stalling the sender.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	sendBuffer int
	logger     logger.Logger
}

// HubOption applies a configuration option to the Hub.
type HubOption func(*Hub)

// WithSendBuffer sets the per-connection outbound queue size.
func WithSendBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.sendBuffer = size
		}
	}
}

// WithHubLogger sets a custom logger for the hub.
func WithHubLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[string]*client),
		sendBuffer: defaultSendBuffer,
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		h.logger = logger.Get().Named("hub")
	}

	return h
}

// client is one registered connection with its outbound queue.
type client struct {
	id   string
	conn *websocket.Conn
	send chan outbound
	stop chan struct{}
	once sync.Once
}

// Add registers a connection and starts its write loop.
func (h *Hub) Add(id string, conn *websocket.Conn) {
	c := &client{
		id:   id,
		conn: conn,
		send: make(chan outbound, h.sendBuffer),
		stop: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()

	go h.writeLoop(c)
}

// Remove unregisters a connection and stops its write loop. Idempotent.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()

	if ok {
		c.once.Do(func() { close(c.stop) })
	}
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Unicast queues an event for one connection. Unknown connections are a
// no-op: a late result for a departed client must not resurrect it.
func (h *Hub) Unicast(connectionID, event string, data interface{}) {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()

	if !ok {
		return
	}

	h.push(c, outbound{Event: event, Data: data})
	metrics.RecordUnicast(event)
}

// Broadcast queues an event for every connection.
func (h *Hub) Broadcast(event string, data interface{}) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	msg := outbound{Event: event, Data: data}
	for _, c := range targets {
		h.push(c, msg)
	}
	metrics.RecordBroadcast(event)
}

// push enqueues without ever blocking the caller.
func (h *Hub) push(c *client, msg outbound) {
	select {
	case c.send <- msg:
	case <-c.stop:
	default:
		metrics.RecordOutboundDropped()
		h.logger.Warn(context.Background(), "outbound queue full, dropping event",
			logger.String("connection_id", c.id),
			logger.String("event", msg.Event),
		)
	}
}

// writeLoop serializes all writes for one connection.
func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.stop:
			return
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Debug(context.Background(), "write failed, stopping write loop",
					logger.String("connection_id", c.id),
					logger.Error(err),
				)
				return
			}
		}
	}
}
