package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/events"
)

// driverEvent is implemented by events scoped to one driver.
type driverEvent interface {
	DriverAddress() address.Address
}

// Hub streams committed events to websocket subscribers.
type Hub struct {
	mu           sync.RWMutex
	connections  map[string]*Connection
	logger       *zap.Logger
	pingInterval time.Duration
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewHub builds an empty hub.
func NewHub(pingInterval, writeTimeout time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Hub{
		connections:  make(map[string]*Connection),
		logger:       logger,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

var _ events.Emitter = (*Hub)(nil)

// Add registers new connection.
func (h *Hub) Add(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.ID()] = conn
}

// Remove removes connection.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, id)
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Emit broadcasts evt to every interested subscriber.
func (h *Hub) Emit(evt events.Event) {
	payload, err := events.Marshal(evt)
	if err != nil {
		h.logger.Warn("failed to encode event", zap.String("type", evt.EventType()), zap.Error(err))
		return
	}

	scoped, hasDriver := evt.(driverEvent)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.connections {
		if hasDriver && !conn.Wants(scoped.DriverAddress()) {
			continue
		}
		conn.Send(payload)
	}
}

// HandleWS is HTTP handler for /events/ws. The optional driver query parameter filters
// the stream to one driver.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	var driver *address.Address
	if raw := r.URL.Query().Get("driver"); raw != "" {
		parsed, err := address.Parse(raw)
		if err != nil {
			http.Error(w, "invalid driver address", http.StatusBadRequest)
			return
		}
		driver = &parsed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := NewConnection(uuid.NewString(), driver, conn, h.pingInterval, h.writeTimeout, h.logger, func(id string) {
		h.Remove(id)
		cancel()
	})
	h.Add(connection)

	go connection.Start(ctx)
	h.logger.Debug("subscriber connected", zap.String("conn_id", connection.ID()))
}
