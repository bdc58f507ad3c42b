package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/events"
	"github.com/chioma/settlement/internal/middleware"
)

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub pushes settlement events to the connected parties they concern.
type WSHub struct {
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[string][]*wsClient
}

func NewWSHub(subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		subscriber:  subscriber,
		log:         log,
		connections: make(map[string][]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return events.SubscribeAll(ctx, h.subscriber, func(stream string, event events.Event) {
		h.dispatch(stream, event)
	})
}

type wsMessage struct {
	Stream string       `json:"stream"`
	Event  events.Event `json:"event"`
}

func (h *WSHub) dispatch(stream string, event events.Event) {
	data, err := json.Marshal(wsMessage{Stream: stream, Event: event})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for addr, clients := range h.connections {
		if !event.Concerns(addr) {
			continue
		}
		for _, client := range clients {
			if err := client.send(data); err != nil {
				h.log.Debug("ws write failed", zap.String("address", addr), zap.Error(err))
			}
		}
	}
}

// Connected is the number of open connections for addr.
func (h *WSHub) Connected(addr string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[addr])
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// HandleWS serves one connection. AuthMiddleware has already put the
// caller address in the locals.
func (h *WSHub) HandleWS(conn *websocket.Conn) {
	addr, _ := conn.Locals(middleware.CtxCaller).(string)
	if addr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthenticated"}`))
		conn.Close()
		return
	}

	client := &wsClient{conn: conn}
	h.mu.Lock()
	h.connections[addr] = append(h.connections[addr], client)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		clients := h.connections[addr]
		for i, c := range clients {
			if c == client {
				h.connections[addr] = append(clients[:i], clients[i+1:]...)
				break
			}
		}
		if len(h.connections[addr]) == 0 {
			delete(h.connections, addr)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}
