package handlers

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/sejin/moim-api/internal/middleware"
)

// Event types sent over WebSocket
const (
	EventMemberJoined  = "member_joined"
	EventMemberLeft    = "member_left"
	EventStatusChanged = "status_changed"
)

// WSEvent is the JSON message sent to connected clients
type WSEvent struct {
	Type       string      `json:"type"`
	ActivityID string      `json:"activityId"`
	UserID     string      `json:"userId"`
	Data       interface{} `json:"data,omitempty"`
}

// connection wraps a websocket connection with its user ID
type connection struct {
	conn   *websocket.Conn
	userID uuid.UUID
}

// Hub manages WebSocket connections per activity
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*connection]bool // activityID -> set of connections
}

// Global hub instance
var WS = &Hub{
	rooms: make(map[uuid.UUID]map[*connection]bool),
}

// register adds a connection to an activity room
func (h *Hub) register(activityID uuid.UUID, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[activityID] == nil {
		h.rooms[activityID] = make(map[*connection]bool)
	}
	h.rooms[activityID][conn] = true
	slog.Debug("ws register", "user", conn.userID, "activity", activityID, "total", len(h.rooms[activityID]))
}

// unregister removes a connection from an activity room
func (h *Hub) unregister(activityID uuid.UUID, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[activityID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, activityID)
		}
	}
}

// Broadcast sends an event to all connections in an activity room, excluding the sender
func (h *Hub) Broadcast(activityID uuid.UUID, excludeUserID uuid.UUID, event WSEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.rooms[activityID]
	if !ok {
		return
	}

	msg, err := json.Marshal(event)
	if err != nil {
		slog.Error("ws broadcast marshal", "error", err)
		return
	}

	for c := range conns {
		// Don't send to the user who triggered the event
		if c.userID == excludeUserID {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Warn("ws write", "error", err)
		}
	}
}

// WebSocketUpgrade is the middleware that checks the upgrade request and validates JWT
func WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// Authenticate via query param: ?token=<jwt>
		tokenString := c.Query("token")
		if tokenString == "" {
			// Also check Authorization header for non-browser clients
			authHeader := c.Get("Authorization")
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				tokenString = ""
			}
		}

		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authentication token",
			})
		}

		claims, err := middleware.ParseToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("userId", claims.UserID)
		return c.Next()
	}
}

// HandleWebSocket handles a WebSocket connection for a specific activity
func HandleWebSocket(c *websocket.Conn) {
	activityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		c.Close()
		return
	}

	userID, ok := c.Locals("userId").(uuid.UUID)
	if !ok {
		c.Close()
		return
	}

	conn := &connection{conn: c, userID: userID}
	WS.register(activityID, conn)
	defer WS.unregister(activityID, conn)

	// Keep connection alive — read messages (client sends pings/keepalives)
	for {
		_, _, err := c.ReadMessage()
		if err != nil {
			break
		}
	}
}
