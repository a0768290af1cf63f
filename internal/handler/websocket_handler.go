// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/alexconrey/webmux/internal/connection"
	"github.com/alexconrey/webmux/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	wsSendTimeout  = 10 * time.Second
	maxMessageSize = 64 * 1024

	// close frame payload is limited to 125 bytes, two of which hold the code
	maxCloseReason = 123
)

// WebSocketHandler bridges serial connections and lifecycle events to WebSocket clients
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	lookup      ConnectionLookup
	eventBus    *EventBus
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	lookup ConnectionLookup,
	eventBus *EventBus,
	allowedOrigins []string,
	logger *zap.Logger,
) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		lookup:      lookup,
		eventBus:    eventBus,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// checkOrigin accepts requests without an Origin header and any origin when
// the list is empty or contains "*".
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(api *gin.RouterGroup, ws *gin.RouterGroup) {
	api.GET("/connections/:name/ws", h.HandleSerialConnection)
	api.GET("/ws/clients", h.ListClients)
	ws.GET("/events", h.HandleEventConnection)
}

// HandleSerialConnection streams a serial connection over a WebSocket
// @Summary Serial terminal stream
// @Description Upgrades to a WebSocket. Bytes read from the port arrive as binary frames; text and binary frames from the client are written to the port.
// @Tags Connections
// @Param name path string true "Connection name"
// @Success 101 "Switching Protocols"
// @Failure 404 {object} utils.APIResponse "Connection not found"
// @Failure 503 {object} utils.APIResponse "Connection unavailable"
// @Router /api/connections/{name}/ws [get]
func (h *WebSocketHandler) HandleSerialConnection(c *gin.Context) {
	name := c.Param("name")

	conn, err := h.lookup.Get(name)
	if err != nil {
		respondError(c, "Connection not available", err)
		return
	}

	// subscribe before the upgrade so failures still get an HTTP status
	sub, err := conn.Subscribe()
	if err != nil {
		respondError(c, "Connection not available", err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  ws,
		Type:        ClientTypeSerial,
		SerialName:  &name,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Serial WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("connection", name),
		zap.String("remote_addr", client.RemoteAddr),
	)

	done := make(chan struct{})
	go h.serialReadPump(client, conn, sub, done)
	go h.serialWritePump(client, sub, done)
}

// serialReadPump writes every inbound frame to the port
func (h *WebSocketHandler) serialReadPump(client *Client, conn *connection.Connection, sub *connection.Subscription, done chan struct{}) {
	defer func() {
		close(done)
		sub.Close()
	}()

	ws := client.Connection
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), wsSendTimeout)
		err = conn.Send(ctx, data)
		cancel()

		// a faulted connection ends the subscription, and the write pump
		// closes the socket with the reason
		if err != nil {
			h.logger.Warn("Failed to forward WebSocket frame",
				zap.String("client_id", client.ID),
				zap.String("connection", conn.Name()),
				zap.Error(err),
			)
		}
	}
}

// serialWritePump forwards port bytes as binary frames and owns the socket
func (h *WebSocketHandler) serialWritePump(client *Client, sub *connection.Subscription, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	ws := client.Connection
	defer func() {
		ticker.Stop()
		ws.Close()
		h.connections.Unregister(client)
		h.logger.Info("Serial WebSocket client disconnected",
			zap.String("client_id", client.ID),
			zap.Uint64("dropped_chunks", sub.Dropped()),
		)
	}()

	for {
		select {
		case chunk, ok := <-sub.C():
			if !ok {
				h.writeClose(ws, sub.Err())
				return
			}

			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				h.logger.Warn("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// HandleEventConnection streams connection lifecycle events as JSON
// @Summary Lifecycle event stream
// @Description Upgrades to a WebSocket that receives a state_changed message for every connection state transition
// @Tags Events
// @Success 101 "Switching Protocols"
// @Router /ws/events [get]
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	events := h.eventBus.Subscribe(EventStateChanged)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.eventBus.Unsubscribe(EventStateChanged, events)
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  ws,
		Send:        make(chan []byte, 256),
		Type:        ClientTypeEvents,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
	)

	done := make(chan struct{})
	go h.eventReadPump(client, done)
	go h.eventWritePump(client, events, done)
}

// eventReadPump answers ping messages and detects disconnects
func (h *WebSocketHandler) eventReadPump(client *Client, done chan struct{}) {
	defer close(done)

	ws := client.Connection
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendMessage(client, &WebSocketMessage{
				Type:      "error",
				Data:      map[string]interface{}{"error": "invalid message"},
				Timestamp: time.Now(),
			})
			continue
		}

		if message.Type == "ping" {
			h.sendMessage(client, &WebSocketMessage{
				Type:      "pong",
				Timestamp: time.Now(),
				RequestID: message.RequestID,
			})
		}
	}
}

// eventWritePump writes bus events and replies to the client
func (h *WebSocketHandler) eventWritePump(client *Client, events <-chan Event, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	ws := client.Connection
	defer func() {
		ticker.Stop()
		h.eventBus.Unsubscribe(EventStateChanged, events)
		ws.Close()
		h.connections.Unregister(client)
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				h.writeClose(ws, nil)
				return
			}

			messageBytes, err := json.Marshal(&WebSocketMessage{
				Type:      event.Type,
				Data:      event.Data,
				Timestamp: event.Timestamp,
			})
			if err != nil {
				h.logger.Error("Failed to marshal event message", zap.Error(err))
				continue
			}
			if err := h.writeText(ws, messageBytes); err != nil {
				return
			}

		case message := <-client.Send:
			if err := h.writeText(ws, message); err != nil {
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func (h *WebSocketHandler) writeText(ws *websocket.Conn, message []byte) error {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
		h.logger.Warn("WebSocket write error", zap.Error(err))
		return err
	}
	return nil
}

// writeClose sends a close frame: normal closure when the stream ended
// gracefully, internal error carrying the fault otherwise.
func (h *WebSocketHandler) writeClose(ws *websocket.Conn, cause error) {
	code, reason := websocket.CloseNormalClosure, "connection closed"
	if cause != nil {
		code, reason = websocket.CloseInternalServerErr, closeReason(cause.Error())
	}

	msg := websocket.FormatCloseMessage(code, reason)
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("Failed to write close frame", zap.Error(err))
	}
}

func closeReason(s string) string {
	if len(s) <= maxCloseReason {
		return s
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// sendMessage queues a message for an events client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}

// ListClients reports live WebSocket clients
// @Summary List WebSocket clients
// @Description All clients by default; filter to one serial connection or to event subscribers
// @Tags Events
// @Produce json
// @Param connection query string false "Serial connection name"
// @Param type query string false "Client type" Enums(serial, events)
// @Success 200 {object} utils.APIResponse{data=ConnectionStats} "Clients retrieved"
// @Router /api/ws/clients [get]
func (h *WebSocketHandler) ListClients(c *gin.Context) {
	var clients []*Client
	switch {
	case c.Query("connection") != "":
		clients = h.connections.GetSerialClients(c.Query("connection"))
	case c.Query("type") == ClientTypeEvents:
		clients = h.connections.GetEventClients()
	default:
		utils.SuccessResponse(c, http.StatusOK, "Clients retrieved successfully", h.GetConnectionStats())
		return
	}

	stats := &ConnectionStats{
		TotalConnections: len(clients),
		ByType:           make(map[string]int),
		Clients:          make([]*Client, 0, len(clients)),
	}
	for _, client := range clients {
		stats.ByType[client.Type]++
		stats.Clients = append(stats.Clients, client)
	}
	utils.SuccessResponse(c, http.StatusOK, "Clients retrieved successfully", stats)
}
