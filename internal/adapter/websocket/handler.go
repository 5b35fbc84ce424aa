// Package websocket accepts realtime client connections, drives them through
// the session lifecycle, and serializes outbound notifications per client.
package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/roadwatch/backend/internal/metrics"
	"github.com/roadwatch/backend/internal/session"
)

const (
	maxMessageSize = 4 * 1024
	pongTimeout    = 60 * time.Second
)

// Handler upgrades HTTP requests to WebSocket connections and runs their
// read loop.
type Handler struct {
	upgrader websocket.Upgrader
	sessions *session.Manager
	limits   *ConnectionLimits
	logger   *slog.Logger
}

// NewHandler creates the WebSocket endpoint handler.
func NewHandler(sessions *session.Manager, limits *ConnectionLimits, checkOrigin func(*http.Request) bool, logger *slog.Logger) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		sessions: sessions,
		limits:   limits,
		logger:   logger,
	}
}

// inboundFrame is the wire shape of client-to-server messages.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type authenticatePayload struct {
	Identity string `json:"identity"`
}

type reconnectPayload struct {
	Attempt int `json:"attempt"`
}

// Handle is the echo handler for the WebSocket endpoint.
func (h *Handler) Handle(c echo.Context) error {
	ip := c.RealIP()

	ok, reason := h.limits.Acquire(ip)
	if !ok {
		metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		h.logger.Warn("WebSocket connection rejected",
			"ip", ip,
			"reason", reason,
		)
		return c.NoContent(http.StatusTooManyRequests)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.limits.Release(ip)
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn("WebSocket upgrade failed", "ip", ip, "error", err)
		return nil
	}

	metrics.ActiveConnections.Inc()
	writer := newClientWriter(conn)
	sess := h.sessions.Open(writer)

	h.logger.Debug("WebSocket connection accepted", "ip", ip)

	defer func() {
		sess.Disconnect()
		writer.Close()
		h.limits.Release(ip)
		metrics.ActiveConnections.Dec()
		h.logger.Debug("WebSocket connection closed",
			"ip", ip,
			"identity", sess.Identity(),
		)
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", "ip", ip, "error", err)
			}
			return nil
		}

		var frame inboundFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			h.logger.Debug("WebSocket frame not parseable", "ip", ip, "error", err)
			continue
		}

		h.dispatch(sess, frame)
	}
}

// dispatch routes one inbound frame. Unknown events are ignored so newer
// clients do not break older servers.
func (h *Handler) dispatch(sess *session.Session, frame inboundFrame) {
	switch frame.Event {
	case "authenticate":
		var p authenticatePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			h.logger.Debug("Malformed authenticate payload", "error", err)
			return
		}
		sess.Authenticate(p.Identity)

	case "reconnect":
		var p reconnectPayload
		if err := json.Unmarshal(frame.Data, &p); err == nil && p.Attempt > 0 {
			h.logger.Debug("Client reconnect", "attempt", p.Attempt)
		}
		sess.Reconnect()

	default:
		h.logger.Debug("Ignoring unknown client event", "event", frame.Event)
	}
}
