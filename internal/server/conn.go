package server

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rbright/voicebridge/internal/metrics"
	"github.com/rbright/voicebridge/internal/protocol"
	"github.com/rbright/voicebridge/internal/session"
)

// conn is one WebSocket client. It is the session's Sender.
type conn struct {
	id           string
	remote       string
	connectedAt  time.Time
	ws           *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger
	session      *session.Session

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, remote string, writeTimeout time.Duration, logger *slog.Logger) *conn {
	id := uuid.NewString()
	return &conn{
		id:           id,
		remote:       remote,
		connectedAt:  time.Now(),
		ws:           ws,
		writeTimeout: writeTimeout,
		logger:       logger.With("conn_id", id, "remote", remote),
	}
}

// Send writes one event as a text frame. Writes are serialized.
func (c *conn) Send(event protocol.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	if err := c.ws.WriteJSON(event); err != nil {
		return err
	}
	c.logger.Debug("event sent", "event", event.String())
	return nil
}

// readLoop feeds inbound actions to the session until the client goes away.
// Malformed frames are dropped and the connection stays open.
func (c *conn) readLoop(m *metrics.Metrics) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Warn("connection read failed", "error", err)
			} else {
				c.logger.Debug("connection closed", "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("non-text frame dropped", "type", messageType, "bytes", len(data))
			if m != nil {
				m.MalformedMessages.Inc()
			}
			continue
		}

		action, err := protocol.DecodeAction(data)
		if err != nil {
			reason := "malformed"
			if errors.Is(err, protocol.ErrUnknownAction) {
				reason = "unknown_action"
			}
			c.logger.Warn("inbound message dropped", "reason", reason, "error", err, "bytes", len(data))
			if m != nil {
				m.MalformedMessages.Inc()
			}
			continue
		}

		if m != nil {
			m.Actions.WithLabelValues(string(action)).Inc()
		}
		c.logger.Debug("action received", "action", action)
		c.session.Handle(action)
	}
}

// closeTransport sends a close frame best-effort and closes the socket once.
func (c *conn) closeTransport(code int, text string) {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		deadline := time.Now().Add(c.writeTimeout)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}
