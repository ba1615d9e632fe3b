package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/delimcodec/core/errors"
	"github.com/FocuswithJustin/delimcodec/internal/logging"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// session is one WebSocket connection. Frames are answered in order.
type session struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{} // closed when writePump exits
	bucket *messageRateBucket
}

// messageRateBucket is a token bucket limiting frames per second.
type messageRateBucket struct {
	tokens         float64
	capacity       float64
	refillRate     float64 // tokens per second
	lastRefillTime time.Time
	mu             sync.Mutex
}

func newMessageRateBucket(messagesPerSecond int) *messageRateBucket {
	capacity := float64(messagesPerSecond) * 2.0
	return &messageRateBucket{
		tokens:         capacity,
		capacity:       capacity,
		refillRate:     float64(messagesPerSecond),
		lastRefillTime: time.Now(),
	}
}

func (mb *messageRateBucket) allow() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(mb.lastRefillTime).Seconds()
	mb.tokens = min(mb.capacity, mb.tokens+elapsed*mb.refillRate)
	mb.lastRefillTime = now

	if mb.tokens >= 1.0 {
		mb.tokens--
		return true
	}
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.ErrorContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(s.cfg.MaxMessageSize)

	sess := &session{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	if s.cfg.MaxMessageRate > 0 {
		sess.bucket = newMessageRateBucket(s.cfg.MaxMessageRate)
	}
	logging.WebSocketEvent("session_opened", sess.id, "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"))

	ctx := logging.WithRequestID(context.Background(), sess.id)
	go sess.writePump()
	go sess.readPump(ctx)
}

// readPump decodes frames, serializes them and queues the responses.
func (c *session) readPump(ctx context.Context) {
	defer func() {
		close(c.send)
		logging.WebSocketEvent("session_closed", c.id)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.WebSocketEvent("unexpected_close", c.id, "error", err.Error())
			}
			return
		}
		if c.bucket != nil && !c.bucket.allow() {
			logging.WebSocketEvent("rate_limited", c.id)
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rate limit exceeded"),
				time.Now().Add(writeWait))
			return
		}

		var resp Response
		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			resp.Error = errorBody(errors.NewValidation("frame", err.Error()))
		} else {
			resp = c.server.Unparse(ctx, req)
		}
		data, err := json.Marshal(resp)
		if err != nil {
			logging.ErrorContext(ctx, "failed to marshal response", "error", err)
			continue
		}
		select {
		case c.send <- data:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued responses and keeps the connection alive.
func (c *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
