package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const (
	sendBuffer     = 64
	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 10
)

// Dispatcher is the part of the registry the socket handler drives.
type Dispatcher interface {
	Handle(ctx context.Context, conn app.Conn, cmd app.Command)
	Disconnect(conn app.Conn)
}

type WSHandler struct {
	games    Dispatcher
	upgrader websocket.Upgrader
}

func NewWSHandler(games Dispatcher) *WSHandler {
	return &WSHandler{
		games: games,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// wsConn queues events for a single writer goroutine. Send never blocks and
// drops the event when the queue is full.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan app.Event

	mu     sync.Mutex
	closed bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan app.Event, sendBuffer),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(ev app.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsConn) writePump(done chan<- struct{}) {
	defer close(done)
	for ev := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteJSON(ev); err != nil {
			log.Printf("ws write error on conn %s: %v", c.id, err)
			// unblock the read loop; it will tear the connection down
			_ = c.ws.Close()
			for range c.send {
			}
			return
		}
	}
}

// ServeWS upgrades the request and feeds every frame to the registry until
// the client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxMessageSize)

	conn := newWSConn(ws)
	writerDone := make(chan struct{})
	go conn.writePump(writerDone)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		var inbound inboundMessage
		if err := json.Unmarshal(data, &inbound); err != nil || inbound.Type == "" {
			conn.Send(errorEvent(domain.Errorf(domain.CodeInvalidMessage, "malformed frame")))
			continue
		}
		cmd, err := app.ParseCommand(inbound.Type, inbound.Payload)
		if err != nil {
			conn.Send(errorEvent(err))
			continue
		}
		h.games.Handle(r.Context(), conn, cmd)
	}

	h.games.Disconnect(conn)
	conn.close()
	<-writerDone
}

func errorEvent(err error) app.Event {
	code, message := domain.CodeInvalidMessage, err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		code, message = de.Code, de.Message
	}
	return app.Event{Type: app.EventError, Payload: app.ErrorPayload{Code: code, Message: message}}
}
