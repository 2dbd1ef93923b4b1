// Package transport carries the real-time event surface over websockets.
// Each connection gets a Client with a buffered send channel and separate
// read/write pumps; the Client doubles as the connection's EventSink.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-core/dispatch"
	"chat-core/domain/event"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// outboundFrame mirrors the inbound envelope: event name plus payload.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Client struct {
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, dispatcher *dispatch.Dispatcher,
	bufferSize int, log *slog.Logger) *Client {
	return &Client{
		conn:       conn,
		send:       make(chan []byte, bufferSize),
		done:       make(chan struct{}),
		dispatcher: dispatcher,
		log:        log,
	}
}

// Consume implements contract.EventSink. Delivery is non-blocking: when the
// send buffer is full the event is dropped and the error tells the publisher
// this connection could not keep up. The send channel is never closed, so a
// publisher racing a disconnect gets an error, never a panic.
func (c *Client) Consume(_ context.Context, e event.Event) error {
	data, err := json.Marshal(outboundFrame{Event: e.EventName(), Data: e})
	if err != nil {
		return fmt.Errorf("marshal outbound %s: %w", e.EventName(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed, dropping %s", e.EventName())
	}
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full for %s", e.EventName())
	}
}

// Close tears the connection down: further Consume calls fail, the write
// pump drains out, and the websocket is closed. Safe to call more than once
// and from any goroutine, including a reaper-driven teardown.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	return c.conn.Close()
}

// Run starts both pumps and blocks until the connection dies, then runs
// the dispatcher's disconnect path.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.dispatcher.Disconnect(ctx, c)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Websocket read failed", "error", err)
			}
			return
		}
		c.dispatcher.HandleFrame(ctx, c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
