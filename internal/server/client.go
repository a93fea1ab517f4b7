// Package server manages individual WebSocket clients, handling read/write
// pumps and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents one WebSocket connection in the chat system. It owns
// the connection's read/write pumps and the buffered send channel that
// event delivery goes through. Inbound events are handed to the attached
// Session.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	sess           *Session
	log            *slog.Logger
	addr           string
	maxMessageSize int64

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new Client for the given WebSocket connection. The
// session is attached afterwards with SetSession, before the client is
// registered with the hub.
func NewClient(conn *websocket.Conn, hub *Hub, id, addr string, logger *slog.Logger) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		log:            logger,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// ID returns the connection identity assigned at upgrade time.
func (c *Client) ID() string {
	return c.id
}

// SetSession attaches the per-connection session. Must be called before
// the client is registered.
func (c *Client) SetSession(sess *Session) {
	c.sess = sess
}

// Queue marshals an event and queues it on this connection. It implements
// the send callback handed to the Session.
func (c *Client) Queue(evt Outbound) {
	payload, err := json.Marshal(evt)
	if err != nil {
		c.log.Error("client.marshal", "conn", c.id, "event", evt.Type, "err", err)
		return
	}
	if !c.enqueue(payload) {
		c.log.Debug("client.drop", "conn", c.id, "event", evt.Type)
	}
}

// enqueue places a payload on the send channel without blocking. It
// returns false when the client is closed or the buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// markClosed stops further enqueues. The hub calls this before closing
// the send channel so no goroutine can send on a closed channel.
func (c *Client) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.log.Error("client.read_deadline", "conn", c.id, "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.log.Error("client.pong_deadline", "conn", c.id, "err", err)
		}
		return nil
	})
}

// handleReadError logs the error appropriately and returns true if the
// read loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn("client.read_limit", "conn", c.id, "limit", c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Info("client.disconnect", "conn", c.id, "err", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Info("client.closed", "conn", c.id, "err", err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.log.Warn("client.unexpected_close", "conn", c.id, "err", err)
		return true
	}

	c.log.Warn("client.read_error", "conn", c.id, "err", err)
	return true
}

// processFrame decodes a raw frame into an event envelope and hands it to
// the session. Malformed frames are dropped.
func (c *Client) processFrame(raw []byte) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		c.log.Debug("client.bad_frame", "conn", c.id, "err", err)
		return
	}
	c.sess.Handle(in)
}

func (c *Client) readPump() {
	defer func() {
		c.sess.Close()
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Error("client.close", "conn", c.id, "err", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when
// the pump should stop.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case payload, ok := <-c.send:
		return c.handleWrite(payload, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection closes the WebSocket connection, logging only
// unexpected errors.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Error("client.close", "conn", c.id, "err", err)
		}
	}
}

// handleWrite writes one outbound frame, or the close message when the
// send channel has been closed. One event per frame keeps each frame a
// single JSON document for the client.
func (c *Client) handleWrite(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.log.Error("client.write_deadline", "conn", c.id, "err", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("client.write", "conn", c.id, "err", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame to the client.
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("client.write_close", "conn", c.id, "err", err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.log.Error("client.ping_deadline", "conn", c.id, "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug("client.ping", "conn", c.id, "err", err)
		return false
	}
	return true
}
