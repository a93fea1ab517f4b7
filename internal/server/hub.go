// Package server coordinates client registration, event delivery, and
// connection cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Hub is the registry of open WebSocket connections. It handles client
// registration/unregistration through its run loop and implements the
// Sender interface the Directory fans events out through. Delivery is
// best-effort: a client whose send buffer is full misses the event
// rather than stalling anyone else.
type Hub struct {
	log        *slog.Logger
	clients    map[string]*Client // keyed by connection ID
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance. The returned Hub is
// ready to manage WebSocket connections once Run is started.
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        logger,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Register hands a client to the run loop. It returns immediately when
// the hub is already shutting down.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the run loop. Safe to call during
// shutdown after the run loop has exited.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Send queues an event for a single connection. Unknown IDs and full
// buffers are dropped silently.
func (h *Hub) Send(connID string, evt Outbound) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("hub.marshal", "event", evt.Type, "err", err)
		return
	}

	h.mutex.RLock()
	client := h.clients[connID]
	h.mutex.RUnlock()
	if client == nil {
		return
	}
	if !client.enqueue(payload) {
		h.log.Debug("hub.drop", "conn", connID, "event", evt.Type)
	}
}

// SendAll queues an event for every registered connection.
func (h *Hub) SendAll(evt Outbound) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("hub.marshal", "event", evt.Type, "err", err)
		return
	}

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		if !client.enqueue(payload) {
			h.log.Debug("hub.drop", "conn", client.id, "event", evt.Type)
		}
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine
// as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("hub.register.nil")
				continue
			}

			h.mutex.Lock()
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()
			openConnections.Inc()
			h.log.Info("hub.register", "conn", client.id, "addr", client.addr, "total", clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			_, ok := h.clients[client.id]
			if ok {
				delete(h.clients, client.id)
			}
			clientCount := len(h.clients)
			h.mutex.Unlock()

			if ok {
				// Session cleanup must run before the send channel closes so
				// presence notices for this departure are never queued on it.
				client.sess.Close()
				client.markClosed()
				close(client.send)
				openConnections.Dec()
				h.log.Info("hub.unregister", "conn", client.id, "total", clientCount)
			}
		}
	}
}

// shutdownClients gracefully closes all active client connections.
func (h *Hub) shutdownClients() {
	h.log.Info("hub.shutdown.clients")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.log.Error("hub.shutdown.close", "conn", client.id, "err", err)
				}
			}
		}
		// The run loop has exited, so the unregister path will not close
		// these; do it here so write pumps drain and return.
		client.markClosed()
		close(client.send)
		openConnections.Dec()
	}

	h.log.Info("hub.shutdown.closed", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all
// client goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("hub.shutdown.start")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub.shutdown.complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub.shutdown.timeout")
		return context.DeadlineExceeded
	}
}
