// Package testhelpers provides common utilities and helper functions for
// testing the hey-chat relay server.
//
// This package contains reusable test utilities that are shared across unit
// and integration tests: spinning up a fully wired relay, dialing WebSocket
// connections, and emitting/awaiting protocol events to reduce duplication
// in test files.
package testhelpers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sanjh26/hey-chat/internal/server"
)

// Event mirrors the server's outbound envelope with the payload left raw
// so each test can decode the part it cares about.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// JoinResult mirrors the joinResult payload.
type JoinResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ChatMessage mirrors the receiveMessage payload.
type ChatMessage struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NewTestLogger returns a quiet logger so test output stays readable.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StartRelay wires a hub, directory, and routes into a running test
// server. The hub and server are shut down when the test finishes.
func StartRelay(t *testing.T) (*httptest.Server, *server.Hub, *server.Directory) {
	t.Helper()

	logger := NewTestLogger()
	hub := server.NewHub(logger)
	go hub.Run()

	dir := server.NewDirectory(logger, hub)
	mux := server.SetupRoutes(hub, dir, logger)
	ts := httptest.NewServer(mux)

	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return ts, hub, dir
}

// WebSocketURL converts a httptest server URL to the ws:// endpoint.
func WebSocketURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect dials the relay's WebSocket endpoint and registers cleanup.
func MustConnect(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, err := ConnectWebSocket(WebSocketURL(ts))
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Emit sends one inbound envelope over the connection.
func Emit(t *testing.T, conn *websocket.Conn, eventType string, data any) {
	t.Helper()

	envelope := map[string]any{"type": eventType}
	if data != nil {
		envelope["data"] = data
	}
	if err := conn.WriteJSON(envelope); err != nil {
		t.Fatalf("Failed to emit %s: %v", eventType, err)
	}
}

// ReadEvent reads the next outbound envelope, failing the test on timeout.
func ReadEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) Event {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var evt Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	return evt
}

// WaitForEvent reads events until one of the wanted type arrives,
// discarding others (room list pushes interleave with most flows).
func WaitForEvent(t *testing.T, conn *websocket.Conn, eventType string, timeout time.Duration) Event {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %s event", eventType)
		}
		evt := ReadEvent(t, conn, remaining)
		if evt.Type == eventType {
			return evt
		}
	}
}

// JoinRoom joins a room and fails the test unless the join succeeds.
func JoinRoom(t *testing.T, conn *websocket.Conn, room, username string) {
	t.Helper()

	result := RequestJoin(t, conn, room, username)
	if !result.Success {
		t.Fatalf("Join %q as %q failed: %s", room, username, result.Error)
	}
}

// RequestJoin joins a room and returns the raw join result.
func RequestJoin(t *testing.T, conn *websocket.Conn, room, username string) JoinResult {
	t.Helper()

	Emit(t, conn, "joinRoom", map[string]string{"username": username, "room": room})
	evt := WaitForEvent(t, conn, "joinResult", 2*time.Second)

	var result JoinResult
	if err := json.Unmarshal(evt.Data, &result); err != nil {
		t.Fatalf("Failed to decode join result: %v", err)
	}
	return result
}

// DecodeStrings decodes a string-slice payload such as roomListUpdate.
func DecodeStrings(t *testing.T, data json.RawMessage) []string {
	t.Helper()

	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to decode string list: %v", err)
	}
	return out
}

// DecodeString decodes a plain string payload such as a presence notice.
func DecodeString(t *testing.T, data json.RawMessage) string {
	t.Helper()

	var out string
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to decode string payload: %v", err)
	}
	return out
}

// DecodeChatMessage decodes a receiveMessage payload.
func DecodeChatMessage(t *testing.T, data json.RawMessage) ChatMessage {
	t.Helper()

	var out ChatMessage
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to decode chat message: %v", err)
	}
	return out
}

// ExpectNoEvent asserts that no event of the given type arrives within
// the window. Other event types are ignored.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, eventType string, window time.Duration) {
	t.Helper()

	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			t.Fatalf("Failed to set read deadline: %v", err)
		}
		var evt Event
		if err := conn.ReadJSON(&evt); err != nil {
			return // timeout: nothing arrived
		}
		if evt.Type == eventType {
			t.Fatalf("Expected no %s event, but received one", eventType)
		}
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot
// be created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}
