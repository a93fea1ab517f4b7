package integration

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sanjh26/hey-chat/internal/server"
	"github.com/sanjh26/hey-chat/test/testhelpers"
)

// TestHubShutdownClosesClients tests that hub shutdown closes open client
// connections and completes within its timeout.
func TestHubShutdownClosesClients(t *testing.T) {
	logger := testhelpers.NewTestLogger()
	hub := server.NewHub(logger)
	go hub.Run()

	dir := server.NewDirectory(logger, hub)
	mux := server.SetupRoutes(hub, dir, logger)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	conn, err := testhelpers.ConnectWebSocket(testhelpers.WebSocketURL(ts))
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer func() { _ = conn.Close() }()

	testhelpers.JoinRoom(t, conn, "lobby", "alice")

	if err := hub.Shutdown(5 * time.Second); err != nil {
		t.Errorf("Hub shutdown returned error: %v", err)
	}

	// The client's connection should be closed by the shutdown.
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// TestHTTPServerGracefulShutdown tests the ShutdownServer helper against
// a live listener.
func TestHTTPServerGracefulShutdown(t *testing.T) {
	logger := testhelpers.NewTestLogger()
	hub := server.NewHub(logger)
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	dir := server.NewDirectory(logger, hub)
	mux := server.SetupRoutes(hub, dir, logger)

	httpServer := server.CreateServer("127.0.0.1:0", mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, logger)
	}()

	// Give the listener a moment to come up, then shut it down.
	time.Sleep(100 * time.Millisecond)
	if err := server.ShutdownServer(httpServer, 5*time.Second, logger); err != nil {
		t.Errorf("ShutdownServer returned error: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("StartServer returned nil, expected http.ErrServerClosed")
		}
	case <-time.After(2 * time.Second):
		t.Error("StartServer did not return after shutdown")
	}
}

// TestShutdownWithActiveRoomState tests that shutdown completes cleanly
// even while rooms still hold members.
func TestShutdownWithActiveRoomState(t *testing.T) {
	logger := testhelpers.NewTestLogger()
	hub := server.NewHub(logger)
	go hub.Run()

	dir := server.NewDirectory(logger, hub)
	mux := server.SetupRoutes(hub, dir, logger)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	for i, name := range []string{"alice", "bob", "carol"} {
		conn, err := testhelpers.ConnectWebSocket(testhelpers.WebSocketURL(ts))
		if err != nil {
			t.Fatalf("Failed to connect client %d: %v", i, err)
		}
		defer func() { _ = conn.Close() }()
		testhelpers.JoinRoom(t, conn, "lobby", name)
	}

	if err := hub.Shutdown(5 * time.Second); err != nil {
		t.Errorf("Hub shutdown with active rooms returned error: %v", err)
	}
}
