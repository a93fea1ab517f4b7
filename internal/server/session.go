// Package server implements the per-connection Session state machine that
// bridges transport events to Directory operations.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// SessionState tracks where a connection is in its lifecycle.
type SessionState int

const (
	// StateUnjoined is the initial state: connected but not in a room.
	StateUnjoined SessionState = iota
	// StateJoined means the connection is a member of exactly one room.
	StateJoined
	// StateClosed is terminal; no further events are processed.
	StateClosed
)

// Session handles the events of a single connection: it validates join
// requests, forwards messages and typing signals while joined, and runs
// leave cleanup exactly once when the connection goes away. A connection
// that wants to switch rooms must disconnect and reconnect.
type Session struct {
	id   string
	dir  *Directory
	send func(Outbound)
	log  *slog.Logger

	mu       sync.Mutex
	state    SessionState
	room     string
	username string
}

// NewSession binds a connection identity to the directory. send queues an
// event on this session's own connection.
func NewSession(id string, dir *Directory, send func(Outbound), logger *slog.Logger) *Session {
	return &Session{id: id, dir: dir, send: send, log: logger}
}

// Handle dispatches one inbound event. Unknown event types are logged and
// dropped; a bad payload never affects other connections.
func (s *Session) Handle(in Inbound) {
	switch in.Type {
	case EventGetRooms:
		s.sendRoomList()
	case EventJoinRoom:
		var req JoinRequest
		if err := json.Unmarshal(in.Data, &req); err != nil {
			s.log.Debug("session.bad_payload", "conn", s.id, "event", in.Type, "err", err)
			return
		}
		s.handleJoin(req)
	case EventSendMessage:
		var req SendRequest
		if err := json.Unmarshal(in.Data, &req); err != nil {
			s.log.Debug("session.bad_payload", "conn", s.id, "event", in.Type, "err", err)
			return
		}
		s.handleMessage(req)
	case EventTyping:
		s.handleTyping()
	default:
		s.log.Debug("session.unknown_event", "conn", s.id, "event", in.Type)
	}
}

// SendRoomList pushes the current active room list to this connection.
// Called once on connect and again for every getRooms request.
func (s *Session) SendRoomList() {
	s.sendRoomList()
}

func (s *Session) sendRoomList() {
	s.send(Outbound{Type: EventRoomListUpdate, Data: s.dir.ListActiveRooms()})
}

// handleJoin validates the request locally, then asks the directory to
// admit the member. The outcome is reported through a joinResult event.
func (s *Session) handleJoin(req JoinRequest) {
	room := strings.TrimSpace(req.Room)
	username := strings.TrimSpace(req.Username)

	if err := validateJoin(room, username); err != nil {
		s.send(Outbound{Type: EventJoinResult, Data: JoinResult{Error: err.Error()}})
		return
	}

	s.mu.Lock()
	if s.state != StateUnjoined {
		s.mu.Unlock()
		s.send(Outbound{Type: EventJoinResult, Data: JoinResult{Error: "already joined a room"}})
		return
	}
	s.mu.Unlock()

	if err := s.dir.Join(room, username, s.id); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			s.send(Outbound{Type: EventJoinResult, Data: JoinResult{Error: err.Error()}})
			return
		}
		s.log.Error("session.join", "conn", s.id, "err", err)
		s.send(Outbound{Type: EventJoinResult, Data: JoinResult{Error: "join failed"}})
		return
	}

	s.mu.Lock()
	s.state = StateJoined
	s.room = room
	s.username = username
	s.mu.Unlock()

	s.send(Outbound{Type: EventJoinResult, Data: JoinResult{Success: true}})
}

// handleMessage forwards non-empty message text to the member's room.
// Empty submissions are dropped, not errors. The room and display name
// recorded at join time are authoritative; the payload's copies are
// ignored so a client cannot speak into a room it never joined.
func (s *Session) handleMessage(req SendRequest) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return
	}

	s.mu.Lock()
	joined := s.state == StateJoined
	room, username := s.room, s.username
	s.mu.Unlock()
	if !joined {
		return
	}

	s.dir.BroadcastMessage(room, username, text)
}

func (s *Session) handleTyping() {
	s.mu.Lock()
	joined := s.state == StateJoined
	room, username := s.room, s.username
	s.mu.Unlock()
	if !joined {
		return
	}

	s.dir.RelayTyping(room, username, s.id)
}

// Close transitions the session to its terminal state and, if the
// connection had joined a room, removes the membership. Safe to call more
// than once; cleanup runs exactly once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasJoined := s.state == StateJoined
	s.state = StateClosed
	s.mu.Unlock()

	if wasJoined {
		s.dir.Leave(s.id)
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func validateJoin(room, username string) error {
	if room == "" {
		return &ValidationError{Field: "room"}
	}
	if username == "" {
		return &ValidationError{Field: "username"}
	}
	return nil
}
