// Package server defines the JSON event envelopes exchanged between the
// chat clients and the relay over a WebSocket connection.
package server

import "encoding/json"

// Inbound event types (client -> server).
const (
	EventGetRooms    = "getRooms"
	EventJoinRoom    = "joinRoom"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
)

// Outbound event types (server -> client).
const (
	EventRoomListUpdate = "roomListUpdate"
	EventJoinResult     = "joinResult"
	EventUserJoined     = "userJoined"
	EventUserLeft       = "userLeft"
	EventReceiveMessage = "receiveMessage"
	EventUserTyping     = "userTyping"
)

// Inbound is the envelope for client-to-server events. Data is decoded
// lazily by the session once the event type is known.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound is the envelope for server-to-client events.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// JoinRequest asks to join a room under a display name.
type JoinRequest struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// JoinResult answers a JoinRequest. Exactly one of Success or Error is set.
type JoinResult struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendRequest carries an outgoing chat message.
type SendRequest struct {
	Room     string `json:"room"`
	Message  string `json:"message"`
	Username string `json:"username"`
}

// TypingRequest signals that a member is composing a message.
type TypingRequest struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// ChatMessage is the receiveMessage payload fanned out to room members.
// Timestamp is a server-stamped clock string.
type ChatMessage struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
