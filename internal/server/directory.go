// Package server implements the Directory, the authoritative room and
// presence manager for the chat relay.
package server

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Sender delivers outbound events to connections. Delivery is best-effort:
// implementations must never block on a slow recipient.
type Sender interface {
	// Send queues an event for a single connection.
	Send(connID string, evt Outbound)
	// SendAll queues an event for every open connection.
	SendAll(evt Outbound)
}

// Directory tracks which connection belongs to which room, enforces
// per-room username uniqueness, and routes message and presence events
// to the correct member set. All membership state is guarded by a single
// mutex; event delivery happens outside of it.
type Directory struct {
	log    *slog.Logger
	sender Sender
	now    func() time.Time

	mu          sync.Mutex
	rooms       map[string]map[string]string // room name -> connID -> username
	memberRooms map[string]string            // connID -> room name
}

// NewDirectory creates an empty Directory that delivers events through sender.
func NewDirectory(logger *slog.Logger, sender Sender) *Directory {
	return &Directory{
		log:         logger,
		sender:      sender,
		now:         time.Now,
		rooms:       make(map[string]map[string]string),
		memberRooms: make(map[string]string),
	}
}

// ListActiveRooms returns the names of all rooms that currently have at
// least one member, sorted for stable output.
func (d *Directory) ListActiveRooms() []string {
	d.mu.Lock()
	names := make([]string, 0, len(d.rooms))
	for name := range d.rooms {
		names = append(names, name)
	}
	d.mu.Unlock()

	sort.Strings(names)
	return names
}

// Join admits the (connID, username) pair into room, creating the room if
// it does not exist yet. It returns ErrUsernameTaken when the display name
// is already in use within the room; the check is atomic with respect to
// concurrent joins. On success every other room member receives a
// userJoined notice, and if the room was created all connections receive
// the updated room list.
func (d *Directory) Join(room, username, connID string) error {
	d.mu.Lock()

	members, exists := d.rooms[room]
	if exists {
		for _, name := range members {
			if name == username {
				d.mu.Unlock()
				return ErrUsernameTaken
			}
		}
	} else {
		members = make(map[string]string)
		d.rooms[room] = members
	}

	members[connID] = username
	d.memberRooms[connID] = room

	var roomList []string
	if !exists {
		roomList = d.activeRoomsLocked()
	}
	peers := d.peersLocked(room, connID)
	d.mu.Unlock()

	if !exists {
		activeRooms.Inc()
		d.sender.SendAll(Outbound{Type: EventRoomListUpdate, Data: roomList})
	}

	notice := username + " has joined the room."
	for _, peer := range peers {
		d.sender.Send(peer, Outbound{Type: EventUserJoined, Data: notice})
	}
	presenceEvents.WithLabelValues("joined").Add(float64(len(peers)))

	d.log.Info("room.join", "room", room, "username", username, "conn", connID)
	return nil
}

// Leave removes whatever membership connID holds. It is idempotent: an
// identity that is not in any room is a no-op. When the member was the
// last one, the room is retired and the updated room list is broadcast;
// otherwise remaining members receive a userLeft notice.
func (d *Directory) Leave(connID string) {
	d.mu.Lock()

	room, ok := d.memberRooms[connID]
	if !ok {
		d.mu.Unlock()
		return
	}

	username := d.rooms[room][connID]
	delete(d.rooms[room], connID)
	delete(d.memberRooms, connID)

	emptied := len(d.rooms[room]) == 0
	var roomList []string
	var peers []string
	if emptied {
		delete(d.rooms, room)
		roomList = d.activeRoomsLocked()
	} else {
		peers = d.peersLocked(room, connID)
	}
	d.mu.Unlock()

	if emptied {
		activeRooms.Dec()
		d.sender.SendAll(Outbound{Type: EventRoomListUpdate, Data: roomList})
	}

	notice := username + " has left the room."
	for _, peer := range peers {
		d.sender.Send(peer, Outbound{Type: EventUserLeft, Data: notice})
	}
	presenceEvents.WithLabelValues("left").Add(float64(len(peers)))

	d.log.Info("room.leave", "room", room, "username", username, "conn", connID, "emptied", emptied)
}

// BroadcastMessage stamps text with a server-side timestamp and fans it
// out to every member of room, sender included. A room that no longer
// exists (racing with a leave that emptied it) is a silent no-op.
func (d *Directory) BroadcastMessage(room, username, text string) {
	d.mu.Lock()
	members, ok := d.rooms[room]
	if !ok {
		d.mu.Unlock()
		return
	}
	targets := make([]string, 0, len(members))
	for connID := range members {
		targets = append(targets, connID)
	}
	d.mu.Unlock()

	msg := ChatMessage{
		Username:  username,
		Message:   text,
		Timestamp: d.now().Format("3:04:05 PM"),
	}
	for _, target := range targets {
		d.sender.Send(target, Outbound{Type: EventReceiveMessage, Data: msg})
	}
	messagesRelayed.Inc()
}

// RelayTyping forwards a typing notice to every member of room other
// than the typist. An unknown room is a silent no-op.
func (d *Directory) RelayTyping(room, username, connID string) {
	d.mu.Lock()
	if _, ok := d.rooms[room]; !ok {
		d.mu.Unlock()
		return
	}
	peers := d.peersLocked(room, connID)
	d.mu.Unlock()

	notice := username + " is typing..."
	for _, peer := range peers {
		d.sender.Send(peer, Outbound{Type: EventUserTyping, Data: notice})
	}
}

// activeRoomsLocked snapshots the active room names. Callers hold d.mu.
func (d *Directory) activeRoomsLocked() []string {
	names := make([]string, 0, len(d.rooms))
	for name := range d.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// peersLocked snapshots the member connections of room excluding self.
// Callers hold d.mu.
func (d *Directory) peersLocked(room, self string) []string {
	peers := make([]string, 0, len(d.rooms[room]))
	for connID := range d.rooms[room] {
		if connID != self {
			peers = append(peers, connID)
		}
	}
	return peers
}
