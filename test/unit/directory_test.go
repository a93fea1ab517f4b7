// Package unit contains unit tests for individual components of the
// hey-chat relay server.
//
// These tests focus on testing specific functions and methods in isolation,
// using fakes where necessary to avoid dependencies on external systems.
package unit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanjh26/hey-chat/internal/server"
	"github.com/sanjh26/hey-chat/test/testhelpers"
)

// recordingSender captures every event the directory fans out, keyed by
// recipient, so tests can assert on exact delivery.
type recordingSender struct {
	mu        sync.Mutex
	perConn   map[string][]server.Outbound
	broadcast []server.Outbound
}

func newRecordingSender() *recordingSender {
	return &recordingSender{perConn: make(map[string][]server.Outbound)}
}

func (r *recordingSender) Send(connID string, evt server.Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perConn[connID] = append(r.perConn[connID], evt)
}

func (r *recordingSender) SendAll(evt server.Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = append(r.broadcast, evt)
}

// eventsFor returns the events delivered to one connection.
func (r *recordingSender) eventsFor(connID string) []server.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]server.Outbound(nil), r.perConn[connID]...)
}

// broadcasts returns all events delivered to every connection.
func (r *recordingSender) broadcasts() []server.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]server.Outbound(nil), r.broadcast...)
}

func newTestDirectory() (*server.Directory, *recordingSender) {
	sender := newRecordingSender()
	return server.NewDirectory(testhelpers.NewTestLogger(), sender), sender
}

// TestJoinCreatesRoom verifies that joining a nonexistent room creates it,
// makes it visible in the active room list, and broadcasts the updated
// list to all connections.
func TestJoinCreatesRoom(t *testing.T) {
	dir, sender := newTestDirectory()

	require.NoError(t, dir.Join("lobby", "alice", "conn-a"))

	assert.Equal(t, []string{"lobby"}, dir.ListActiveRooms())

	broadcasts := sender.broadcasts()
	require.Len(t, broadcasts, 1)
	assert.Equal(t, server.EventRoomListUpdate, broadcasts[0].Type)
	assert.Equal(t, []string{"lobby"}, broadcasts[0].Data)
}

// TestJoinExistingRoomDoesNotRebroadcastList verifies that joining a room
// that already exists leaves the active room list untouched and does not
// trigger another list broadcast.
func TestJoinExistingRoomDoesNotRebroadcastList(t *testing.T) {
	dir, sender := newTestDirectory()

	require.NoError(t, dir.Join("lobby", "alice", "conn-a"))
	require.NoError(t, dir.Join("lobby", "bob", "conn-b"))

	assert.Equal(t, []string{"lobby"}, dir.ListActiveRooms())
	assert.Len(t, sender.broadcasts(), 1)
}

// TestJoinRejectsDuplicateUsername verifies per-room username uniqueness:
// a second join with the same display name fails with ErrUsernameTaken
// and performs no mutation.
func TestJoinRejectsDuplicateUsername(t *testing.T) {
	dir, _ := newTestDirectory()

	require.NoError(t, dir.Join("lobby", "alice", "conn-a"))

	err := dir.Join("lobby", "alice", "conn-b")
	require.ErrorIs(t, err, server.ErrUsernameTaken)

	// The rejected connection must not have been admitted: its leave is
	// a no-op and the room keeps its single member.
	dir.Leave("conn-b")
	assert.Equal(t, []string{"lobby"}, dir.ListActiveRooms())
}

// TestJoinSameUsernameDifferentRooms verifies that display names are only
// unique within a room: the same name may exist in two rooms at once.
func TestJoinSameUsernameDifferentRooms(t *testing.T) {
	dir, _ := newTestDirectory()

	require.NoError(t, dir.Join("alpha", "alice", "conn-a"))
	require.NoError(t, dir.Join("beta", "alice", "conn-b"))

	assert.Equal(t, []string{"alpha", "beta"}, dir.ListActiveRooms())
}

// TestConcurrentJoinsSameUsername verifies the race-free uniqueness check:
// of many concurrent join attempts with the same display name into the
// same room, exactly one succeeds.
func TestConcurrentJoinsSameUsername(t *testing.T) {
	dir, _ := newTestDirectory()

	const attempts = 32
	results := make(chan error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results <- dir.Join("lobby", "alice", fmt.Sprintf("conn-%d", n))
		}(i)
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, server.ErrUsernameTaken)
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent join should win")
}

// TestJoinNotifiesPeersOnly verifies presence symmetry: existing members
// receive exactly one userJoined notice naming the newcomer, and the
// newcomer receives no notice about itself.
func TestJoinNotifiesPeersOnly(t *testing.T) {
	dir, sender := newTestDirectory()

	require.NoError(t, dir.Join("lobby", "bob", "conn-b"))
	require.NoError(t, dir.Join("lobby", "alice", "conn-a"))

	bobEvents := sender.eventsFor("conn-b")
	require.Len(t, bobEvents, 1)
	assert.Equal(t, server.EventUserJoined, bobEvents[0].Type)
	assert.Equal(t, "alice has joined the room.", bobEvents[0].Data)

	assert.Empty(t, sender.eventsFor("conn-a"))
}

// TestLeaveRetiresEmptyRoom verifies that removing the last member deletes
// the room from the directory and rebroadcasts the shrunken room list.
func TestLeaveRetiresEmptyRoom(t *testing.T) {
	dir, sender := newTestDirectory()

	require.NoError(t, dir.Join("lobby", "alice", "conn-a"))
	dir.Leave("conn-a")

	assert.Empty(t, dir.ListActiveRooms())

	broadcasts := sender.broadcasts()
	require.Len(t, broadcasts, 2)
	assert.Equal(t, server.EventRoomListUpdate, broadcasts[1].Type)
	assert.Equal(t, []string{}, broadcasts[1].Data)
}

// TestLeaveNotifiesRemainingMembers verifies that a departure delivers a
// userLeft notice to the members still in the room.
func TestLeaveNotifiesRemainingMembers(t *testing.T) {
	dir, sender := newTestDirectory()

	require.NoError(t, dir.Join("lobby", "alice", "conn-a"))
	require.NoError(t, dir.Join("lobby", "bob", "conn-b"))

	dir.Leave("conn-a")

	assert.Equal(t, []string{"lobby"}, dir.ListActiveRooms())

	bobEvents := sender.eventsFor("conn-b")
	var notices []string
	for _, evt := range bobEvents {
		if evt.Type == server.EventUserLeft {
			notices = append(notices, evt.Data.(string))
		}
	}
	assert.Equal(t, []string{"alice has left the room."}, notices)
}

// TestLeaveIsIdempotent verifies that leaving twice, or leaving for an
// identity that never joined, is a no-op and does not panic.
func TestLeaveIsIdempotent(t *testing.T) {
	dir, sender := newTestDirectory()

	require.NoError(t, dir.Join("lobby", "alice", "conn-a"))
	dir.Leave("conn-a")
	dir.Leave("conn-a")
	dir.Leave("conn-never-joined")

	assert.Empty(t, dir.ListActiveRooms())
	assert.Len(t, sender.broadcasts(), 2, "second leave must not rebroadcast")
}

// TestBroadcastMessageReachesAllMembers verifies that a chat message is
// fanned out to every room member, sender included, with a stamped
// timestamp.
func TestBroadcastMessageReachesAllMembers(t *testing.T) {
	dir, sender := newTestDirectory()

	require.NoError(t, dir.Join("lobby", "alice", "conn-a"))
	require.NoError(t, dir.Join("lobby", "bob", "conn-b"))

	dir.BroadcastMessage("lobby", "alice", "hi")

	for _, connID := range []string{"conn-a", "conn-b"} {
		var msgs []server.ChatMessage
		for _, evt := range sender.eventsFor(connID) {
			if evt.Type == server.EventReceiveMessage {
				msgs = append(msgs, evt.Data.(server.ChatMessage))
			}
		}
		require.Len(t, msgs, 1, "member %s should receive the message", connID)
		assert.Equal(t, "alice", msgs[0].Username)
		assert.Equal(t, "hi", msgs[0].Message)
		assert.NotEmpty(t, msgs[0].Timestamp)
	}
}

// TestBroadcastMessageIsolatedAcrossRooms verifies that a message sent in
// one room is never delivered to a connection that is only a member of
// another room.
func TestBroadcastMessageIsolatedAcrossRooms(t *testing.T) {
	dir, sender := newTestDirectory()

	require.NoError(t, dir.Join("alpha", "alice", "conn-a"))
	require.NoError(t, dir.Join("beta", "bob", "conn-b"))

	dir.BroadcastMessage("alpha", "alice", "secret")

	for _, evt := range sender.eventsFor("conn-b") {
		assert.NotEqual(t, server.EventReceiveMessage, evt.Type,
			"message leaked into another room")
	}
}

// TestBroadcastMessageUnknownRoom verifies that messaging a room that no
// longer exists is a silent no-op.
func TestBroadcastMessageUnknownRoom(t *testing.T) {
	dir, sender := newTestDirectory()

	dir.BroadcastMessage("ghost", "alice", "anyone?")

	assert.Empty(t, sender.broadcasts())
	assert.Empty(t, sender.eventsFor("conn-a"))
}

// TestRelayTypingExcludesTypist verifies that typing notices reach every
// other member of the room but never the typist.
func TestRelayTypingExcludesTypist(t *testing.T) {
	dir, sender := newTestDirectory()

	require.NoError(t, dir.Join("lobby", "alice", "conn-a"))
	require.NoError(t, dir.Join("lobby", "bob", "conn-b"))

	dir.RelayTyping("lobby", "alice", "conn-a")

	var bobNotices []string
	for _, evt := range sender.eventsFor("conn-b") {
		if evt.Type == server.EventUserTyping {
			bobNotices = append(bobNotices, evt.Data.(string))
		}
	}
	assert.Equal(t, []string{"alice is typing..."}, bobNotices)

	for _, evt := range sender.eventsFor("conn-a") {
		assert.NotEqual(t, server.EventUserTyping, evt.Type)
	}
}

// TestListConsistencyAfterChurn verifies that over a sequence of joins
// and leaves the active room list always equals exactly the set of rooms
// with non-empty membership.
func TestListConsistencyAfterChurn(t *testing.T) {
	dir, _ := newTestDirectory()

	require.NoError(t, dir.Join("alpha", "alice", "conn-1"))
	require.NoError(t, dir.Join("alpha", "bob", "conn-2"))
	require.NoError(t, dir.Join("beta", "carol", "conn-3"))
	assert.Equal(t, []string{"alpha", "beta"}, dir.ListActiveRooms())

	dir.Leave("conn-3")
	assert.Equal(t, []string{"alpha"}, dir.ListActiveRooms())

	dir.Leave("conn-1")
	assert.Equal(t, []string{"alpha"}, dir.ListActiveRooms())

	dir.Leave("conn-2")
	assert.Empty(t, dir.ListActiveRooms())
}
