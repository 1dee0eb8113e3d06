package integration

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatify/relay/test/testhelpers"
)

const eventWait = 2 * time.Second

// TestRoomChatScenario walks through the canonical two-client session:
// Alice and Bob join the same room, exchange a chat message, and Alice
// observes Bob's abrupt disconnect.
func TestRoomChatScenario(t *testing.T) {
	ts, _ := startRelay(t, nil)
	wsURL := testhelpers.WebSocketURL(ts.URL)

	alice := testhelpers.MustDial(t, wsURL)
	aliceEvents := testhelpers.NewEventReader(alice)
	aliceID := testhelpers.ConnectionID(t, aliceEvents.WaitFor(t, "connection", eventWait))

	if err := testhelpers.JoinRoom(alice, "ABCDE", "Alice"); err != nil {
		t.Fatalf("Alice failed to join: %v", err)
	}
	roster := testhelpers.Roster(t, aliceEvents.WaitFor(t, "user_list", eventWait))
	if len(roster) != 1 || roster[0] != aliceID {
		t.Errorf("Expected roster [%s], got %v", aliceID, roster)
	}
	joined := aliceEvents.WaitFor(t, "user_joined", eventWait)
	if joined["username"] != "Alice" {
		t.Errorf("Expected Alice's own join announcement, got %v", joined)
	}

	bob := testhelpers.MustDial(t, wsURL)
	bobEvents := testhelpers.NewEventReader(bob)
	bobID := testhelpers.ConnectionID(t, bobEvents.WaitFor(t, "connection", eventWait))

	if err := testhelpers.JoinRoom(bob, "ABCDE", "Bob"); err != nil {
		t.Fatalf("Bob failed to join: %v", err)
	}

	// Both members observe Bob's arrival with the two-member roster.
	for name, events := range map[string]*testhelpers.EventReader{"Alice": aliceEvents, "Bob": bobEvents} {
		ev := events.WaitFor(t, "user_joined", eventWait)
		if ev["username"] != "Bob" {
			t.Errorf("%s expected Bob's join announcement, got %v", name, ev)
		}
		got := testhelpers.Roster(t, ev)
		if len(got) != 2 {
			t.Errorf("%s expected two-member roster, got %v", name, got)
		}
		for _, want := range []string{aliceID, bobID} {
			found := false
			for _, id := range got {
				if id == want {
					found = true
				}
			}
			if !found {
				t.Errorf("%s roster %v is missing %s", name, got, want)
			}
		}
	}

	if err := testhelpers.SendChat(alice, "hi"); err != nil {
		t.Fatalf("Alice failed to send chat: %v", err)
	}

	aliceChat := aliceEvents.WaitFor(t, "chat", eventWait)
	bobChat := bobEvents.WaitFor(t, "chat", eventWait)
	for name, ev := range map[string]map[string]any{"Alice": aliceChat, "Bob": bobChat} {
		if ev["sender"] != "Alice" || ev["content"] != "hi" {
			t.Errorf("%s received wrong chat event: %v", name, ev)
		}
	}
	// The server stamps once per broadcast: every member sees the same time.
	if aliceChat["timestamp"] != bobChat["timestamp"] {
		t.Errorf("Chat timestamps differ between members: %v vs %v",
			aliceChat["timestamp"], bobChat["timestamp"])
	}

	// Bob vanishes without a leave_room; Alice still finds out.
	_ = bob.Close()
	left := aliceEvents.WaitFor(t, "user_left", eventWait)
	if left["username"] != "Bob" {
		t.Errorf("Expected Bob's departure, got %v", left)
	}
	if got := testhelpers.Roster(t, left); len(got) != 1 || got[0] != aliceID {
		t.Errorf("Expected remaining roster [%s], got %v", aliceID, got)
	}
}

// TestChatBeforeJoinRejected verifies that chatting from the lobby answers
// an error event and leaves the connection usable.
func TestChatBeforeJoinRejected(t *testing.T) {
	ts, _ := startRelay(t, nil)

	conn := testhelpers.MustDial(t, testhelpers.WebSocketURL(ts.URL))
	events := testhelpers.NewEventReader(conn)
	events.WaitFor(t, "connection", eventWait)

	if err := testhelpers.SendChat(conn, "anybody there?"); err != nil {
		t.Fatalf("Failed to send chat: %v", err)
	}
	errEv := events.WaitFor(t, "error", eventWait)
	if errEv["content"] != "not in a room" {
		t.Errorf("Expected 'not in a room' error, got %v", errEv)
	}

	// The connection survived; a normal join still works.
	if err := testhelpers.JoinRoom(conn, "ABCDE", "Alice"); err != nil {
		t.Fatalf("Join after rejected chat failed: %v", err)
	}
	events.WaitFor(t, "user_joined", eventWait)
}

// TestMalformedInputKeepsConnectionOpen verifies that undecodable frames
// answer a single error event without dropping the connection.
func TestMalformedInputKeepsConnectionOpen(t *testing.T) {
	ts, _ := startRelay(t, nil)

	conn := testhelpers.MustDial(t, testhelpers.WebSocketURL(ts.URL))
	events := testhelpers.NewEventReader(conn)
	events.WaitFor(t, "connection", eventWait)

	payloads := []string{
		"this is not json",
		`{"type":"teleport"}`,
		`{"type":"join_room"}`,
	}
	for _, payload := range payloads {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			t.Fatalf("Failed to send %q: %v", payload, err)
		}
		errEv := events.WaitFor(t, "error", eventWait)
		if errEv["content"] != "invalid message format" {
			t.Errorf("Expected format error for %q, got %v", payload, errEv)
		}
	}

	if err := testhelpers.JoinRoom(conn, "ABCDE", "Alice"); err != nil {
		t.Fatalf("Join after malformed input failed: %v", err)
	}
	events.WaitFor(t, "user_joined", eventWait)
}

// TestSwitchingRoomsLeavesTheFirst verifies the implicit leave when a member
// joins a second room.
func TestSwitchingRoomsLeavesTheFirst(t *testing.T) {
	ts, _ := startRelay(t, nil)
	wsURL := testhelpers.WebSocketURL(ts.URL)

	alice := testhelpers.MustDial(t, wsURL)
	aliceEvents := testhelpers.NewEventReader(alice)
	aliceEvents.WaitFor(t, "connection", eventWait)

	bob := testhelpers.MustDial(t, wsURL)
	bobEvents := testhelpers.NewEventReader(bob)
	bobEvents.WaitFor(t, "connection", eventWait)

	// Sequence the joins: await each announcement before the next join so
	// every reader is drained no matter how the two connections interleave.
	if err := testhelpers.JoinRoom(alice, "red", "Alice"); err != nil {
		t.Fatalf("Alice failed to join red: %v", err)
	}
	aliceEvents.WaitFor(t, "user_joined", eventWait)

	if err := testhelpers.JoinRoom(bob, "red", "Bob"); err != nil {
		t.Fatalf("Bob failed to join red: %v", err)
	}
	bobJoined := bobEvents.WaitFor(t, "user_joined", eventWait)
	if bobJoined["username"] != "Bob" {
		t.Errorf("Expected Bob's own join announcement, got %v", bobJoined)
	}
	aliceEvents.WaitFor(t, "user_joined", eventWait)

	if err := testhelpers.JoinRoom(bob, "blue", "Bob"); err != nil {
		t.Fatalf("Bob failed to switch to blue: %v", err)
	}

	left := aliceEvents.WaitFor(t, "user_left", eventWait)
	if left["username"] != "Bob" {
		t.Errorf("Expected Bob to leave red, got %v", left)
	}
	if got := testhelpers.Roster(t, left); len(got) != 1 {
		t.Errorf("Expected Alice alone in red, got %v", got)
	}

	joined := bobEvents.WaitFor(t, "user_joined", eventWait)
	if got := testhelpers.Roster(t, joined); len(got) != 1 {
		t.Errorf("Expected Bob alone in blue, got %v", got)
	}
}

// TestExplicitLeaveRoom verifies the leave_room round-trip: the remaining
// member observes the departure, the leaver hears nothing, and the leaver's
// connection stays registered.
func TestExplicitLeaveRoom(t *testing.T) {
	ts, hub := startRelay(t, nil)
	wsURL := testhelpers.WebSocketURL(ts.URL)

	alice := testhelpers.MustDial(t, wsURL)
	aliceEvents := testhelpers.NewEventReader(alice)
	aliceID := testhelpers.ConnectionID(t, aliceEvents.WaitFor(t, "connection", eventWait))

	if err := testhelpers.JoinRoom(alice, "lounge", "Alice"); err != nil {
		t.Fatalf("Alice failed to join: %v", err)
	}
	aliceEvents.WaitFor(t, "user_joined", eventWait)

	bob := testhelpers.MustDial(t, wsURL)
	bobEvents := testhelpers.NewEventReader(bob)
	bobEvents.WaitFor(t, "connection", eventWait)

	if err := testhelpers.JoinRoom(bob, "lounge", "Bob"); err != nil {
		t.Fatalf("Bob failed to join: %v", err)
	}
	bobEvents.WaitFor(t, "user_joined", eventWait)
	aliceEvents.WaitFor(t, "user_joined", eventWait)

	if err := testhelpers.LeaveRoom(bob); err != nil {
		t.Fatalf("Bob failed to leave: %v", err)
	}

	left := aliceEvents.WaitFor(t, "user_left", eventWait)
	if left["username"] != "Bob" {
		t.Errorf("Expected Bob's departure, got %v", left)
	}
	if got := testhelpers.Roster(t, left); len(got) != 1 || got[0] != aliceID {
		t.Errorf("Expected remaining roster [%s], got %v", aliceID, got)
	}

	// Leaving a room is not a disconnect: Bob's connection is still live.
	if got := hub.ClientCount(); got != 2 {
		t.Errorf("Expected 2 live connections after leave, got %d", got)
	}
	bobEvents.ExpectSilence(t, 300*time.Millisecond)
}

// TestPrivateMessage verifies whisper delivery to a single connection id
// with an echo to the sender and nothing to bystanders.
func TestPrivateMessage(t *testing.T) {
	ts, _ := startRelay(t, nil)
	wsURL := testhelpers.WebSocketURL(ts.URL)

	alice := testhelpers.MustDial(t, wsURL)
	aliceEvents := testhelpers.NewEventReader(alice)
	aliceEvents.WaitFor(t, "connection", eventWait)

	bob := testhelpers.MustDial(t, wsURL)
	bobEvents := testhelpers.NewEventReader(bob)
	bobID := testhelpers.ConnectionID(t, bobEvents.WaitFor(t, "connection", eventWait))

	bystander := testhelpers.MustDial(t, wsURL)
	bystanderEvents := testhelpers.NewEventReader(bystander)
	bystanderEvents.WaitFor(t, "connection", eventWait)

	if err := testhelpers.SendPrivate(alice, bobID, "psst"); err != nil {
		t.Fatalf("Failed to send private message: %v", err)
	}

	toBob := bobEvents.WaitFor(t, "chat", eventWait)
	if toBob["content"] != "psst" {
		t.Errorf("Bob received wrong private message: %v", toBob)
	}
	echo := aliceEvents.WaitFor(t, "chat", eventWait)
	if echo["content"] != "psst" {
		t.Errorf("Alice's echo is wrong: %v", echo)
	}
	bystanderEvents.ExpectSilence(t, 300*time.Millisecond)

	// A whisper to a connection that never existed answers an error.
	if err := testhelpers.SendPrivate(alice, "no-such-connection", "hello?"); err != nil {
		t.Fatalf("Failed to send private message: %v", err)
	}
	errEv := aliceEvents.WaitFor(t, "error", eventWait)
	if errEv["content"] != "unknown recipient" {
		t.Errorf("Expected unknown recipient error, got %v", errEv)
	}
}
