package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// joinAll signs up and connects the named players and waits until the last
// one sees the whole lobby
func (ts *testServer) joinAll(t *testing.T, names ...string) []*testClient {
	t.Helper()
	var clients []*testClient
	for _, name := range names {
		c := ts.signup(t, name)
		ts.connect(t, c)
		clients = append(clients, c)
	}
	clients[len(clients)-1].waitForLobby(len(names))
	return clients
}

func TestLobbyTracksConnections(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	clients := ts.joinAll(t, "Alice", "Bob")

	lobby := clients[0].waitForLobby(2)
	if !contains(lobby.Players, "Alice") || !contains(lobby.Players, "Bob") {
		t.Errorf("expected both players in the lobby, got %v", lobby.Players)
	}
	if lobby.CanStart || lobby.MinPlayers != 4 {
		t.Errorf("expected 4 players to be needed, got %+v", lobby)
	}

	clients[1].conn.Close()
	lobby = clients[0].waitForLobby(1)
	if contains(lobby.Players, "Bob") {
		t.Errorf("expected Bob to leave the lobby, got %v", lobby.Players)
	}
}

func TestSecondConnectionKeepsPlayer(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	clients := ts.joinAll(t, "Alice", "Bob")

	// Bob opens a second tab and closes the first
	ts.connect(t, clients[1])
	clients[1].waitForLobby(2)
	if got := ts.hub.count(); got != 3 {
		t.Errorf("expected 3 connections, got %d", got)
	}
	clients[0].conn.Close()
	clients[1].waitForLobby(1)

	names := ts.hub.connectedNames()
	if len(names) != 1 || names[0] != "Bob" {
		t.Errorf("expected only Bob connected, got %v", names)
	}
}

func TestUnknownAndMalformedMessages(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	alice := ts.joinAll(t, "Alice")[0]

	alice.send(WSMessage{Action: "dance"})
	if toast := alice.waitForToast("Unknown action"); toast.Type != "error" {
		t.Errorf("expected an error toast, got %+v", toast)
	}

	if err := alice.conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	alice.waitForToast("Malformed message")

	alice.send(WSMessage{Action: "vote", Target: "Bob"})
	alice.waitForToast("No game in progress")
}

func TestStateOverWebSocket(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	alice := ts.joinAll(t, "Alice")[0]

	alice.send(WSMessage{Action: "state"})
	raw := alice.waitFor(MsgState, nil)
	var state StateData
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Lobby == nil || state.Lobby.PlayerCount != 1 {
		t.Errorf("expected a lobby with Alice, got %+v", state.Lobby)
	}
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	clients := ts.joinAll(t, "Alice", "Bob", "Carol")

	ts.hub.broadcast(encodeMessage(MsgToast, newToast("info", "hello town")))
	for _, c := range clients {
		c.waitForToast("hello town")
	}

	ts.hub.sendToPlayer("Bob", encodeMessage(MsgToast, newToast("info", "psst")))
	clients[1].waitForToast("psst")

	// Alice only gets the next broadcast, never the whisper
	ts.hub.broadcast(encodeMessage(MsgToast, newToast("info", "done")))
	clients[0].conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg inMessage
		if err := clients[0].conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		var toast Toast
		json.Unmarshal(msg.Data, &toast)
		if toast.Message == "psst" {
			t.Fatalf("expected the whisper to reach only Bob")
		}
		if toast.Message == "done" {
			break
		}
	}
}
