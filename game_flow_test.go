package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

// waitForRole reads the private role message
func (c *testClient) waitForRole() RoleData {
	c.t.Helper()
	var role RoleData
	if err := json.Unmarshal(c.waitFor(MsgRole, nil), &role); err != nil {
		c.t.Fatalf("%s decode role: %v", c.name, err)
	}
	return role
}

// waitForPhase reads phase messages until the given label
func (c *testClient) waitForPhase(label string) PhaseData {
	c.t.Helper()
	var phase PhaseData
	c.waitFor(MsgPhase, func(raw json.RawMessage) bool {
		var p PhaseData
		if json.Unmarshal(raw, &p) != nil {
			return false
		}
		phase = p
		return p.Label == label
	})
	return phase
}

// forceAdvance ends the current phase as if its timer fired
func (ts *testServer) forceAdvance() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.advanceLocked()
}

func (ts *testServer) history(t *testing.T, c *testClient) []string {
	t.Helper()
	resp, err := c.http.Get(ts.ts.URL + "/api/history")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	defer resp.Body.Close()
	var entries []string
	if err := decodeJSON(resp, &entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	return entries
}

// startGame deals Mafioso plus Townies and sorts the clients by role
func startGame(t *testing.T, ts *testServer, clients []*testClient) (mafioso *testClient, town []*testClient) {
	t.Helper()
	ids := []string{RoleMafioso}
	for len(ids) < len(clients) {
		ids = append(ids, RoleTownie)
	}
	clients[0].send(WSMessage{Action: "start_game", Identifiers: ids})

	for _, c := range clients {
		role := c.waitForRole()
		if len(role.RoleList) != len(clients) {
			t.Errorf("%s: expected the role list of %d, got %v", c.name, len(clients), role.RoleList)
		}
		if role.Name == RoleMafioso {
			mafioso = c
		} else {
			town = append(town, c)
		}
	}
	if mafioso == nil {
		t.Fatalf("expected someone to be dealt the Mafioso")
	}
	for _, c := range clients {
		c.waitForPhase("Night 1")
	}
	return mafioso, town
}

func TestStartGameValidation(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	clients := ts.joinAll(t, "Alice", "Bob")

	clients[0].send(WSMessage{Action: "start_game"})
	clients[0].waitForToast("need at least 4 players")

	clients[0].send(WSMessage{Action: "start_game", Identifiers: []string{"Mafioso", "Townie", "Townie"}})
	clients[0].waitForToast("More roles than players")
}

func TestStartGameDealsRoles(t *testing.T) {
	cfg := testConfig()
	ts := newTestServer(t, cfg, nil)
	clients := ts.joinAll(t, "Alice", "Bob", "Carol", "Dave")

	mafioso, town := startGame(t, ts, clients)
	if len(town) != 3 {
		t.Errorf("expected three Townies, got %d", len(town))
	}

	mafioso.send(WSMessage{Action: "state"})
	var state StateData
	json.Unmarshal(mafioso.waitFor(MsgState, nil), &state)
	if !state.Running || state.Label != "Night 1" || state.You == nil || state.You.Name != mafioso.name {
		t.Errorf("expected a running Night 1 seen by %s, got %+v", mafioso.name, state)
	}
	if time.Until(state.Deadline) < 59*time.Minute {
		t.Errorf("expected the night to end in an hour, got %v", state.Deadline)
	}

	town[0].send(WSMessage{Action: "start_game"})
	town[0].waitForToast("Game already started")

	g, err := ts.store.game(state.GameID)
	if err != nil {
		t.Fatalf("stored game: %v", err)
	}
	if g.Status != GameStatusRunning {
		t.Errorf("expected the stored game to be running, got %s", g.Status)
	}
	seats, _ := ts.store.gamePlayers(state.GameID)
	if len(seats) != 4 {
		t.Errorf("expected 4 stored seats, got %d", len(seats))
	}
}

func TestRejectedActionIsToasted(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	clients := ts.joinAll(t, "Alice", "Bob", "Carol", "Dave")
	mafioso, town := startGame(t, ts, clients)

	town[0].send(WSMessage{Action: "submit_action", Ability: "Heal", Args: []string{mafioso.name}})
	town[0].waitForToast("cannot use Heal")

	mafioso.send(WSMessage{Action: "vote", Target: town[0].name})
	mafioso.waitForToast("voting is closed")
}

func TestFullGameOverWebSocket(t *testing.T) {
	teller := &mockStoryteller{story: "The town mourns in the rain."}
	ts := newTestServer(t, testConfig(), teller)
	clients := ts.joinAll(t, "Alice", "Bob", "Carol", "Dave")
	mafioso, town := startGame(t, ts, clients)
	victim, a, b := town[0], town[1], town[2]

	// Night 1: the Mafioso kills
	mafioso.send(WSMessage{Action: "submit_action", Ability: AbilityMurder, Args: []string{victim.name}})
	mafioso.waitForToast("You will use Murder on " + victim.name)

	ts.forceAdvance()
	for _, c := range clients {
		raw := c.waitFor(MsgDeaths, nil)
		var deaths []Death
		json.Unmarshal(raw, &deaths)
		if len(deaths) != 1 || deaths[0].Victim != victim.name || deaths[0].VictimRole != RoleTownie {
			t.Errorf("%s: expected %s to die as a Townie, got %+v", c.name, victim.name, deaths)
		}
	}
	victim.waitFor(MsgFeedback, nil)

	// Day 1: two Townies put the Mafioso on trial and convict
	ts.forceAdvance()
	a.waitForPhase("Day 1 Voting")
	a.send(WSMessage{Action: "vote", Target: mafioso.name})
	a.waitFor(MsgVotes, nil)
	b.send(WSMessage{Action: "vote", Target: mafioso.name})

	trial := a.waitForPhase("Day 1 Trial")
	if trial.OnTrial != mafioso.name {
		t.Fatalf("expected %s on trial, got %q", mafioso.name, trial.OnTrial)
	}
	a.send(WSMessage{Action: "trial_vote", Verdict: "guilty"})
	a.waitForToast("Your vote was counted")
	b.send(WSMessage{Action: "trial_vote", Verdict: "guilty"})

	var winner WinResult
	json.Unmarshal(a.waitFor(MsgWinner, nil), &winner)
	if !sameSet(winner.Factions, []string{"Town"}) {
		t.Errorf("expected the town to win, got %+v", winner)
	}
	if !contains(winner.Players, victim.name) || contains(winner.Players, mafioso.name) {
		t.Errorf("expected every Townie and no Mafioso among the winners, got %v", winner.Players)
	}
	lobby := a.waitForLobby(4)
	if !lobby.CanStart || lobby.GameRunning {
		t.Errorf("expected the lobby to reopen, got %+v", lobby)
	}

	// History respects visibility
	townHistory := strings.Join(ts.history(t, a), "\n")
	if !strings.Contains(townHistory, "was lynched by the town") {
		t.Errorf("expected the lynch in the history, got %s", townHistory)
	}
	if strings.Contains(townHistory, "will use Murder") {
		t.Errorf("expected the Mafia's choice to stay hidden from the town")
	}
	if !strings.Contains(strings.Join(ts.history(t, mafioso), "\n"), "will use Murder") {
		t.Errorf("expected the Mafioso to see their own choice")
	}

	// The stories land in the public history
	ts.mu.Lock()
	gameID := ts.gameID
	ts.mu.Unlock()
	ts.background.Wait()
	public, err := ts.store.publicHistory(context.Background(), gameID)
	if err != nil {
		t.Fatalf("publicHistory: %v", err)
	}
	if !contains(public, teller.story) {
		t.Errorf("expected the story in the history, got %v", public)
	}
	if teller.callCount() != 2 {
		t.Errorf("expected a story for each round of deaths, got %d", teller.callCount())
	}

	g, _ := ts.store.game(gameID)
	if g.Status != GameStatusFinished {
		t.Errorf("expected the stored game to be finished, got %s", g.Status)
	}
	w, err := ts.store.winners(gameID)
	if err != nil || !sameSet(w.Factions, []string{"Town"}) {
		t.Errorf("expected the stored winners, got %+v (%v)", w, err)
	}

	// Metrics saw the whole game
	resp, err := http.Get(ts.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, line := range []string{
		"mafia_games_started_total 1",
		`mafia_games_finished_total{winner="Town"} 1`,
		`mafia_deaths_total{cause="attack"} 1`,
		`mafia_deaths_total{cause="lynch"} 1`,
		`mafia_votes_cast_total{kind="day"} 2`,
		`mafia_votes_cast_total{kind="trial"} 2`,
		`mafia_actions_submitted_total{ability="Murder"} 1`,
	} {
		if !strings.Contains(string(body), line) {
			t.Errorf("expected %q in the metrics", line)
		}
	}
}

func TestTiedVoteSkipsToNight(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	clients := ts.joinAll(t, "Alice", "Bob", "Carol", "Dave")
	mafioso, town := startGame(t, ts, clients)

	ts.forceAdvance()
	ts.forceAdvance()
	town[0].waitForPhase("Day 1 Voting")
	town[0].send(WSMessage{Action: "vote", Target: mafioso.name})
	mafioso.send(WSMessage{Action: "vote", Target: town[0].name})
	town[1].send(WSMessage{Action: "vote", Target: VoteAbstain})
	town[2].send(WSMessage{Action: "vote", Target: VoteAbstain})

	// Everyone voted and nobody leads, so the empty trial resolves at once
	results := town[0].waitForPhase("Day 1 TrialResults")
	if results.Verdict != VoteNobody || len(results.Deaths) != 0 {
		t.Errorf("expected nobody to be tried, got %+v", results.PhaseTransitionResult)
	}
	ts.forceAdvance()
	town[0].waitForPhase("Night 2")
}

func TestLastWillAndLeaveOverWebSocket(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	clients := ts.joinAll(t, "Alice", "Bob", "Carol", "Dave", "Eve")
	mafioso, town := startGame(t, ts, clients)
	victim, leaver, last := town[0], town[1], town[2]

	victim.send(WSMessage{Action: "last_will", Text: "I trust nobody."})
	victim.waitForToast("Your last will was saved")
	victim.send(WSMessage{Action: "state"})
	var state StateData
	json.Unmarshal(victim.waitFor(MsgState, func(raw json.RawMessage) bool {
		var st StateData
		return json.Unmarshal(raw, &st) == nil && st.LastWill != ""
	}), &state)
	if state.LastWill != "I trust nobody." {
		t.Errorf("expected the saved last will in the state, got %q", state.LastWill)
	}

	mafioso.send(WSMessage{Action: "death_note", Text: "Sleep well."})
	mafioso.waitForToast("Your death note was saved")
	mafioso.send(WSMessage{Action: "submit_action", Ability: AbilityMurder, Args: []string{victim.name}})
	mafioso.waitForToast("You will use Murder")

	ts.forceAdvance()
	var deaths []Death
	json.Unmarshal(last.waitFor(MsgDeaths, nil), &deaths)
	if len(deaths) != 1 || deaths[0].LastWill != "I trust nobody." || deaths[0].Kills[0].DeathNote != "Sleep well." {
		t.Errorf("expected the will and the note with the death, got %+v", deaths)
	}

	leaver.send(WSMessage{Action: "leave_game"})
	last.waitForToast(leaver.name + " left the game.")
	leaver.send(WSMessage{Action: "leave_game"})
	leaver.waitForToast("you already left")

	// The suicide is announced once voting closes
	ts.forceAdvance()
	ts.forceAdvance()
	last.waitFor(MsgDeaths, func(raw json.RawMessage) bool {
		var ds []Death
		return json.Unmarshal(raw, &ds) == nil && len(ds) == 1 &&
			ds[0].Victim == leaver.name && ds[0].Kills[0].Flavor == FlavorLeft
	})

	public := strings.Join(ts.history(t, last), "\n")
	if !strings.Contains(public, leaver.name+" left the game.") {
		t.Errorf("expected the departure in the history, got %s", public)
	}
	if strings.Contains(public, "updated their last will") {
		t.Errorf("expected the will to stay private until death")
	}
}

func TestLeaveLobby(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	clients := ts.joinAll(t, "Alice", "Bob")

	clients[1].send(WSMessage{Action: "leave_game"})
	clients[1].waitForToast("You left the lobby")
	lobby := clients[0].waitForLobby(1)
	if contains(lobby.Players, "Bob") {
		t.Errorf("expected Bob to leave the lobby, got %v", lobby.Players)
	}
	clients[1].send(WSMessage{Action: "leave_game"})
	clients[1].waitForToast("You are not in the lobby")
}
