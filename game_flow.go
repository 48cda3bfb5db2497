package main

import (
	"context"
	"log"
	"time"
)

// PhaseData is broadcast whenever the game changes phase
type PhaseData struct {
	PhaseTransitionResult
	Label    string    `json:"label"`
	Deadline time.Time `json:"deadline"`
}

// StateData is one player's view of the whole game
type StateData struct {
	GameID      string             `json:"game_id,omitempty"`
	Running     bool               `json:"running"`
	Phase       Phase              `json:"phase,omitempty"`
	Subphase    Subphase           `json:"subphase,omitempty"`
	Label       string             `json:"label,omitempty"`
	DaysPassed  float64            `json:"days_passed"`
	Players     []PlayerPublicView `json:"players,omitempty"`
	OnTrial     string             `json:"on_trial,omitempty"`
	Votes       map[string]int     `json:"votes,omitempty"`
	VotesNeeded int                `json:"votes_needed,omitempty"`
	Winner      *WinResult         `json:"winner,omitempty"`
	You         *PlayerPublicView  `json:"you,omitempty"`
	LastWill    string             `json:"last_will,omitempty"`
	DeathNote   string             `json:"death_note,omitempty"`
	Deadline    time.Time          `json:"deadline"`
	Lobby       *LobbyData         `json:"lobby,omitempty"`
}

// stateLocked builds the state a player (or a spectator) may see
func (s *Server) stateLocked(name string) StateData {
	if s.game == nil {
		lobby := s.lobbyDataLocked()
		return StateData{Lobby: &lobby}
	}
	phase, sub := s.game.Phase()
	st := StateData{
		GameID:     s.gameID,
		Running:    s.gameRunning(),
		Phase:      phase,
		Subphase:   sub,
		Label:      s.game.Label(),
		DaysPassed: s.game.DaysPassed(),
		Players:    s.game.Players(),
		OnTrial:    s.game.OnTrial(),
		Votes:      s.game.VoteCounts(),
		Winner:     s.game.Winner(),
		Deadline:   s.deadline,
	}
	if st.Votes != nil {
		st.VotesNeeded = s.game.VotesNeeded()
	}
	if you, err := s.game.QueryState(name); err == nil {
		st.You = &you
		st.LastWill, st.DeathNote = s.game.Notes(name)
	}
	if !st.Running {
		lobby := s.lobbyDataLocked()
		st.Lobby = &lobby
	}
	return st
}

// scheduleLocked arms the timer that ends the current phase. A timer that
// fires after a newer one was armed does nothing.
func (s *Server) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	phase, sub := s.game.Phase()
	d := s.cfg.phaseLength(phase, sub)
	s.deadline = time.Now().Add(d)
	DebugLog("schedule", "%s ends in %s", s.game.Label(), d)
	s.timer = time.AfterFunc(d, func() { s.onPhaseTimer(gen) })
}

func (s *Server) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Server) onPhaseTimer(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.timerGen || !s.gameRunning() {
		return
	}
	s.advanceLocked()
}

// advanceLocked runs one transition, persists it and tells everyone
func (s *Server) advanceLocked() {
	res, err := s.game.Advance()
	if err != nil {
		s.abortLocked(err)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.store.saveTransition(ctx, s.gameID, res); err != nil {
		logError("advance: saveTransition", err)
	}
	s.metrics.observeTransition(res)
	log.Printf("Game %s: %s %s -> %s (%d deaths)", s.gameID, res.FromPhase, res.FromSubphase, res.Label(), len(res.Deaths))

	if len(res.Deaths) > 0 {
		s.narrateDeaths(s.gameID, res)
	}
	if res.Winner != nil {
		s.announceLocked(res)
		s.endGameLocked(res.Winner)
		return
	}

	// A vote can be decided the moment it opens, e.g. a trial with nobody on it
	if s.game.ReadyToAdvance() {
		s.announceLocked(res)
		s.advanceLocked()
		return
	}
	s.scheduleLocked()
	s.announceLocked(res)
	LogDBState("after "+res.Label(), s.store.db)
}

// checkEarlyAdvanceLocked ends a vote as soon as its outcome is fixed
func (s *Server) checkEarlyAdvanceLocked() {
	if s.gameRunning() && s.game.ReadyToAdvance() {
		DebugLog("checkEarlyAdvance", "vote decided early in game %s", s.gameID)
		s.advanceLocked()
	}
}

// announceLocked sends a transition to everyone: the public part to all,
// feedback and roles to each seated player
func (s *Server) announceLocked(res PhaseTransitionResult) {
	s.hub.broadcast(encodeMessage(MsgPhase, PhaseData{
		PhaseTransitionResult: res,
		Label:                 res.Label(),
		Deadline:              s.deadline,
	}))
	if len(res.Deaths) > 0 {
		s.hub.broadcast(encodeMessage(MsgDeaths, res.Deaths))
	}
	for _, p := range s.game.Players() {
		if fb := res.FeedbackByPlayer[p.Name]; len(fb) > 0 {
			s.hub.sendToPlayer(p.Name, encodeMessage(MsgFeedback, fb))
		}
		// Roles change on promotion and when an Executioner loses their target
		s.sendRoleLocked(p.Name)
	}
	for _, name := range s.hub.connectedNames() {
		s.hub.sendToPlayer(name, encodeMessage(MsgState, s.stateLocked(name)))
	}
}

// endGameLocked announces the winners and reopens the lobby for everyone
// still connected
func (s *Server) endGameLocked(w *WinResult) {
	s.stopTimerLocked()
	log.Printf("Game %s finished, winners: %v %v", s.gameID, w.Factions, w.Players)
	DebugLog("endGame", "Game %s finished", s.gameID)
	LogDBState("after game end", s.store.db)

	s.hub.broadcast(encodeMessage(MsgWinner, w))
	s.lobby = s.hub.connectedNames()
	s.broadcastLobbyLocked()
}

// abortLocked stops a game whose engine reported an internal error
func (s *Server) abortLocked(err error) {
	logError("game "+s.gameID+" aborted", err)
	s.gameErr = err
	s.stopTimerLocked()
	if err := s.store.markAborted(s.gameID); err != nil {
		logError("abort: markAborted", err)
	}
	s.hub.broadcast(encodeMessage(MsgToast, newToast("error", "The game hit an internal error and was stopped")))
	s.lobby = s.hub.connectedNames()
	s.broadcastLobbyLocked()
}
