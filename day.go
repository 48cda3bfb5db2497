package main

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// VotesData is the open tally, broadcast after every vote
type VotesData struct {
	Subphase Subphase       `json:"subphase"`
	OnTrial  string         `json:"on_trial,omitempty"`
	Counts   map[string]int `json:"counts"`
	Needed   int            `json:"needed"`
}

func (s *Server) handleWSVote(client *Client, msg WSMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.gameRunning() {
		s.sendErrorToast(client.name, "No game in progress")
		return
	}

	target := strings.TrimSpace(msg.Target)
	if err := s.game.CastVote(client.name, target); err != nil {
		s.metrics.rejected.WithLabelValues("vote").Inc()
		s.sendErrorToast(client.name, errorMessage("handleWSVote", err))
		return
	}
	s.metrics.votes.WithLabelValues("day").Inc()

	var desc string
	switch target {
	case VoteAbstain:
		desc = fmt.Sprintf("%s abstained.", client.name)
	case VoteNobody:
		desc = fmt.Sprintf("%s voted to put nobody on trial.", client.name)
	default:
		desc = fmt.Sprintf("%s voted to put %s on trial.", client.name, target)
	}
	s.recordVoteLocked(client.name, ActionVote, target, desc)
	log.Printf("Game %s: %s", s.gameID, desc)

	s.broadcastVotesLocked()
	s.checkEarlyAdvanceLocked()
}

func (s *Server) handleWSTrialVote(client *Client, msg WSMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.gameRunning() {
		s.sendErrorToast(client.name, "No game in progress")
		return
	}

	if err := s.game.CastTrialVote(client.name, strings.TrimSpace(msg.Verdict)); err != nil {
		s.metrics.rejected.WithLabelValues("trial_vote").Inc()
		s.sendErrorToast(client.name, errorMessage("handleWSTrialVote", err))
		return
	}
	s.metrics.votes.WithLabelValues("trial").Inc()

	// Verdicts stay secret until the results are announced
	desc := fmt.Sprintf("%s voted %s in the trial of %s.", client.name, strings.ToLower(msg.Verdict), s.game.OnTrial())
	s.recordVoteLocked(client.name, ActionTrialVote, s.game.OnTrial(), desc)
	s.sendToast(client.name, "success", "Your vote was counted")

	s.broadcastVotesLocked()
	s.checkEarlyAdvanceLocked()
}

func (s *Server) recordVoteLocked(voter, actionType, target, desc string) {
	visibility := VisibilityPublic
	if actionType == ActionTrialVote {
		visibility = VisibilityActor
	}
	if _, err := s.store.recordAction(context.Background(), GameAction{
		GameID:      s.gameID,
		DaysPassed:  s.game.DaysPassed(),
		Phase:       s.game.Label(),
		Actor:       voter,
		ActionType:  actionType,
		Target:      target,
		Visibility:  visibility,
		Description: desc,
	}); err != nil {
		logError("recordVote", err)
	}
}

// broadcastVotesLocked shares the tally. Trial tallies only show how many
// players voted, not which way.
func (s *Server) broadcastVotesLocked() {
	_, sub := s.game.Phase()
	data := VotesData{
		Subphase: sub,
		OnTrial:  s.game.OnTrial(),
		Counts:   s.game.VoteCounts(),
		Needed:   s.game.VotesNeeded(),
	}
	if sub == SubTrial {
		total := 0
		for _, c := range data.Counts {
			total += c
		}
		data.Counts = map[string]int{"votes": total}
	}
	s.hub.broadcast(encodeMessage(MsgVotes, data))
}
