package main

import (
	"context"
	"crypto/rand"
	"log"
	"math/big"

	"github.com/google/uuid"
)

// LobbyData is what everyone sees before a game starts
type LobbyData struct {
	Players         []string `json:"players"`
	PlayerCount     int      `json:"player_count"`
	MinPlayers      int      `json:"min_players"`
	CanStart        bool     `json:"can_start"`
	DefaultRoleList []string `json:"default_role_list,omitempty"`
	GameRunning     bool     `json:"game_running"`
}

// RoleData is sent privately to each player when roles are dealt
type RoleData struct {
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Faction           Faction   `json:"faction"`
	Alignment         Alignment `json:"alignment"`
	Abilities         []string  `json:"abilities"`
	ExecutionerTarget string    `json:"executioner_target,omitempty"`
	Teammates         []string  `json:"teammates,omitempty"`
	RoleList          []string  `json:"role_list"`
}

// gameRunning reports whether a game is in progress. Callers hold s.mu.
func (s *Server) gameRunning() bool {
	return s.game != nil && !s.game.Ended() && s.gameErr == nil
}

// addPlayerToLobby adds a newly connected player while no game is running.
// A player reconnecting to a running game gets their role and state again.
func (s *Server) addPlayerToLobby(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerIDs[c.name] = c.playerID

	if s.gameRunning() {
		if _, err := s.game.QueryState(c.name); err == nil {
			DebugLog("addPlayerToLobby", "Player '%s' rejoined game %s", c.name, s.gameID)
			s.sendRoleLocked(c.name)
			s.hub.sendToPlayer(c.name, encodeMessage(MsgState, s.stateLocked(c.name)))
			return
		}
		DebugLog("addPlayerToLobby", "Player '%s' cannot join - game %s is running", c.name, s.gameID)
		s.hub.sendToPlayer(c.name, encodeMessage(MsgState, s.stateLocked(c.name)))
		return
	}

	if contains(s.lobby, c.name) {
		DebugLog("addPlayerToLobby", "Player '%s' already in lobby", c.name)
		s.hub.sendToPlayer(c.name, encodeMessage(MsgLobby, s.lobbyDataLocked()))
		return
	}
	s.lobby = append(s.lobby, c.name)
	log.Printf("Player %d (%s) added to lobby (connected)", c.playerID, c.name)
	s.broadcastLobbyLocked()
}

// removePlayerFromLobby removes a disconnected player while no game is running
func (s *Server) removePlayerFromLobby(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gameRunning() {
		DebugLog("removePlayerFromLobby", "Player '%s' stays seated in game %s", c.name, s.gameID)
		return
	}
	for i, name := range s.lobby {
		if name == c.name {
			s.lobby = append(s.lobby[:i], s.lobby[i+1:]...)
			log.Printf("Player %d (%s) removed from lobby (disconnected)", c.playerID, c.name)
			s.broadcastLobbyLocked()
			return
		}
	}
}

func (s *Server) lobbyDataLocked() LobbyData {
	minPlayers := s.cfg.sessionOptions().MinPlayers
	return LobbyData{
		Players:         append([]string(nil), s.lobby...),
		PlayerCount:     len(s.lobby),
		MinPlayers:      minPlayers,
		CanStart:        !s.gameRunning() && len(s.lobby) >= minPlayers,
		DefaultRoleList: s.cfg.RoleList,
		GameRunning:     s.gameRunning(),
	}
}

func (s *Server) broadcastLobbyLocked() {
	data := s.lobbyDataLocked()
	DebugLog("broadcastLobby", "Broadcasting lobby with %d players", data.PlayerCount)
	s.hub.broadcast(encodeMessage(MsgLobby, data))
}

// roleListFor fills the host's identifiers up to the number of players,
// falling back to the configured list and then to Any
func (s *Server) roleListFor(identifiers []string, players int) []string {
	list := identifiers
	if len(list) == 0 {
		list = s.cfg.RoleList
	}
	out := make([]string, 0, players)
	for _, id := range list {
		if len(out) == players {
			break
		}
		out = append(out, id)
	}
	for len(out) < players {
		out = append(out, "Any")
	}
	return out
}

func (s *Server) handleWSStartGame(client *Client, msg WSMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gameRunning() {
		s.sendErrorToast(client.name, "Game already started")
		return
	}
	if !contains(s.lobby, client.name) {
		s.sendErrorToast(client.name, "Only players in the lobby can start a game")
		return
	}
	if len(msg.Identifiers) > len(s.lobby) {
		s.sendErrorToast(client.name, "More roles than players")
		return
	}

	game, err := NewGameSession(s.catalog, s.cfg.sessionOptions())
	if err != nil {
		s.sendErrorToast(client.name, errorMessage("handleWSStartGame: NewGameSession", err))
		return
	}

	seats := append([]string(nil), s.lobby...)
	shufflePlayers(seats)
	identifiers := s.roleListFor(msg.Identifiers, len(seats))

	res, err := game.Start(seats, identifiers)
	if err != nil {
		s.metrics.rejected.WithLabelValues("start_game").Inc()
		s.sendErrorToast(client.name, errorMessage("handleWSStartGame: Start", err))
		return
	}

	gameID := uuid.New().String()
	var rows []GamePlayer
	for _, name := range seats {
		role, _ := game.RoleOf(name)
		rows = append(rows, GamePlayer{Name: name, PlayerID: s.playerIDs[name], Role: role.Name})
	}
	if err := s.store.createGame(context.Background(), gameID, identifiers, rows); err != nil {
		logError("handleWSStartGame: createGame", err)
		s.sendErrorToast(client.name, "Failed to start game")
		return
	}

	s.game = game
	s.gameID = gameID
	s.gameErr = nil
	s.lobby = nil
	s.metrics.gamesStarted.Inc()

	log.Printf("Game %s started with %d players", gameID, len(seats))
	LogDBState("after game start", s.store.db)

	for _, name := range seats {
		s.sendRoleLocked(name)
	}
	s.scheduleLocked()
	s.announceLocked(res)
}

// sendRoleLocked tells a player who they are
func (s *Server) sendRoleLocked(name string) {
	role, err := s.game.RoleOf(name)
	if err != nil {
		logError("sendRole", err)
		return
	}
	data := RoleData{
		Name:              role.Name,
		Description:       role.Description,
		Faction:           role.Faction,
		Alignment:         role.Alignment,
		Abilities:         role.Abilities,
		ExecutionerTarget: s.game.ExecutionerTarget(name),
		RoleList:          s.game.RoleList(),
	}
	if role.Faction == FactionMafia {
		data.Teammates = s.game.Teammates(name)
	}
	s.hub.sendToPlayer(name, encodeMessage(MsgRole, data))
}

// shufflePlayers randomizes the seat order with crypto/rand
func shufflePlayers(names []string) {
	for i := len(names) - 1; i > 0; i-- {
		jBig, _ := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		j := int(jBig.Int64())
		names[i], names[j] = names[j], names[i]
	}
}
