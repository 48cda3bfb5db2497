package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Account is a registered player
type Account struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	SecretCode string `db:"secret_code"`
}

// GameRecord is one row of the game table
type GameRecord struct {
	ID              string  `db:"id"`
	Status          string  `db:"status"` // lobby, running, finished, aborted
	Phase           string  `db:"phase"`
	Subphase        string  `db:"subphase"`
	DaysPassed      float64 `db:"days_passed"`
	RoleIdentifiers string  `db:"role_identifiers"` // JSON array as entered by the host
}

// Game statuses
const (
	GameStatusLobby    = "lobby"
	GameStatusRunning  = "running"
	GameStatusFinished = "finished"
	GameStatusAborted  = "aborted"
)

// GamePlayer is a seat in a stored game
type GamePlayer struct {
	GameID   string `db:"game_id"`
	PlayerID int64  `db:"player_id"`
	Name     string `db:"name"`
	Role     string `db:"role"`
	IsAlive  bool   `db:"is_alive"`
}

// GameAction represents anything worth remembering about a game.
// Visibility determines who can see it:
//   - "public": everyone
//   - "actor": only the player who did it
//   - "team:Mafia": only the Mafia
type GameAction struct {
	ID          int64   `db:"id"`
	GameID      string  `db:"game_id"`
	DaysPassed  float64 `db:"days_passed"`
	Phase       string  `db:"phase"`
	Actor       string  `db:"actor"`
	ActionType  string  `db:"action_type"`
	Target      string  `db:"target"`
	Visibility  string  `db:"visibility"`
	Description string  `db:"description"` // human-readable history entry
}

// Action types
const (
	ActionAbility    = "ability"
	ActionVote       = "vote"
	ActionTrialVote  = "trial_vote"
	ActionDeath      = "death"
	ActionTransition = "transition"
	ActionStory      = "story"
	ActionNote       = "note"
	ActionLeave      = "leave"
)

// Visibility types
const (
	VisibilityPublic    = "public"
	VisibilityActor     = "actor"
	VisibilityTeamMafia = "team:" + string(FactionMafia)
)

// canSeeAction determines if a viewer may see an action
func canSeeAction(action GameAction, viewer string, viewerFaction Faction) bool {
	switch action.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityActor:
		return action.Actor == viewer
	case VisibilityTeamMafia:
		return viewerFaction == FactionMafia
	}
	return false
}

// Store persists accounts and game history in SQLite
type Store struct {
	db *sqlx.DB
}

// openStore connects to the data source and creates the schema
func openStore(dsn string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dsn, err)
	}
	// SQLite has a single writer, and one connection keeps an in-memory
	// database alive for as long as the store is open
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initDB() error {
	schema := `
	PRAGMA journal_mode=WAL;

	CREATE TABLE IF NOT EXISTS player (
		name TEXT UNIQUE NOT NULL,
		secret_code TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS session (
		token INTEGER PRIMARY KEY,
		player_id INTEGER NOT NULL,
		FOREIGN KEY (player_id) REFERENCES player(rowid)
	);
	CREATE TABLE IF NOT EXISTS game (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'lobby',
		phase TEXT NOT NULL DEFAULT '',
		subphase TEXT NOT NULL DEFAULT '',
		days_passed REAL NOT NULL DEFAULT 0,
		role_identifiers TEXT NOT NULL DEFAULT '[]'
	);
	CREATE TABLE IF NOT EXISTS game_player (
		game_id TEXT NOT NULL,
		player_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		is_alive INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (game_id) REFERENCES game(id),
		FOREIGN KEY (player_id) REFERENCES player(rowid),
		UNIQUE(game_id, player_id)
	);
	CREATE TABLE IF NOT EXISTS game_action (
		game_id TEXT NOT NULL,
		days_passed REAL NOT NULL,
		phase TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		action_type TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public',
		description TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (game_id) REFERENCES game(id)
	);
	CREATE INDEX IF NOT EXISTS idx_game_action_lookup ON game_action(game_id, visibility);
	CREATE TABLE IF NOT EXISTS game_death (
		game_id TEXT NOT NULL,
		days_passed REAL NOT NULL,
		victim TEXT NOT NULL,
		victim_role TEXT NOT NULL,
		killers TEXT NOT NULL,
		lynched INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (game_id) REFERENCES game(id)
	);
	CREATE TABLE IF NOT EXISTS game_winner (
		game_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		FOREIGN KEY (game_id) REFERENCES game(id),
		UNIQUE(game_id, kind, name)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		log.Printf("initDB error: %v", err)
		return err
	}
	log.Printf("Database initialized successfully")
	return nil
}

// createPlayer registers a new account
func (s *Store) createPlayer(name, secretCode string) (int64, error) {
	result, err := s.db.Exec("INSERT INTO player (name, secret_code) VALUES (?, ?)", name, secretCode)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// playerByName returns sql.ErrNoRows for unknown names
func (s *Store) playerByName(name string) (Account, error) {
	var a Account
	err := s.db.Get(&a, "SELECT rowid as id, name, secret_code FROM player WHERE name = ?", name)
	return a, err
}

// playerByCredentials returns sql.ErrNoRows on a bad name or code
func (s *Store) playerByCredentials(name, secretCode string) (Account, error) {
	var a Account
	err := s.db.Get(&a, "SELECT rowid as id, name, secret_code FROM player WHERE name = ? AND secret_code = ?", name, secretCode)
	return a, err
}

func (s *Store) playerName(playerID int64) string {
	var name string
	s.db.Get(&name, "SELECT name FROM player WHERE rowid = ?", playerID)
	return name
}

func (s *Store) createSession(token, playerID int64) error {
	_, err := s.db.Exec("INSERT INTO session (token, player_id) VALUES (?, ?)", token, playerID)
	return err
}

func (s *Store) sessionPlayer(token int64) (int64, error) {
	var playerID int64
	err := s.db.Get(&playerID, "SELECT player_id FROM session WHERE token = ?", token)
	return playerID, err
}

func (s *Store) deleteSession(token int64) error {
	_, err := s.db.Exec("DELETE FROM session WHERE token = ?", token)
	return err
}

// createGame stores a new running game with its seats
func (s *Store) createGame(ctx context.Context, gameID string, identifiers []string, seats []GamePlayer) error {
	raw, err := json.Marshal(identifiers)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO game (id, status, phase, role_identifiers) VALUES (?, ?, ?, ?)`,
		gameID, GameStatusRunning, string(PhaseNight), string(raw)); err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	for _, seat := range seats {
		seat.GameID = gameID
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO game_player (game_id, player_id, name, role, is_alive)
			VALUES (:game_id, :player_id, :name, :role, 1)`, seat); err != nil {
			return fmt.Errorf("insert seat %s: %w", seat.Name, err)
		}
	}
	return tx.Commit()
}

func (s *Store) game(gameID string) (GameRecord, error) {
	var g GameRecord
	err := s.db.Get(&g, "SELECT id, status, phase, subphase, days_passed, role_identifiers FROM game WHERE id = ?", gameID)
	return g, err
}

func (s *Store) gamePlayers(gameID string) ([]GamePlayer, error) {
	var players []GamePlayer
	err := s.db.Select(&players, `SELECT game_id, player_id, name, role, is_alive
		FROM game_player WHERE game_id = ? ORDER BY rowid`, gameID)
	return players, err
}

// recordAction appends to the game history and returns the row id
func (s *Store) recordAction(ctx context.Context, a GameAction) (int64, error) {
	if a.Visibility == "" {
		a.Visibility = VisibilityPublic
	}
	result, err := s.db.NamedExecContext(ctx, `INSERT INTO game_action
			(game_id, days_passed, phase, actor, action_type, target, visibility, description)
		VALUES (:game_id, :days_passed, :phase, :actor, :action_type, :target, :visibility, :description)`, a)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) updateDescription(ctx context.Context, actionID int64, text string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE game_action SET description = ? WHERE rowid = ?", text, actionID)
	return err
}

func (s *Store) deleteAction(ctx context.Context, actionID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM game_action WHERE rowid = ?", actionID)
	return err
}

// saveTransition writes the new phase, its deaths and any winners in one transaction
func (s *Store) saveTransition(ctx context.Context, gameID string, res PhaseTransitionResult) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status := GameStatusRunning
	if res.Winner != nil {
		status = GameStatusFinished
	}
	if _, err := tx.ExecContext(ctx, `UPDATE game SET status = ?, phase = ?, subphase = ?, days_passed = ? WHERE id = ?`,
		status, string(res.NewPhase), string(res.NewSubphase), res.DaysPassed, gameID); err != nil {
		return fmt.Errorf("update game: %w", err)
	}

	label := res.Label()
	if _, err := tx.ExecContext(ctx, `INSERT INTO game_action (game_id, days_passed, phase, action_type, visibility, description)
		VALUES (?, ?, ?, ?, ?, ?)`, gameID, res.DaysPassed, label, ActionTransition, VisibilityPublic, transitionSummary(res)); err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}

	for _, d := range res.Deaths {
		if _, err := tx.ExecContext(ctx, `INSERT INTO game_death (game_id, days_passed, victim, victim_role, killers, lynched)
			VALUES (?, ?, ?, ?, ?, ?)`, gameID, res.DaysPassed, d.Victim, d.VictimRole, strings.Join(d.Killers(), ","), d.Lynched); err != nil {
			return fmt.Errorf("insert death %s: %w", d.Victim, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE game_player SET is_alive = 0 WHERE game_id = ? AND name = ?`, gameID, d.Victim); err != nil {
			return fmt.Errorf("mark %s dead: %w", d.Victim, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO game_action (game_id, days_passed, phase, actor, action_type, target, visibility, description)
			VALUES (?, ?, ?, '', ?, ?, ?, ?)`, gameID, res.DaysPassed, label, ActionDeath, d.Victim, VisibilityPublic, deathSummary(d)); err != nil {
			return fmt.Errorf("insert death history %s: %w", d.Victim, err)
		}
	}

	if res.Winner != nil {
		for _, f := range res.Winner.Factions {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO game_winner (game_id, kind, name) VALUES (?, 'faction', ?)`, gameID, f); err != nil {
				return fmt.Errorf("insert winner: %w", err)
			}
		}
		for _, p := range res.Winner.Players {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO game_winner (game_id, kind, name) VALUES (?, 'player', ?)`, gameID, p); err != nil {
				return fmt.Errorf("insert winner: %w", err)
			}
		}
	}
	return tx.Commit()
}

// markAborted records a game that stopped on an internal error
func (s *Store) markAborted(gameID string) error {
	_, err := s.db.Exec("UPDATE game SET status = ? WHERE id = ?", GameStatusAborted, gameID)
	return err
}

// history returns the visible, non-empty history entries in order
func (s *Store) history(ctx context.Context, gameID, viewer string, viewerFaction Faction) ([]string, error) {
	var actions []GameAction
	err := s.db.SelectContext(ctx, &actions, `
		SELECT rowid as id, game_id, days_passed, phase, actor, action_type, target, visibility, description
		FROM game_action
		WHERE game_id = ? AND description != ''
		ORDER BY rowid ASC`, gameID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, a := range actions {
		if canSeeAction(a, viewer, viewerFaction) {
			out = append(out, a.Description)
		}
	}
	return out, nil
}

// publicHistory is the history everyone can see
func (s *Store) publicHistory(ctx context.Context, gameID string) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out, `
		SELECT description FROM game_action
		WHERE game_id = ? AND description != '' AND visibility = ?
		ORDER BY rowid ASC`, gameID, VisibilityPublic)
	return out, err
}

// winners returns the stored result of a finished game
func (s *Store) winners(gameID string) (*WinResult, error) {
	var rows []struct {
		Kind string `db:"kind"`
		Name string `db:"name"`
	}
	if err := s.db.Select(&rows, "SELECT kind, name FROM game_winner WHERE game_id = ? ORDER BY rowid", gameID); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, sql.ErrNoRows
	}
	res := &WinResult{}
	for _, r := range rows {
		if r.Kind == "faction" {
			res.Factions = append(res.Factions, r.Name)
		} else {
			res.Players = append(res.Players, r.Name)
		}
	}
	return res, nil
}

// isNotFound reports whether a lookup found nothing
func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func transitionSummary(res PhaseTransitionResult) string {
	var b strings.Builder
	b.WriteString(res.Label() + " began.")
	if res.OnTrial != "" && res.Verdict == "" {
		fmt.Fprintf(&b, " On trial: %s.", res.OnTrial)
	}
	if res.Verdict != "" && res.Verdict != VoteNobody {
		fmt.Fprintf(&b, " %s was found %s.", res.OnTrial, strings.ToLower(res.Verdict))
	}
	if res.Silenced {
		b.WriteString(" The town was silenced.")
	}
	if res.Winner != nil {
		fmt.Fprintf(&b, " The game is over. Winners: %s.", strings.Join(append(append([]string(nil), res.Winner.Factions...), res.Winner.Players...), ", "))
	}
	return b.String()
}

func deathSummary(d Death) string {
	if d.Lynched {
		return fmt.Sprintf("%s (%s) was lynched by the town.", d.Victim, d.VictimRole) + lastWillSummary(d)
	}
	var flavors []string
	for _, k := range d.Kills {
		if k.Flavor != "" {
			flavors = append(flavors, k.Flavor)
		}
	}
	msg := fmt.Sprintf("%s (%s) was found dead.", d.Victim, d.VictimRole)
	if len(flavors) > 0 {
		msg += " " + strings.Join(flavors, " ")
	}
	for _, k := range d.Kills {
		if k.DeathNote != "" {
			msg += fmt.Sprintf(" The killer left behind a death note: %q", k.DeathNote)
		}
	}
	return msg + lastWillSummary(d)
}

func lastWillSummary(d Death) string {
	switch {
	case d.VictimRole == unidentifiableRole:
		return " The contents of their last will could not be determined."
	case d.LastWill != "":
		return fmt.Sprintf(" They left behind a last will: %q", d.LastWill)
	}
	return ""
}
