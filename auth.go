package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"strings"
)

const sessionCookieName = "mafia_session"

// maxNameLength keeps names readable in feedback messages
const maxNameLength = 24

func generateSecretCode() (string, error) {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, playerID int64) error {
	tokenBig, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return err
	}
	token := tokenBig.Int64()

	if err := s.store.createSession(token, playerID); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    strconv.FormatInt(token, 10),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func sessionToken(r *http.Request) (int64, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return -1, err
	}
	return strconv.ParseInt(cookie.Value, 10, 64)
}

// accountFromSession resolves the session cookie to a player
func (s *Server) accountFromSession(r *http.Request) (Account, error) {
	token, err := sessionToken(r)
	if err != nil {
		return Account{}, err
	}
	playerID, err := s.store.sessionPlayer(token)
	if err != nil {
		return Account{}, err
	}
	return Account{ID: playerID, Name: s.store.playerName(playerID)}, nil
}

// validName rejects names the engine reserves or that would garble messages
func validName(name string) bool {
	if name == "" || len(name) > maxNameLength || strings.ContainsAny(name, "*`\n") {
		return false
	}
	switch strings.ToLower(name) {
	case strings.ToLower(VoteAbstain), strings.ToLower(VoteNobody), strings.ToLower(VoteTie), "host", "town":
		return false
	}
	return true
}

type signupResponse struct {
	Name       string `json:"name"`
	SecretCode string `json:"secret_code"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		writeToast(w, http.StatusBadRequest, "error", "Name is required")
		return
	}
	if !validName(name) {
		writeToast(w, http.StatusBadRequest, "error", "That name cannot be used")
		return
	}

	_, err := s.store.playerByName(name)
	if err == nil {
		writeToast(w, http.StatusConflict, "error", "Name already taken. Use login with secret code if this is you.")
		return
	}
	if !isNotFound(err) {
		logError("handleSignup: playerByName", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}

	secretCode, err := generateSecretCode()
	if err != nil {
		logError("handleSignup: generateSecretCode", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}

	playerID, err := s.store.createPlayer(name, secretCode)
	if err != nil {
		logError("handleSignup: createPlayer", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}

	log.Printf("New player created: name='%s', id=%d", name, playerID)
	DebugLog("handleSignup", "Player '%s' signed up with ID %d", name, playerID)
	LogDBState("after signup: "+name, s.store.db)

	if err := s.setSessionCookie(w, playerID); err != nil {
		logError("handleSignup: setSessionCookie", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}
	writeJSON(w, http.StatusCreated, signupResponse{Name: name, SecretCode: secretCode})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	secretCode := r.FormValue("secret_code")

	if name == "" || secretCode == "" {
		writeToast(w, http.StatusBadRequest, "error", "Name and secret code are required")
		return
	}

	account, err := s.store.playerByCredentials(name, secretCode)
	if isNotFound(err) {
		writeToast(w, http.StatusUnauthorized, "error", "Invalid name or secret code")
		return
	}
	if err != nil {
		logError("handleLogin: playerByCredentials", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}

	log.Printf("Player logged in: name='%s', id=%d", name, account.ID)
	DebugLog("handleLogin", "Player '%s' logged in with ID %d", name, account.ID)
	if err := s.setSessionCookie(w, account.ID); err != nil {
		logError("handleLogin: setSessionCookie", err)
		writeToast(w, http.StatusInternalServerError, "error", "Something went wrong")
		return
	}
	writeToast(w, http.StatusOK, "success", "Welcome back, "+account.Name)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	account, _ := s.accountFromSession(r)

	if token, err := sessionToken(r); err == nil {
		if err := s.store.deleteSession(token); err != nil {
			logError("handleLogout: deleteSession", err)
		}
	}

	log.Printf("Player logged out: name='%s', id=%d", account.Name, account.ID)
	DebugLog("handleLogout", "Player '%s' (ID: %d) logged out", account.Name, account.ID)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeToast(w, http.StatusOK, "info", "Logged out")
}
