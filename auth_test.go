package main

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestSignup(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	alice := ts.signup(t, "Alice")
	if len(alice.secret) != 8 {
		t.Errorf("expected an 8 character secret code, got %q", alice.secret)
	}

	resp, err := alice.http.Get(ts.ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected the new session to be logged in, got %d", resp.StatusCode)
	}
	var state StateData
	if err := decodeJSON(resp, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Running || state.Lobby == nil {
		t.Errorf("expected the lobby without a game, got %+v", state)
	}
}

func TestSignupRejects(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	ts.signup(t, "Alice")

	cases := []struct {
		name   string
		status int
	}{
		{"", http.StatusBadRequest},
		{"Alice", http.StatusConflict},
		{"nobody", http.StatusBadRequest},
		{"Host", http.StatusBadRequest},
		{"**bold**", http.StatusBadRequest},
		{strings.Repeat("x", maxNameLength+1), http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, err := http.PostForm(ts.ts.URL+"/signup", url.Values{"name": {tc.name}})
		if err != nil {
			t.Fatalf("signup %q: %v", tc.name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Errorf("signup %q: expected status %d, got %d", tc.name, tc.status, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.ts.URL + "/signup")
	if err != nil {
		t.Fatalf("get signup: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected GET to be refused, got %d", resp.StatusCode)
	}
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"Alice", "Dr. Bob", "x"} {
		if !validName(name) {
			t.Errorf("expected %q to be accepted", name)
		}
	}
	for _, name := range []string{"", "Abstain", "TIE", "town", "a`b", "line\nbreak"} {
		if validName(name) {
			t.Errorf("expected %q to be refused", name)
		}
	}
}

func TestLoginAndLogout(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	alice := ts.signup(t, "Alice")

	other := ts.newClient(t)
	resp, err := other.http.PostForm(ts.ts.URL+"/login", url.Values{"name": {"Alice"}, "secret_code": {"wrong"}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	var msg struct {
		Type string `json:"type"`
		Data Toast  `json:"data"`
	}
	decodeJSON(resp, &msg)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized || msg.Data.Message != "Invalid name or secret code" {
		t.Errorf("expected 401 for a wrong code, got %d %q", resp.StatusCode, msg.Data.Message)
	}

	resp, err = other.http.PostForm(ts.ts.URL+"/login", url.Values{"name": {"Alice"}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without a code, got %d", resp.StatusCode)
	}

	resp, err = other.http.PostForm(ts.ts.URL+"/login", url.Values{"name": {"Alice"}, "secret_code": {alice.secret}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected the secret code to log in, got %d", resp.StatusCode)
	}

	resp, err = other.http.Get(ts.ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected the second device to be logged in, got %d", resp.StatusCode)
	}

	resp, err = other.http.Post(ts.ts.URL+"/logout", "text/plain", nil)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	resp, err = other.http.Get(ts.ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}

	// The first device keeps its own session
	resp, err = alice.http.Get(ts.ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected the other session to survive, got %d", resp.StatusCode)
	}
}

func TestEndpointsRequireSession(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	for _, path := range []string{"/api/state", "/api/history"} {
		resp, err := http.Get(ts.ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, resp.StatusCode)
		}
	}

	wsURL := "ws" + strings.TrimPrefix(ts.ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected the websocket to refuse an anonymous client")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 from the websocket handshake, got %v", resp)
	}
}

// ============================================================================
// Catalog Endpoint Tests
// ============================================================================

func TestRolesEndpoint(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	resp, err := http.Get(ts.ts.URL + "/api/roles")
	if err != nil {
		t.Fatalf("get roles: %v", err)
	}
	defer resp.Body.Close()
	var roles []RoleInfo
	if err := decodeJSON(resp, &roles); err != nil {
		t.Fatalf("decode roles: %v", err)
	}
	if len(roles) != len(DefaultCatalog().Roles()) {
		t.Errorf("expected every catalog role, got %d", len(roles))
	}
	for _, r := range roles {
		if r.Name == RoleGodfather && (!r.Unique || r.Faction != FactionMafia) {
			t.Errorf("expected a unique Mafia Godfather, got %+v", r)
		}
	}
}

func TestRoleListEndpoint(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	post := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(ts.ts.URL+"/api/rolelist", "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("post rolelist: %v", err)
		}
		return resp
	}

	resp := post(`{"identifiers": ["Godfather", "Random Mafia", "Town Investigative"]}`)
	var out roleListResponse
	if err := decodeJSON(resp, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(out.Roles) != 3 {
		t.Fatalf("expected three roles, got %d %v", resp.StatusCode, out.Roles)
	}
	if out.Roles[0] != RoleGodfather || !contains(out.Roles, RoleMafioso) {
		t.Errorf("expected the Godfather first and a Mafioso, got %v", out.Roles)
	}

	for _, body := range []string{`{"identifiers": []}`, `{"identifiers": ["Wizard"]}`, `not json`} {
		resp := post(body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}
}
