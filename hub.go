package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSMessage represents a message from the client
type WSMessage struct {
	Action      string   `json:"action"`
	Identifiers []string `json:"identifiers,omitempty"`
	Ability     string   `json:"ability,omitempty"`
	Args        []string `json:"args,omitempty"`
	Target      string   `json:"target,omitempty"`
	Verdict     string   `json:"verdict,omitempty"`
	Text        string   `json:"text,omitempty"`
}

// Outgoing message types
const (
	MsgLobby    = "lobby"
	MsgRole     = "role"
	MsgPhase    = "phase"
	MsgFeedback = "feedback"
	MsgDeaths   = "deaths"
	MsgVotes    = "votes"
	MsgWinner   = "winner"
	MsgStory    = "story"
	MsgState    = "state"
	MsgToast    = "toast"
)

// outMessage is the envelope of everything the server sends
type outMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func encodeMessage(kind string, data any) []byte {
	b, err := json.Marshal(outMessage{Type: kind, Data: data})
	if err != nil {
		logError("encodeMessage "+kind, err)
		return nil
	}
	return b
}

// Client represents a websocket connection with player info
type Client struct {
	conn     *websocket.Conn
	playerID int64
	name     string
	writeMu  sync.Mutex // Serialize writes to WebSocket (required by gorilla/websocket)
}

func (c *Client) write(message []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// Hub tracks the open connections and fans messages out to them
type Hub struct {
	clients    map[*websocket.Conn]*Client
	register   chan *Client
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	done       chan struct{}
	wg         sync.WaitGroup

	// Called from the hub goroutine without the hub lock held
	onJoin  func(*Client)
	onLeave func(*Client)
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*Client),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn, 64),
		done:       make(chan struct{}),
	}
}

// stop signals the hub goroutine to exit and waits for it to finish
func (h *Hub) stop() {
	close(h.done)
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// sendToPlayer writes to every connection of the named player
func (h *Hub) sendToPlayer(name string, message []byte) {
	if message == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.name != name {
			continue
		}
		LogWSMessage("OUT", name, string(message))
		if err := client.write(message); err != nil {
			log.Printf("WebSocket write error to player %s: %v", name, err)
			// The read loop notices the closed connection and unregisters it
			client.conn.Close()
		}
	}
}

// broadcast writes to every connection
func (h *Hub) broadcast(message []byte) {
	if message == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	LogWSMessage("OUT", "*", string(message))
	for _, client := range h.clients {
		if err := client.write(message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			client.conn.Close()
		}
	}
}

// connectedNames lists the players with at least one open connection
func (h *Hub) connectedNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var names []string
	for _, c := range h.clients {
		names = appendUnique(names, c.name)
	}
	return names
}

func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) run() {
	h.wg.Add(1)
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client connected (player %d: %s). Total: %d", client.playerID, client.name, total)
			DebugLog("hub.register", "Player '%s' (ID: %d) connected via WebSocket", client.name, client.playerID)
			if h.onJoin != nil {
				h.onJoin(client)
			}

		case conn := <-h.unregister:
			var left *Client
			h.mu.Lock()
			client, ok := h.clients[conn]
			if ok {
				delete(h.clients, conn)
				conn.Close()

				// Check if player has any remaining connections
				hasOtherConn := false
				for _, c := range h.clients {
					if c.playerID == client.playerID {
						hasOtherConn = true
						break
					}
				}
				if !hasOtherConn {
					DebugLog("hub.unregister", "Player '%s' (ID: %d) has no more connections", client.name, client.playerID)
					left = client
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected. Total: %d", total)
			// onLeave broadcasts, which needs the read lock
			if left != nil && h.onLeave != nil {
				h.onLeave(left)
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	account, err := s.accountFromSession(r)
	if err != nil {
		DebugLog("handleWebSocket", "Rejected WebSocket connection - not logged in")
		http.Error(w, "Not logged in", http.StatusUnauthorized)
		return
	}
	DebugLog("handleWebSocket", "Player '%s' (ID: %d) initiating WebSocket connection", account.Name, account.ID)

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error for player %d (%s): %v", account.ID, account.Name, err)
		return
	}

	client := &Client{conn: conn, playerID: account.ID, name: account.Name}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}
	s.metrics.connections.Inc()

	// Handle messages and disconnection
	go func() {
		defer func() {
			s.metrics.connections.Dec()
			select {
			case s.hub.unregister <- conn:
			case <-s.hub.done:
			}
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleWSMessage(client, message)
		}
	}()
}
