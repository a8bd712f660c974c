package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"ewallet/internal/metrics"

	"github.com/gorilla/websocket"
)

// BalanceUpdate is pushed to every connection of a wallet owner after a
// committed balance change.
type BalanceUpdate struct {
	WalletID     string `json:"walletId"`
	WalletNumber string `json:"walletNumber"`
	Balance      string `json:"balance"`
	Currency     string `json:"currency"`
}

type envelope struct {
	Type string        `json:"type"`
	Data BalanceUpdate `json:"data"`
}

const balanceMessage = "balance"

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	upgrader websocket.Upgrader
}

// NewHub accepts connections from the given origins. "*" or no origins allows
// any origin.
func NewHub(allowedOrigins ...string) *Hub {
	h := &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID][client]; !ok {
		return
	}
	delete(h.clients[userID], client)
	close(client.send)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// Subscribers returns the number of open connections for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// BroadcastBalance never blocks: a client whose buffer is full misses the
// update and picks up the next one.
func (h *Hub) BroadcastBalance(userID string, update BalanceUpdate) {
	payload, err := json.Marshal(envelope{Type: balanceMessage, Data: update})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			metrics.BalanceUpdatesDropped.Inc()
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.clients {
		for client := range clients {
			close(client.send)
		}
		delete(h.clients, userID)
	}
}
