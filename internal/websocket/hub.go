package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"diarylink/internal/models"
)

// Hub tracks the active pending-feed subscribers. A user may hold several
// connections at once (phone and laptop); every connection gets every
// snapshot. Lookups vastly outnumber connect/disconnect, hence the RWMutex
// registry instead of a channel loop.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[client.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[client.UserID] = conns
	}
	conns[client] = struct{}{}
	log.Printf("客户端已注册: UserID %s (%d 个连接)", client.UserID, len(conns))
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, present := conns[client]; !present {
		return
	}
	delete(conns, client)
	close(client.send)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
	log.Printf("客户端已注销: UserID %s", client.UserID)
}

// HasSubscribers reports whether the user has at least one live connection
// on this instance. Used to skip snapshot rebuilds nobody would receive.
func (h *Hub) HasSubscribers(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// PushSnapshot delivers a full pending snapshot to every connection the user
// holds on this instance. Sends are non-blocking: a connection whose buffer
// is full is dropped and will reconnect with a fresh snapshot, which the
// at-least-once full-state contract makes safe.
func (h *Hub) PushSnapshot(userID string, snapshot *models.PendingSnapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("Hub: failed to marshal snapshot for user %s: %v", userID, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.clients[userID]
	for client := range conns {
		select {
		case client.send <- payload:
		default:
			log.Printf("警告: UserID %s 的发送通道已满，移除客户端。", userID)
			delete(conns, client)
			close(client.send)
		}
	}
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
}
