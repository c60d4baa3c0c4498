package sse

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/notification"
)

// Hub manages SSE clients and fans notifications out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*notification.SSEClient
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*notification.SSEClient),
		logger:  logger.With().Str("component", "sse").Logger(),
	}
}

func (h *Hub) Register(client *notification.SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) BroadcastToAll(message *notification.SSEMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.send(c, message)
	}
}

func (h *Hub) BroadcastToWallet(walletID string, message *notification.SSEMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.WalletID != nil && *c.WalletID == walletID && subscribed(c, message.Event) {
			h.send(c, message)
		}
	}
}

// Notify delivers msg to the wallet's clients. Wallet-less messages go to
// every client.
func (h *Hub) Notify(ctx context.Context, msg *notification.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", string(msg.Topic)).Msg("failed to marshal notification")
		return
	}
	out := notification.NewSSEMessage(string(msg.Topic), data)
	if msg.WalletID == "" {
		h.BroadcastToAll(out)
		return
	}
	h.BroadcastToWallet(msg.WalletID, out)
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

// subscribed reports whether the client listens to topic. Clients without
// groups receive every topic.
func subscribed(c *notification.SSEClient, topic string) bool {
	if len(c.Groups) == 0 {
		return true
	}
	for _, g := range c.Groups {
		if g == topic {
			return true
		}
	}
	return false
}

// send drops the message when the client's buffer is full.
func (h *Hub) send(c *notification.SSEClient, msg *notification.SSEMessage) {
	select {
	case c.MessageChan <- msg:
	default:
		h.logger.Debug().Str("clientId", c.ClientID).Str("event", msg.Event).Msg("client buffer full, message dropped")
	}
}
