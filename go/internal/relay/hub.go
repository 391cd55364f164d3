package relay

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Client is one connected consumer of relay events. Displays and controllers
// are not distinguished.
type Client interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Hub fans events out to every registered client
type Hub struct {
	clients map[string]Client
	mu      sync.RWMutex
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]Client),
	}
}

// Register adds a client
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	h.clients[c.ID()] = c
	count := len(h.clients)
	h.mu.Unlock()

	log.Info().
		Str("connection_id", c.ID()).
		Int("total_connections", count).
		Msg("client registered")
}

// Unregister removes a client; it reports false if the client was not registered
func (h *Hub) Unregister(c Client) bool {
	h.mu.Lock()
	_, exists := h.clients[c.ID()]
	delete(h.clients, c.ID())
	count := len(h.clients)
	h.mu.Unlock()

	if exists {
		log.Info().
			Str("connection_id", c.ID()).
			Int("total_connections", count).
			Msg("client unregistered")
	}
	return exists
}

// Broadcast sends data to every client. A client that fails to accept the
// message is dropped and closed; the others are unaffected.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	targets := make([]Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(data); err != nil {
			h.drop(c, err)
		}
	}
}

// SendTo sends data to a single client, dropping it on failure
func (h *Hub) SendTo(c Client, data []byte) {
	if err := c.Send(data); err != nil {
		h.drop(c, err)
	}
}

// Count returns the number of registered clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) drop(c Client, err error) {
	log.Warn().
		Err(err).
		Str("connection_id", c.ID()).
		Msg("send failed, closing connection")

	h.Unregister(c)
	if closeErr := c.Close(); closeErr != nil {
		log.Debug().Err(closeErr).Str("connection_id", c.ID()).Msg("close after failed send")
	}
}
