package relay

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades HTTP requests into relay connections
type WebSocketHandler struct {
	relay    *Relay
	hub      *Hub
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(relay *Relay, hub *Hub, config ConnectionConfig) *WebSocketHandler {
	return &WebSocketHandler{
		relay: relay,
		hub:   hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			EnableCompression: config.EnableCompression,
			CheckOrigin:       config.CheckOrigin,
		},
		config: config,
	}
}

// HandleConnection upgrades the request and hands the socket to the relay
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied with an HTTP error
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade WebSocket connection")
		return
	}

	connection := newConnection(uuid.New().String(), conn, h.relay, h.config)
	connection.Start()

	log.Info().
		Str("connection_id", connection.ID()).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")
}

// HandleRoot serves the socket on "/" for clients that connect to the bare host
func (h *WebSocketHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || !websocket.IsWebSocketUpgrade(r) {
		http.NotFound(w, r)
		return
	}
	h.HandleConnection(w, r)
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]int{
		"total_connections": h.hub.Count(),
	}); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("/", h.HandleRoot)
}
