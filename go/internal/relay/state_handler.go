package relay

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// StateHandler serves the session state over plain HTTP
type StateHandler struct {
	relay *Relay
}

// NewStateHandler creates a new state handler
func NewStateHandler(relay *Relay) *StateHandler {
	return &StateHandler{relay: relay}
}

// HandleGetState handles GET /api/state with the payload a new socket receives
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.relay.Snapshot()); err != nil {
		log.Error().Err(err).Msg("failed to encode state response")
	}
}

// HandleHealth reports liveness
func (h *StateHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", h.HandleGetState)
	mux.HandleFunc("/health", h.HandleHealth)
}
