package relay

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/workshop/go/internal/obs"
)

// Service wires the relay loop to its HTTP and NATS surfaces
type Service struct {
	relay        *Relay
	hub          *Hub
	wsHandler    *WebSocketHandler
	stateHandler *StateHandler
	bridge       *NATSBridge
}

// Config holds configuration for the relay service
type Config struct {
	ConnectionConfig ConnectionConfig
	RelayOptions     Options
	// NATSConfig enables the NATS bridge when set
	NATSConfig *NATSBridgeConfig
}

// DefaultConfig returns default configuration for the relay service
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		RelayOptions:     DefaultOptions(),
	}
}

// NewService creates a new relay service switching scenes through scenes
func NewService(config Config, scenes SceneSource) (*Service, error) {
	var bridge *NATSBridge
	if config.NATSConfig != nil {
		var err error
		bridge, err = NewNATSBridge(*config.NATSConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS bridge: %w", err)
		}
		config.RelayOptions.Mirror = bridge
	}

	hub := NewHub()
	relay := NewRelay(hub, scenes, config.RelayOptions)

	return &Service{
		relay:        relay,
		hub:          hub,
		wsHandler:    NewWebSocketHandler(relay, hub, config.ConnectionConfig),
		stateHandler: NewStateHandler(relay),
		bridge:       bridge,
	}, nil
}

// Start runs the relay until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting relay service")

	if s.bridge != nil {
		if err := s.bridge.Start(s.relay); err != nil {
			return err
		}
	}

	err := s.relay.Run(ctx)

	log.Info().Msg("relay service shutting down")
	if stopErr := s.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

// Stop releases the NATS connection
func (s *Service) Stop() error {
	if s.bridge == nil {
		return nil
	}
	if err := s.bridge.Close(); err != nil {
		return fmt.Errorf("failed to close NATS bridge: %w", err)
	}
	log.Info().Msg("NATS bridge closed")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("relay routes registered")
}

// NotifySceneSource matches obs.StateListener
func (s *Service) NotifySceneSource(state obs.ConnectionState, err error) {
	s.relay.NotifySceneSource(state, err)
}

// Relay returns the underlying relay
func (s *Service) Relay() *Relay {
	return s.relay
}
