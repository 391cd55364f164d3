package relay

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSBridgeConfig holds configuration for the NATS bridge
type NATSBridgeConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSBridgeConfig returns default NATS bridge configuration
func DefaultNATSBridgeConfig() NATSBridgeConfig {
	return NATSBridgeConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "workshop",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSBridge mirrors broadcast events onto NATS subjects and feeds commands
// published on NATS into the relay, so other services can drive the show.
type NATSBridge struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	config NATSBridgeConfig
}

// NewNATSBridge connects to NATS
func NewNATSBridge(config NATSBridgeConfig) (*NATSBridge, error) {
	opts := []nats.Option{
		nats.Name("workshop-relay"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSBridge{nc: nc, config: config}, nil
}

// Publish implements EventMirror
func (b *NATSBridge) Publish(eventType EventType, data []byte) {
	subject := eventSubject(b.config.SubjectPrefix, eventType)
	if err := b.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to mirror event to NATS")
	}
}

// Start subscribes to the command subject. Replies to status and refresh go
// to the request's reply subject.
func (b *NATSBridge) Start(relay *Relay) error {
	subject := commandSubject(b.config.SubjectPrefix)

	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		relay.Submit(newNATSClient(b.nc, msg.Reply), msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	b.sub = sub

	log.Info().Str("subject", subject).Msg("NATS bridge accepting commands")
	return nil
}

// Close drains the subscription and closes the connection
func (b *NATSBridge) Close() error {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("failed to unsubscribe from NATS commands")
		}
	}
	return b.nc.Drain()
}

func eventSubject(prefix string, eventType EventType) string {
	return prefix + ".events." + string(eventType)
}

func commandSubject(prefix string) string {
	return prefix + ".commands"
}

// replyPublisher is the part of *nats.Conn a reply needs
type replyPublisher interface {
	Publish(subject string, data []byte) error
}

// natsClient is the Client a NATS command is handled for. It is never
// registered with the hub, so it only receives direct replies.
type natsClient struct {
	id    string
	nc    replyPublisher
	reply string
}

func newNATSClient(nc replyPublisher, reply string) *natsClient {
	return &natsClient{
		id:    "nats-" + uuid.New().String(),
		nc:    nc,
		reply: reply,
	}
}

func (c *natsClient) ID() string { return c.id }

// Send publishes to the reply subject. Commands published without one get
// no reply.
func (c *natsClient) Send(data []byte) error {
	if c.reply == "" {
		log.Debug().Str("connection_id", c.id).Msg("NATS command has no reply subject, dropping reply")
		return nil
	}
	return c.nc.Publish(c.reply, data)
}

func (c *natsClient) Close() error { return nil }
