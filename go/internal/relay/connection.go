package relay

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	// EnableCompression negotiates permessage-deflate with clients that offer it
	EnableCompression bool
	CheckOrigin       func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    1 << 20,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		SendBufferSize:    256,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Connection is a WebSocket client of the relay
type Connection struct {
	id     string
	conn   *websocket.Conn
	relay  *Relay
	config ConnectionConfig

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	ConnectedAt time.Time
}

func newConnection(id string, conn *websocket.Conn, relay *Relay, config ConnectionConfig) *Connection {
	conn.EnableWriteCompression(config.EnableCompression)

	return &Connection{
		id:          id,
		conn:        conn,
		relay:       relay,
		config:      config,
		send:        make(chan []byte, config.SendBufferSize),
		done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}
}

func (c *Connection) ID() string { return c.id }

// Send queues data for the write pump. It never blocks: a full buffer means
// the client is too slow and the caller should drop it.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which closes the socket
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// Start registers the connection with the relay and starts its pumps. The
// relay queues the snapshot before any command read from this socket.
func (c *Connection) Start() {
	c.relay.Connect(c)

	go c.writePump()
	go c.readPump()
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump forwards client messages to the relay until the socket fails
func (c *Connection) readPump() {
	defer func() {
		c.relay.Disconnect(c)
		c.Close()

		log.Info().
			Str("connection_id", c.id).
			Dur("connected_for", time.Since(c.ConnectedAt)).
			Msg("WebSocket connection closed")
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.relay.Submit(c, message)
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
}
