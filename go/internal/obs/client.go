package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 10 * time.Second

// StateListener is notified on every connection state transition. err is set
// for StateClosed and StateAuthFailure when a cause is known.
type StateListener func(state ConnectionState, err error)

// Client is an obs-websocket 4.x client. Requests are correlated by message-id
// so several callers may use the client concurrently.
type Client struct {
	config Config
	dialer *websocket.Dialer
	clock  clockwork.Clock

	mu            sync.Mutex
	conn          *websocket.Conn
	pending       map[string]chan []byte
	authenticated bool
	listener      StateListener

	writeMu sync.Mutex
}

// NewClient creates a client for the OBS instance described by config
func NewClient(config Config) *Client {
	defaults := DefaultConfig()
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaults.DialTimeout
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.ReconnectWait <= 0 {
		config.ReconnectWait = defaults.ReconnectWait
	}

	return &Client{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: config.DialTimeout},
		clock:  clockwork.NewRealClock(),
	}
}

// OnStateChange registers the listener for connection state transitions
func (c *Client) OnStateChange(listener StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
}

// Connected reports whether an authenticated session is currently open
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.authenticated
}

// Run keeps a session with OBS open until ctx is cancelled. A dropped
// connection is retried after ReconnectWait; an authentication failure is
// not retried and is returned.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.connectAndServe(ctx)
		if errors.Is(err, ErrAuthenticationFailed) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		log.Warn().
			Err(err).
			Str("host", c.config.Host).
			Dur("retry_in", c.config.ReconnectWait).
			Msg("OBS connection lost")

		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(c.config.ReconnectWait):
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url(), nil)
	if err != nil {
		return fmt.Errorf("dial OBS: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.pending = make(map[string]chan []byte)
	c.mu.Unlock()

	log.Info().Str("host", c.config.Host).Msg("OBS connected")
	c.notify(StateOpened, nil)

	done := make(chan error, 1)
	go func() {
		done <- c.readLoop(conn)
	}()

	if err := c.authenticate(ctx); err != nil {
		conn.Close()
		<-done
		c.teardown()

		if errors.Is(err, ErrAuthenticationFailed) {
			log.Error().Err(err).Str("host", c.config.Host).Msg("OBS authentication failure")
			c.notify(StateAuthFailure, err)
		} else {
			log.Warn().Err(err).Str("host", c.config.Host).Msg("OBS lost connection")
			c.notify(StateClosed, err)
		}
		return err
	}

	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()

	log.Info().Str("host", c.config.Host).Msg("OBS authentication success")
	c.notify(StateAuthSuccess, nil)

	select {
	case err = <-done:
	case <-ctx.Done():
		conn.Close()
		<-done
		err = ctx.Err()
	}

	c.teardown()
	log.Warn().Err(err).Str("host", c.config.Host).Msg("OBS lost connection")
	c.notify(StateClosed, err)
	return err
}

func (c *Client) authenticate(ctx context.Context) error {
	var auth authRequiredResponse
	if err := c.call(ctx, requestGetAuthRequired, nil, &auth); err != nil {
		return err
	}
	if !auth.AuthRequired {
		return nil
	}
	if c.config.Password == "" {
		return fmt.Errorf("%w: OBS requires a password", ErrAuthenticationFailed)
	}

	params := map[string]any{
		"auth": authResponse(c.config.Password, auth.Salt, auth.Challenge),
	}
	err := c.call(ctx, requestAuthenticate, params, nil)

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, reqErr.Message)
	}
	return err
}

// ListScenes fetches the current scene list
func (c *Client) ListScenes(ctx context.Context) ([]Scene, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}

	var resp sceneListResponse
	if err := c.call(ctx, requestGetSceneList, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Scenes == nil {
		resp.Scenes = []Scene{}
	}
	return resp.Scenes, nil
}

// SetActiveScene switches the program output to the named scene
func (c *Client) SetActiveScene(ctx context.Context, name string) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.call(ctx, requestSetCurrentScene, map[string]any{"scene-name": name}, nil)
}

// Close drops the current connection; Run returns once its context is done.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) call(ctx context.Context, requestType string, params map[string]any, out any) error {
	id := uuid.NewString()
	msg := map[string]any{
		"request-type": requestType,
		"message-id":   id,
	}
	for k, v := range params {
		msg[k] = v
	}

	ch := make(chan []byte, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("send %s: %w", requestType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	select {
	case data, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}

		var status envelope
		if err := json.Unmarshal(data, &status); err != nil {
			return fmt.Errorf("decode %s response: %w", requestType, err)
		}
		if status.Status != "ok" {
			return &RequestError{RequestType: requestType, Message: status.Error}
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode %s response: %w", requestType, err)
			}
		}
		return nil

	case <-ctx.Done():
		c.forget(id)
		return fmt.Errorf("%s: %w", requestType, ctx.Err())
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Msg("invalid message from OBS")
			continue
		}

		if env.UpdateType != "" {
			log.Debug().Str("update_type", env.UpdateType).Msg("OBS event")
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[env.MessageID]
		delete(c.pending, env.MessageID)
		c.mu.Unlock()

		if ok {
			ch <- data
		}
	}
}

// teardown fails every in-flight request. It must only run after readLoop returned.
func (c *Client) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.conn = nil
	c.authenticated = false
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) notify(state ConnectionState, err error) {
	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener(state, err)
	}
}

func (c *Client) url() string {
	if strings.HasPrefix(c.config.Host, "ws://") || strings.HasPrefix(c.config.Host, "wss://") {
		return c.config.Host
	}
	return "ws://" + c.config.Host
}
