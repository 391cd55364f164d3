package obs

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when a request is made while no authenticated
	// session with OBS exists.
	ErrNotConnected = errors.New("obs: not connected")

	// ErrAuthenticationFailed is returned when OBS rejects the configured password.
	ErrAuthenticationFailed = errors.New("obs: authentication failed")
)

// ConnectionState is a transition of the OBS websocket session
type ConnectionState string

const (
	StateOpened      ConnectionState = "opened"
	StateClosed      ConnectionState = "closed"
	StateAuthSuccess ConnectionState = "authSuccess"
	StateAuthFailure ConnectionState = "authFailure"
)

// Scene is a switchable OBS scene as returned by GetSceneList
type Scene struct {
	Name    string      `json:"name"`
	Sources []SceneItem `json:"sources"`
}

// SceneItem is a source placed in a scene
type SceneItem struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Render bool   `json:"render"`
}

// RequestError is a request OBS answered with status "error"
type RequestError struct {
	RequestType string
	Message     string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("obs: %s failed: %s", e.RequestType, e.Message)
}

// Config holds OBS connection settings
type Config struct {
	Host           string
	Password       string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	ReconnectWait  time.Duration
}

// DefaultConfig returns the settings of a local OBS instance with the websocket
// plugin on its default port.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost:4444",
		DialTimeout:    5 * time.Second,
		RequestTimeout: 5 * time.Second,
		ReconnectWait:  5 * time.Second,
	}
}
