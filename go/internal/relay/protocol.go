package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mcdev12/workshop/go/internal/obs"
)

// EventType is the name of an event sent to clients
type EventType string

const (
	EventStatus EventType = "status"
	EventOpen   EventType = "open"
	EventClose  EventType = "close"

	EventCocktail EventType = "cocktail"

	// EventTimerCleared is sent when the countdown is cancelled.
	EventTimerCleared EventType = "continue"
	// EventCountdownPending starts a fresh countdown (no running deadline before it).
	EventCountdownPending EventType = "pause"
	// EventCountdownReplaced replaces a deadline that had not elapsed yet.
	EventCountdownReplaced EventType = "timer"

	EventSceneError EventType = "sceneError"
)

// CommandType is the name of a command sent by a controller
type CommandType string

const (
	CommandStatus      CommandType = "status"
	CommandRefresh     CommandType = "refresh"
	CommandSetShutter  CommandType = "setShutter"
	CommandChangeScene CommandType = "changeScene"
	CommandSetCocktail CommandType = "setCocktail"
	CommandCancelTimer CommandType = "cancelTimer"
	CommandStartTimer  CommandType = "startTimer"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMalformedCommand = errors.New("malformed command")
)

// maxEpochMillis bounds endTime to integers a JSON number carries exactly
const maxEpochMillis = 1 << 53

// noCocktailWire is how the display expects "no recipe" in cocktail events
const noCocktailWire = "null"

// Event is the envelope of every outbound message
type Event struct {
	Event EventType `json:"event"`
	Data  any       `json:"data,omitempty"`
}

// StatusPayload is the full snapshot a client needs to reconstruct state
type StatusPayload struct {
	OBS         SceneSourceStatus `json:"obs"`
	ServerState ServerState       `json:"serverState"`
}

// SceneSourceStatus is the cached view of the scene switcher
type SceneSourceStatus struct {
	Scenes    []obs.Scene `json:"scenes"`
	Connected bool        `json:"connected"`
	Error     string      `json:"error,omitempty"`
}

// ServerState is SessionState in wire form. Absent values are JSON null.
type ServerState struct {
	CurrentCocktailRecipe *string `json:"currentCocktailRecipe"`
	IsShutterOpened       bool    `json:"isShutterOpened"`
	EndTime               *int64  `json:"endTime"`
}

// CocktailPayload carries the recipe to show, "null" for none
type CocktailPayload struct {
	Cocktail string `json:"cocktail"`
}

// TimerPayload carries an absolute deadline in epoch milliseconds
type TimerPayload struct {
	EndTime int64 `json:"endTime"`
}

// SceneErrorPayload reports a scene switch the scene source did not perform
type SceneErrorPayload struct {
	Scene string `json:"scene"`
	Error string `json:"error"`
}

// Command is one decoded controller command
type Command interface {
	Type() CommandType
}

type StatusCommand struct{}

type RefreshCommand struct{}

type SetShutterCommand struct {
	Opened bool
}

type ChangeSceneCommand struct {
	Scene       string
	WithShutter bool
}

// SetCocktailCommand selects a recipe; NoCocktail hides it
type SetCocktailCommand struct {
	Cocktail CocktailID
}

type CancelTimerCommand struct{}

type StartTimerCommand struct {
	EndTime time.Time
}

func (StatusCommand) Type() CommandType      { return CommandStatus }
func (RefreshCommand) Type() CommandType     { return CommandRefresh }
func (SetShutterCommand) Type() CommandType  { return CommandSetShutter }
func (ChangeSceneCommand) Type() CommandType { return CommandChangeScene }
func (SetCocktailCommand) Type() CommandType { return CommandSetCocktail }
func (CancelTimerCommand) Type() CommandType { return CommandCancelTimer }
func (StartTimerCommand) Type() CommandType  { return CommandStartTimer }

type commandEnvelope struct {
	Event CommandType     `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeCommand parses a `{event, data}` message into its command type.
// Errors wrap ErrUnknownCommand or ErrMalformedCommand.
func DecodeCommand(data []byte) (Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	switch env.Event {
	case CommandStatus:
		return StatusCommand{}, nil

	case CommandRefresh:
		return RefreshCommand{}, nil

	case CommandSetShutter:
		var p struct {
			Opened *bool `json:"opened"`
		}
		if err := env.decode(&p); err != nil {
			return nil, err
		}
		if p.Opened == nil {
			return nil, env.missing("opened")
		}
		return SetShutterCommand{Opened: *p.Opened}, nil

	case CommandChangeScene:
		var p struct {
			Scene       string `json:"scene"`
			WithShutter bool   `json:"withShutter"`
		}
		if err := env.decode(&p); err != nil {
			return nil, err
		}
		if p.Scene == "" {
			return nil, env.missing("scene")
		}
		return ChangeSceneCommand{Scene: p.Scene, WithShutter: p.WithShutter}, nil

	case CommandSetCocktail:
		var p struct {
			Cocktail json.RawMessage `json:"cocktail"`
		}
		if err := env.decode(&p); err != nil {
			return nil, err
		}
		if len(p.Cocktail) == 0 {
			return nil, env.missing("cocktail")
		}
		id, err := parseCocktail(p.Cocktail)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedCommand, env.Event, err)
		}
		return SetCocktailCommand{Cocktail: id}, nil

	case CommandCancelTimer:
		return CancelTimerCommand{}, nil

	case CommandStartTimer:
		var p struct {
			EndTime *float64 `json:"endTime"`
		}
		if err := env.decode(&p); err != nil {
			return nil, err
		}
		if p.EndTime == nil {
			return nil, env.missing("endTime")
		}
		endTime := *p.EndTime
		if math.IsNaN(endTime) || math.Abs(endTime) > maxEpochMillis {
			return nil, fmt.Errorf("%w: %s: endTime %g out of range", ErrMalformedCommand, env.Event, endTime)
		}
		return StartTimerCommand{EndTime: time.UnixMilli(int64(endTime))}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Event)
	}
}

func (e commandEnvelope) decode(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return fmt.Errorf("%w: %s: missing data", ErrMalformedCommand, e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedCommand, e.Event, err)
	}
	return nil
}

func (e commandEnvelope) missing(field string) error {
	return fmt.Errorf("%w: %s: missing %s", ErrMalformedCommand, e.Event, field)
}

func parseCocktail(raw json.RawMessage) (CocktailID, error) {
	if string(raw) == "null" {
		return NoCocktail, nil
	}

	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return NoCocktail, errors.New("cocktail must be a string or null")
	}

	switch id {
	case "", "none", noCocktailWire:
		return NoCocktail, nil
	}
	return CocktailID(id), nil
}

func statusEvent(payload StatusPayload) Event {
	return Event{Event: EventStatus, Data: payload}
}

func cocktailEvent(id CocktailID) Event {
	wire := string(id)
	if id == NoCocktail {
		wire = noCocktailWire
	}
	return Event{Event: EventCocktail, Data: CocktailPayload{Cocktail: wire}}
}

func timerEvent(eventType EventType, deadline time.Time) Event {
	return Event{Event: eventType, Data: TimerPayload{EndTime: deadline.UnixMilli()}}
}

func shutterEvent(opened bool) Event {
	if opened {
		return Event{Event: EventOpen}
	}
	return Event{Event: EventClose}
}
