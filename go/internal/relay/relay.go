package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/workshop/go/internal/obs"
)

// SceneSource is the external scene switcher
type SceneSource interface {
	ListScenes(ctx context.Context) ([]obs.Scene, error)
	SetActiveScene(ctx context.Context, name string) error
}

// EventMirror receives a copy of every broadcast event
type EventMirror interface {
	Publish(eventType EventType, data []byte)
}

type noopMirror struct{}

func (noopMirror) Publish(EventType, []byte) {}

// Options configures a Relay
type Options struct {
	Clock clockwork.Clock
	// CloseDelay separates the close broadcast from the scene switch,
	// OpenDelay the scene switch from the open broadcast.
	CloseDelay   time.Duration
	OpenDelay    time.Duration
	SceneTimeout time.Duration
	Cocktails    []string
	Mirror       EventMirror
	InboxSize    int
}

// DefaultOptions returns the timings the display animations are built for
func DefaultOptions() Options {
	return Options{
		CloseDelay:   2100 * time.Millisecond,
		OpenDelay:    1000 * time.Millisecond,
		SceneTimeout: 5 * time.Second,
		Cocktails:    []string{"suikerwater", "espressoMartini", "rockstarMartini"},
		InboxSize:    256,
	}
}

// Relay owns the session state. Every command, connect and disconnect is
// handled on the goroutine running Run, one at a time, so events for a
// command go out in the order they were generated and a snapshot is never
// interleaved with a broadcast.
type Relay struct {
	store  *StateStore
	hub    *Hub
	scenes SceneSource
	clock  clockwork.Clock
	mirror EventMirror

	cocktails    CocktailCatalog
	closeDelay   time.Duration
	openDelay    time.Duration
	sceneTimeout time.Duration

	inbox chan message
	done  chan struct{}

	// owned by the Run goroutine
	runCtx     context.Context
	transition *transition
	nextTaskID uint64
}

type message any

type connectMessage struct{ client Client }

type disconnectMessage struct{ client Client }

type commandMessage struct {
	client Client
	data   []byte
}

type sceneSourceMessage struct {
	state obs.ConnectionState
	err   error
}

// stepMessage resumes work that left the loop for blocking I/O or a delay
type stepMessage struct{ fn func() }

// NewRelay creates a relay broadcasting through hub
func NewRelay(hub *Hub, scenes SceneSource, opts Options) *Relay {
	defaults := DefaultOptions()
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Mirror == nil {
		opts.Mirror = noopMirror{}
	}
	if opts.SceneTimeout <= 0 {
		opts.SceneTimeout = defaults.SceneTimeout
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaults.InboxSize
	}
	if opts.Cocktails == nil {
		opts.Cocktails = defaults.Cocktails
	}

	return &Relay{
		store:        NewStateStore(),
		hub:          hub,
		scenes:       scenes,
		clock:        opts.Clock,
		mirror:       opts.Mirror,
		cocktails:    NewCocktailCatalog(opts.Cocktails),
		closeDelay:   opts.CloseDelay,
		openDelay:    opts.OpenDelay,
		sceneTimeout: opts.SceneTimeout,
		inbox:        make(chan message, opts.InboxSize),
		done:         make(chan struct{}),
	}
}

// Run processes messages until ctx is cancelled
func (r *Relay) Run(ctx context.Context) error {
	r.runCtx = ctx
	defer close(r.done)

	log.Info().Msg("relay started")

	for {
		select {
		case <-ctx.Done():
			r.cancelTransition()
			log.Info().Msg("relay shutting down")
			return nil
		case msg := <-r.inbox:
			r.dispatch(msg)
		}
	}
}

// Connect registers client and sends it a snapshot of the current state
func (r *Relay) Connect(client Client) {
	r.post(connectMessage{client: client})
}

// Disconnect deregisters client. State is not touched.
func (r *Relay) Disconnect(client Client) {
	r.post(disconnectMessage{client: client})
}

// Submit queues a raw command from client
func (r *Relay) Submit(client Client, data []byte) {
	r.post(commandMessage{client: client, data: data})
}

// NotifySceneSource records a scene source connection transition and
// broadcasts the resulting status. It matches obs.StateListener.
func (r *Relay) NotifySceneSource(state obs.ConnectionState, err error) {
	r.post(sceneSourceMessage{state: state, err: err})
}

// Snapshot returns the status payload a new client would receive
func (r *Relay) Snapshot() StatusPayload {
	return r.store.Snapshot()
}

// State returns a copy of the session state
func (r *Relay) State() SessionState {
	return r.store.Get()
}

func (r *Relay) post(msg message) {
	select {
	case r.inbox <- msg:
	case <-r.done:
	}
}

func (r *Relay) dispatch(msg message) {
	switch m := msg.(type) {
	case connectMessage:
		r.hub.Register(m.client)
		r.sendTo(m.client, statusEvent(r.store.Snapshot()))

	case disconnectMessage:
		r.hub.Unregister(m.client)

	case commandMessage:
		r.handleCommand(m.client, m.data)

	case sceneSourceMessage:
		r.handleSceneSourceState(m.state, m.err)

	case stepMessage:
		m.fn()

	default:
		log.Error().Interface("message", msg).Msg("relay received unsupported message")
	}
}

func (r *Relay) handleSceneSourceState(state obs.ConnectionState, err error) {
	switch state {
	case obs.StateOpened:
		return

	case obs.StateAuthSuccess:
		r.store.SetSceneSourceStatus(true, nil)
		r.fetchScenes(func(err error) {
			r.broadcast(statusEvent(r.store.Snapshot()))
		})
		return

	case obs.StateAuthFailure, obs.StateClosed:
		r.store.SetSceneSourceStatus(false, err)

	default:
		log.Warn().Str("state", string(state)).Msg("unknown scene source state")
		return
	}

	r.broadcast(statusEvent(r.store.Snapshot()))
}

// fetchScenes refreshes the scene cache off the loop and calls then on the loop.
func (r *Relay) fetchScenes(then func(err error)) {
	ctx := r.runCtx
	go func() {
		ctx, cancel := context.WithTimeout(ctx, r.sceneTimeout)
		defer cancel()

		scenes, err := r.scenes.ListScenes(ctx)
		r.post(stepMessage{fn: func() {
			if err != nil {
				log.Warn().Err(err).Msg("failed to fetch scene list")
				r.store.SetSceneSourceError(err)
			} else {
				r.store.SetScenes(scenes)
				log.Debug().Int("scenes", len(scenes)).Msg("scene list refreshed")
			}
			then(err)
		}})
	}()
}

func (r *Relay) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event", string(event.Event)).Msg("failed to marshal event for broadcast")
		return
	}

	r.hub.Broadcast(data)
	r.mirror.Publish(event.Event, data)

	log.Debug().
		Str("event", string(event.Event)).
		Int("connections", r.hub.Count()).
		Msg("event broadcasted")
}

func (r *Relay) sendTo(client Client, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event", string(event.Event)).Msg("failed to marshal event")
		return
	}
	r.hub.SendTo(client, data)
}
