package relay

import (
	"sync"
	"time"

	"github.com/mcdev12/workshop/go/internal/obs"
)

// CocktailID identifies a recipe the display knows how to render
type CocktailID string

// NoCocktail means no recipe is displayed
const NoCocktail CocktailID = ""

// CocktailCatalog is the closed set of recipes a controller may select
type CocktailCatalog map[CocktailID]struct{}

// NewCocktailCatalog builds a catalog from recipe ids
func NewCocktailCatalog(ids []string) CocktailCatalog {
	catalog := make(CocktailCatalog, len(ids))
	for _, id := range ids {
		catalog[CocktailID(id)] = struct{}{}
	}
	return catalog
}

// Contains reports whether id may be displayed. NoCocktail is always allowed.
func (c CocktailCatalog) Contains(id CocktailID) bool {
	if id == NoCocktail {
		return true
	}
	_, ok := c[id]
	return ok
}

// SessionState is the shared state every display converges to
type SessionState struct {
	ShutterOpen    bool
	ActiveCocktail CocktailID
	// TimerDeadline is when the countdown reaches zero, nil when no timer runs.
	// It is never cleared by the passage of time.
	TimerDeadline *time.Time
}

func (s SessionState) clone() SessionState {
	if s.TimerDeadline != nil {
		deadline := *s.TimerDeadline
		s.TimerDeadline = &deadline
	}
	return s
}

// StateStore holds the session state and the cached scene list. Readers
// always see a whole update or none of it.
type StateStore struct {
	mu sync.RWMutex

	state SessionState

	scenes         []obs.Scene
	sceneConnected bool
	sceneErr       string
}

// NewStateStore returns a store with the shutter closed, no recipe and no timer
func NewStateStore() *StateStore {
	return &StateStore{
		scenes: []obs.Scene{},
	}
}

// Get returns a copy of the current session state
func (s *StateStore) Get() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Apply mutates the session state atomically
func (s *StateStore) Apply(mutate func(state *SessionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.state)
}

// SetScenes replaces the cached scene list and clears any scene source error
func (s *StateStore) SetScenes(scenes []obs.Scene) {
	if scenes == nil {
		scenes = []obs.Scene{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenes = scenes
	s.sceneErr = ""
}

// SetSceneSourceStatus records the scene source connection state
func (s *StateStore) SetSceneSourceStatus(connected bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sceneConnected = connected
	s.sceneErr = ""
	if err != nil {
		s.sceneErr = err.Error()
	}
}

// SetSceneSourceError keeps the cached list but reports err in snapshots
func (s *StateStore) SetSceneSourceError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sceneErr = err.Error()
}

// HasScene reports whether name is in the cached scene list
func (s *StateStore) HasScene(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, scene := range s.scenes {
		if scene.Name == name {
			return true
		}
	}
	return false
}

// Snapshot returns the status payload for the current state
func (s *StateStore) Snapshot() StatusPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scenes := make([]obs.Scene, len(s.scenes))
	copy(scenes, s.scenes)

	payload := StatusPayload{
		OBS: SceneSourceStatus{
			Scenes:    scenes,
			Connected: s.sceneConnected,
			Error:     s.sceneErr,
		},
		ServerState: ServerState{
			IsShutterOpened: s.state.ShutterOpen,
		},
	}

	if s.state.ActiveCocktail != NoCocktail {
		cocktail := string(s.state.ActiveCocktail)
		payload.ServerState.CurrentCocktailRecipe = &cocktail
	}
	if s.state.TimerDeadline != nil {
		endTime := s.state.TimerDeadline.UnixMilli()
		payload.ServerState.EndTime = &endTime
	}

	return payload
}
