package appstate

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store holds the authoritative AppState and serializes every dispatch.
// Within one client, dispatches are processed strictly in call order; the
// reduction itself is synchronous and atomic with respect to a single
// dispatch.
type Store struct {
	mu          sync.Mutex
	state       AppState
	subscribers []func(AppState)
}

// NewStore creates a store seeded with the initial application state.
func NewStore() *Store {
	return &Store{state: NewAppState()}
}

// Dispatch reduces the action into the current state and notifies
// subscribers if the state changed.
func (st *Store) Dispatch(a Action) {
	st.mu.Lock()
	prev := st.state
	next := Reduce(prev, a)
	st.state = next
	subs := st.subscribers
	st.mu.Unlock()

	log.Debug().
		Str("action", fmt.Sprintf("%T", a)).
		Str("connection", string(next.Connection.Phase)).
		Str("session", string(next.Session.Phase)).
		Msg("action dispatched")

	for _, fn := range subs {
		fn(next)
	}
}

// Subscribe registers a callback invoked after every dispatch with the new
// state. Callbacks run on the dispatching goroutine and must not block.
func (st *Store) Subscribe(fn func(AppState)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.subscribers = append(st.subscribers, fn)
}

// State returns a snapshot of the current application state.
func (st *Store) State() AppState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// IsConnected reports whether the connection slice is in the connected phase.
func (st *Store) IsConnected() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.Connection.Phase == ConnConnected
}

// CurrentGameID returns the game id of the current session, or "" when no
// game is in progress.
func (st *Store) CurrentGameID() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.Session.GameID
}

// CurrentGameState returns the latest server game state, or nil.
func (st *Store) CurrentGameState() *GameState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.Session.State
}

// SettingsUI returns the persisted settings together with the transient UI
// slice for rendering the settings panel.
func (st *Store) SettingsUI() (Settings, UIState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.Settings, st.state.UI
}

// Notifications returns the current notification list.
func (st *Store) Notifications() []Notification {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Notification, len(st.state.UI.Notifications))
	copy(out, st.state.UI.Notifications)
	return out
}
