package appstate

import (
	"encoding/json"
	"time"
)

// ConnPhase identifies which connection variant is active.
type ConnPhase string

const (
	ConnDisconnected ConnPhase = "disconnected"
	ConnConnecting   ConnPhase = "connecting"
	ConnConnected    ConnPhase = "connected"
	ConnReconnecting ConnPhase = "reconnecting"
)

// ConnectionState is a tagged union over the connection lifecycle. Phase
// selects the variant; the remaining fields are only meaningful for the
// phases noted on each.
type ConnectionState struct {
	Phase        ConnPhase `json:"phase"`
	Error        string    `json:"error,omitempty"`          // disconnected
	Attempt      int       `json:"attempt,omitempty"`        // connecting, reconnecting
	ClientID     string    `json:"client_id,omitempty"`      // connected
	LastClientID string    `json:"last_client_id,omitempty"` // disconnected, reconnecting
	Since        time.Time `json:"since,omitempty"`          // connected
}

// SessionPhase identifies which game-session variant is active.
type SessionPhase string

const (
	SessionNoGame   SessionPhase = "no-game"
	SessionCreating SessionPhase = "creating-game"
	SessionJoining  SessionPhase = "joining-game"
	SessionActive   SessionPhase = "active-game"
	SessionEnding   SessionPhase = "game-ending"
	SessionOver     SessionPhase = "game-over"
)

// GameState is the server-authoritative view of a game carried by inbound
// frames. The board encoding is owned by the server; the core only needs the
// turn, move list and winner to drive session transitions.
type GameState struct {
	Board  json.RawMessage `json:"board,omitempty"`
	Turn   string          `json:"turn,omitempty"`
	Moves  []string        `json:"moves,omitempty"`
	Winner string          `json:"winner,omitempty"`
}

// GameSession is a tagged union over the game lifecycle. GameID correlates
// the session with inbound frames; it is the sole correlation key.
type GameSession struct {
	Phase     SessionPhase `json:"phase"`
	GameID    string       `json:"game_id,omitempty"`
	RequestID string       `json:"request_id,omitempty"` // creating-game
	Settings  Settings     `json:"settings,omitempty"`   // creating-game
	State     *GameState   `json:"state,omitempty"`      // active-game, game-over
	LastSync  time.Time    `json:"last_sync,omitempty"`  // active-game
	Reason    string       `json:"reason,omitempty"`     // game-ending
	Winner    string       `json:"winner,omitempty"`     // game-over
}

// Settings holds user preferences for game setup and presentation.
type Settings struct {
	Mode         string `json:"mode" yaml:"mode"`
	AIDifficulty string `json:"ai_difficulty" yaml:"ai_difficulty"`
	TimeLimitSec int    `json:"time_limit_sec" yaml:"time_limit_sec"`
	BoardSize    int    `json:"board_size" yaml:"board_size"`
	Theme        string `json:"theme" yaml:"theme"`
	Sound        bool   `json:"sound" yaml:"sound"`
}

// DefaultSettings returns the settings applied on first load and restored by
// a game reset.
func DefaultSettings() Settings {
	return Settings{
		Mode:         "ai",
		AIDifficulty: "medium",
		TimeLimitSec: 300,
		BoardSize:    15,
		Theme:        "classic",
		Sound:        true,
	}
}

// NotifyLevel classifies a notification for rendering.
type NotifyLevel string

const (
	NotifyInfo    NotifyLevel = "info"
	NotifyWarning NotifyLevel = "warning"
	NotifyError   NotifyLevel = "error"
)

// Notification is a user-visible message. Sticky notifications survive until
// explicitly cleared (e.g. the multi-tab conflict warning).
type Notification struct {
	ID      string      `json:"id"`
	Level   NotifyLevel `json:"level"`
	Message string      `json:"message"`
	Sticky  bool        `json:"sticky,omitempty"`
}

// UIState is the transient per-load UI slice. SelectedHistoryIndex of -1
// means the live position is shown.
type UIState struct {
	SettingsExpanded     bool           `json:"settings_expanded"`
	SelectedHistoryIndex int            `json:"selected_history_index"`
	CreatingGame         bool           `json:"creating_game"`
	Notifications        []Notification `json:"notifications,omitempty"`
}

// AppState is the product of the four orthogonal slices. It is only ever
// produced by Reduce; transitions return a new value and never mutate the
// input.
type AppState struct {
	Connection ConnectionState `json:"connection"`
	Session    GameSession     `json:"session"`
	Settings   Settings        `json:"settings"`
	UI         UIState         `json:"ui"`
}

// NewAppState returns the initial state for a fresh client load.
func NewAppState() AppState {
	return AppState{
		Connection: ConnectionState{Phase: ConnDisconnected},
		Session:    GameSession{Phase: SessionNoGame},
		Settings:   DefaultSettings(),
		UI:         UIState{SelectedHistoryIndex: -1},
	}
}
