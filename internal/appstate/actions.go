package appstate

import "time"

// Action is the closed set of inputs the reducer accepts. Every mutation of
// AppState, whether user-driven or transport-driven, is expressed as one of
// these.
type Action interface{ isAction() }

// ConnectionStart marks the beginning of an initial connection attempt.
type ConnectionStart struct{}

// ConnectionEstablished marks a successful socket open.
type ConnectionEstablished struct {
	ClientID string
	At       time.Time
}

// ClientIDAssigned carries a server-assigned client identity that replaces
// the locally generated one on an already-connected session.
type ClientIDAssigned struct {
	ClientID string
}

// ConnectionLost marks a socket loss or a deliberate disconnect. Error is
// empty for deliberate disconnects.
type ConnectionLost struct {
	Error string
}

// ConnectionRetry marks a scheduled reconnection attempt.
type ConnectionRetry struct {
	Attempt int
}

// StartGame requests a new game with the given settings.
type StartGame struct {
	RequestID string
	Settings  Settings
}

// GameCreated confirms a StartGame request.
type GameCreated struct {
	RequestID string
	GameID    string
	State     *GameState
	At        time.Time
}

// GameCreateFailed rejects a StartGame request.
type GameCreateFailed struct {
	RequestID string
	Reason    string
}

// JoinGame requests joining an existing game.
type JoinGame struct {
	GameID string
}

// GameJoined confirms a JoinGame request.
type GameJoined struct {
	GameID string
	State  *GameState
	At     time.Time
}

// GameJoinFailed rejects a JoinGame request.
type GameJoinFailed struct {
	GameID string
	Reason string
}

// GameStateUpdated carries a server state frame for the active game.
type GameStateUpdated struct {
	GameID string
	State  *GameState
	At     time.Time
}

// MoveMade records a single move applied to the active game.
type MoveMade struct {
	GameID string
	Move   string
	At     time.Time
}

// NewGameClicked begins tearing down the current game.
type NewGameClicked struct{}

// GameEndingComplete finishes the teardown started by NewGameClicked.
type GameEndingComplete struct{}

// ResetGame clears the session and restores default settings. It never
// touches the connection slice.
type ResetGame struct{}

// TabDemoted marks this tab as secondary in a multi-tab conflict.
type TabDemoted struct {
	Message string
}

// TabPromoted marks this tab as primary again after a conflict resolved.
type TabPromoted struct{}

// UpdateSettings replaces the persisted user settings.
type UpdateSettings struct {
	Settings Settings
}

// ToggleSettingsPanel flips the settings panel expansion.
type ToggleSettingsPanel struct{}

// SelectHistoryIndex selects a move-history position, -1 for live.
type SelectHistoryIndex struct {
	Index int
}

// NotificationAdded appends a user-visible notification.
type NotificationAdded struct {
	Notification Notification
}

// NotificationDismissed removes a notification by id.
type NotificationDismissed struct {
	ID string
}

func (ConnectionStart) isAction()       {}
func (ConnectionEstablished) isAction() {}
func (ClientIDAssigned) isAction()      {}
func (ConnectionLost) isAction()        {}
func (ConnectionRetry) isAction()       {}
func (StartGame) isAction()             {}
func (GameCreated) isAction()           {}
func (GameCreateFailed) isAction()      {}
func (JoinGame) isAction()              {}
func (GameJoined) isAction()            {}
func (GameJoinFailed) isAction()        {}
func (GameStateUpdated) isAction()      {}
func (MoveMade) isAction()              {}
func (NewGameClicked) isAction()        {}
func (GameEndingComplete) isAction()    {}
func (ResetGame) isAction()             {}
func (TabDemoted) isAction()            {}
func (TabPromoted) isAction()           {}
func (UpdateSettings) isAction()        {}
func (ToggleSettingsPanel) isAction()   {}
func (SelectHistoryIndex) isAction()    {}
func (NotificationAdded) isAction()     {}
func (NotificationDismissed) isAction() {}
