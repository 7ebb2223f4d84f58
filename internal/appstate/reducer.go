package appstate

// TabConflictNoticeID is the fixed id of the sticky multi-tab warning so that
// promotion can clear exactly the notification demotion added.
const TabConflictNoticeID = "tab-conflict"

// Reduce applies a single action to the state and returns the next state.
// Actions that are not legal for the current variant return the input
// unchanged; a stray or duplicate event must never corrupt state. Reduce
// never mutates its input.
func Reduce(s AppState, a Action) AppState {
	switch act := a.(type) {

	case ConnectionStart:
		if s.Connection.Phase != ConnDisconnected {
			return s
		}
		s.Connection = ConnectionState{Phase: ConnConnecting, Attempt: 1}
		return s

	case ConnectionEstablished:
		if s.Connection.Phase != ConnConnecting && s.Connection.Phase != ConnReconnecting {
			return s
		}
		s.Connection = ConnectionState{
			Phase:    ConnConnected,
			ClientID: act.ClientID,
			Since:    act.At,
		}
		return s

	case ClientIDAssigned:
		if s.Connection.Phase != ConnConnected || act.ClientID == "" {
			return s
		}
		s.Connection.ClientID = act.ClientID
		return s

	case ConnectionLost:
		if s.Connection.Phase == ConnDisconnected {
			return s
		}
		last := s.Connection.ClientID
		if last == "" {
			last = s.Connection.LastClientID
		}
		s.Connection = ConnectionState{
			Phase:        ConnDisconnected,
			Error:        act.Error,
			LastClientID: last,
		}
		return s

	case ConnectionRetry:
		if s.Connection.Phase != ConnDisconnected {
			return s
		}
		if last := s.Connection.LastClientID; last != "" {
			s.Connection = ConnectionState{
				Phase:        ConnReconnecting,
				LastClientID: last,
				Attempt:      act.Attempt,
			}
		} else {
			s.Connection = ConnectionState{Phase: ConnConnecting, Attempt: act.Attempt}
		}
		return s

	case StartGame:
		// Both preconditions checked inside the same reduction so the check
		// cannot race with a concurrent dispatch.
		if s.Connection.Phase != ConnConnected || s.Session.Phase != SessionNoGame {
			return s
		}
		s.Session = GameSession{
			Phase:     SessionCreating,
			RequestID: act.RequestID,
			Settings:  act.Settings,
		}
		s.UI.CreatingGame = true
		return s

	case GameCreated:
		if s.Session.Phase != SessionCreating {
			return s
		}
		// The request id is the only correlation key before a game id exists,
		// so an empty one cannot be accepted.
		if act.RequestID != s.Session.RequestID {
			return s
		}
		s.Session = GameSession{
			Phase:    SessionActive,
			GameID:   act.GameID,
			State:    act.State,
			LastSync: act.At,
		}
		s.UI.CreatingGame = false
		return s

	case GameCreateFailed:
		if s.Session.Phase != SessionCreating {
			return s
		}
		if act.RequestID != s.Session.RequestID {
			return s
		}
		s.Session = GameSession{Phase: SessionNoGame}
		s.UI.CreatingGame = false
		s.UI = withNotification(s.UI, Notification{
			ID:      "create-failed:" + act.RequestID,
			Level:   NotifyError,
			Message: act.Reason,
		})
		return s

	case JoinGame:
		if s.Connection.Phase != ConnConnected || s.Session.Phase != SessionNoGame {
			return s
		}
		s.Session = GameSession{Phase: SessionJoining, GameID: act.GameID}
		return s

	case GameJoined:
		if s.Session.Phase != SessionJoining || s.Session.GameID != act.GameID {
			return s
		}
		s.Session = GameSession{
			Phase:    SessionActive,
			GameID:   act.GameID,
			State:    act.State,
			LastSync: act.At,
		}
		return s

	case GameJoinFailed:
		if s.Session.Phase != SessionJoining || s.Session.GameID != act.GameID {
			return s
		}
		s.Session = GameSession{Phase: SessionNoGame}
		s.UI = withNotification(s.UI, Notification{
			ID:      "join-failed:" + act.GameID,
			Level:   NotifyError,
			Message: act.Reason,
		})
		return s

	case GameStateUpdated:
		// Stale frames referencing an abandoned game must not mutate the
		// active session.
		if s.Session.Phase != SessionActive || s.Session.GameID != act.GameID {
			return s
		}
		if act.State != nil && act.State.Winner != "" {
			s.Session = GameSession{
				Phase:  SessionOver,
				GameID: act.GameID,
				State:  act.State,
				Winner: act.State.Winner,
			}
			return s
		}
		s.Session.State = act.State
		s.Session.LastSync = act.At
		return s

	case MoveMade:
		if s.Session.Phase != SessionActive || s.Session.GameID != act.GameID {
			return s
		}
		var next GameState
		if s.Session.State != nil {
			next = *s.Session.State
		}
		moves := make([]string, 0, len(next.Moves)+1)
		moves = append(moves, next.Moves...)
		next.Moves = append(moves, act.Move)
		s.Session.State = &next
		s.Session.LastSync = act.At
		return s

	case NewGameClicked:
		if s.Session.Phase != SessionActive && s.Session.Phase != SessionOver {
			return s
		}
		s.Session = GameSession{
			Phase:  SessionEnding,
			GameID: s.Session.GameID,
			Reason: "new-game",
		}
		return s

	case GameEndingComplete:
		if s.Session.Phase != SessionEnding {
			return s
		}
		s.Session = GameSession{Phase: SessionNoGame}
		return s

	case ResetGame:
		// The connection slice is deliberately untouched: starting a new game
		// must never force a reconnect.
		s.Session = GameSession{Phase: SessionNoGame}
		s.Settings = DefaultSettings()
		s.UI.CreatingGame = false
		s.UI.SelectedHistoryIndex = -1
		return s

	case TabDemoted:
		msg := act.Message
		if msg == "" {
			msg = "another tab is controlling the game"
		}
		s.UI = withNotification(s.UI, Notification{
			ID:      TabConflictNoticeID,
			Level:   NotifyWarning,
			Message: msg,
			Sticky:  true,
		})
		return s

	case TabPromoted:
		s.UI = withoutNotification(s.UI, TabConflictNoticeID)
		return s

	case UpdateSettings:
		s.Settings = act.Settings
		return s

	case ToggleSettingsPanel:
		s.UI.SettingsExpanded = !s.UI.SettingsExpanded
		return s

	case SelectHistoryIndex:
		if s.Session.Phase != SessionActive && s.Session.Phase != SessionOver {
			return s
		}
		if act.Index < -1 || act.Index >= sessionMoveCount(s.Session) {
			return s
		}
		s.UI.SelectedHistoryIndex = act.Index
		return s

	case NotificationAdded:
		s.UI = withNotification(s.UI, act.Notification)
		return s

	case NotificationDismissed:
		s.UI = withoutNotification(s.UI, act.ID)
		return s

	default:
		return s
	}
}

func sessionMoveCount(sess GameSession) int {
	if sess.State == nil {
		return 0
	}
	return len(sess.State.Moves)
}

// withNotification returns a UIState with the notification appended, replacing
// any existing notification with the same id. The input slice is never
// modified.
func withNotification(ui UIState, n Notification) UIState {
	out := make([]Notification, 0, len(ui.Notifications)+1)
	for _, existing := range ui.Notifications {
		if existing.ID != n.ID {
			out = append(out, existing)
		}
	}
	ui.Notifications = append(out, n)
	return ui
}

func withoutNotification(ui UIState, id string) UIState {
	if len(ui.Notifications) == 0 {
		return ui
	}
	out := make([]Notification, 0, len(ui.Notifications))
	for _, existing := range ui.Notifications {
		if existing.ID != id {
			out = append(out, existing)
		}
	}
	if len(out) == 0 {
		out = nil
	}
	ui.Notifications = out
	return ui
}
