package appstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreDispatchOrder(t *testing.T) {
	st := NewStore()

	var phases []ConnPhase
	st.Subscribe(func(s AppState) {
		phases = append(phases, s.Connection.Phase)
	})

	st.Dispatch(ConnectionStart{})
	st.Dispatch(ConnectionEstablished{ClientID: "c1", At: time.Unix(1000, 0)})
	st.Dispatch(ConnectionLost{Error: "boom"})

	require.Equal(t, []ConnPhase{ConnConnecting, ConnConnected, ConnDisconnected}, phases)
}

func TestStoreDerivedReads(t *testing.T) {
	st := NewStore()
	require.False(t, st.IsConnected())
	require.Empty(t, st.CurrentGameID())
	require.Nil(t, st.CurrentGameState())

	st.Dispatch(ConnectionStart{})
	st.Dispatch(ConnectionEstablished{ClientID: "c1", At: time.Unix(1000, 0)})
	require.True(t, st.IsConnected())

	st.Dispatch(StartGame{RequestID: "r1", Settings: DefaultSettings()})
	st.Dispatch(GameCreated{RequestID: "r1", GameID: "g1", State: &GameState{Turn: "client"}})
	require.Equal(t, "g1", st.CurrentGameID())
	require.Equal(t, "client", st.CurrentGameState().Turn)

	settings, ui := st.SettingsUI()
	require.Equal(t, DefaultSettings(), settings)
	require.False(t, ui.CreatingGame)
}

func TestStoreNotificationsCopy(t *testing.T) {
	st := NewStore()
	st.Dispatch(NotificationAdded{Notification: Notification{ID: "n1", Level: NotifyInfo, Message: "hi"}})

	got := st.Notifications()
	require.Len(t, got, 1)

	got[0].Message = "mutated"
	require.Equal(t, "hi", st.Notifications()[0].Message)
}
