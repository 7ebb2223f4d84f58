package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/playforge/boardsync/internal/appstate"
)

// ErrNotConnected is returned when a request requires an open connection and
// there is none. Requests fail fast; they are never queued silently.
var ErrNotConnected = errors.New("not connected to game server")

// Config holds configuration for the connection manager.
type Config struct {
	WSURL           string
	APIURL          string
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	MaxAttempts     int
	MonitorInterval time.Duration
	DialTimeout     time.Duration
	WriteTimeout    time.Duration
	PingInterval    time.Duration
}

// DefaultConfig returns default connection manager configuration.
func DefaultConfig() Config {
	return Config{
		WSURL:           "ws://localhost:8080/ws",
		APIURL:          "http://localhost:8080",
		BackoffBase:     time.Second,
		BackoffCap:      30 * time.Second,
		MaxAttempts:     5,
		MonitorInterval: 10 * time.Second,
		DialTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
	}
}

// Socket is the subset of the websocket connection the manager uses. It
// exists so transport event handling is unit-testable without a real server.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Socket to the given URL.
type Dialer func(ctx context.Context, url string) (Socket, error)

// GorillaDialer dials a real websocket connection.
func GorillaDialer(handshakeTimeout time.Duration) Dialer {
	return func(ctx context.Context, url string) (Socket, error) {
		d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		sock, _, err := d.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return sock, nil
	}
}

// Manager owns exactly one live socket to the game server, keeps it alive
// with capped exponential backoff, and translates between typed client
// operations and wire frames / state-machine actions.
type Manager struct {
	cfg   Config
	store *appstate.Store
	api   *APIClient
	dial  Dialer
	clock clockwork.Clock

	mu           sync.Mutex
	sock         Socket
	gen          int // socket generation; stale read loops bail on mismatch
	connecting   bool
	attempt      int
	retryTimer   clockwork.Timer
	manualClose  bool
	shouldBeOpen bool
	lastClientID string
	baseCtx      context.Context // from Connect; bounds retry dials
	writeMu      sync.Mutex
}

// NewManager creates a connection manager dispatching into the given store.
func NewManager(cfg Config, store *appstate.Store, clock clockwork.Clock) *Manager {
	return &Manager{
		cfg:   cfg,
		store: store,
		api:   NewAPIClient(cfg.APIURL),
		dial:  GorillaDialer(cfg.DialTimeout),
		clock: clock,
	}
}

// SetDialer replaces the socket dialer, e.g. with a fake in tests.
func (m *Manager) SetDialer(d Dialer) { m.dial = d }

// API exposes the underlying HTTP client.
func (m *Manager) API() *APIClient { return m.api }

// Connect opens the socket if it is not already open. It is idempotent with
// respect to an open socket, and a connect guard prevents overlapping dials
// from creating duplicate sockets.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.sock != nil || m.connecting {
		m.mu.Unlock()
		return nil
	}
	m.connecting = true
	m.manualClose = false
	m.shouldBeOpen = true
	m.baseCtx = ctx
	m.cancelRetryLocked()
	m.mu.Unlock()

	m.store.Dispatch(appstate.ConnectionStart{})
	return m.dialAndInstall(ctx)
}

// Disconnect deliberately closes the socket, cancels any pending retry, and
// disables auto-reconnect so the reconnection loop never silently undoes it.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manualClose = true
	m.shouldBeOpen = false
	m.cancelRetryLocked()
	sock := m.sock
	m.sock = nil
	m.gen++
	m.mu.Unlock()

	if sock != nil {
		if err := sock.Close(); err != nil {
			log.Debug().Err(err).Msg("error closing socket on disconnect")
		}
	}
	m.store.Dispatch(appstate.ConnectionLost{})
	log.Info().Msg("disconnected from game server")
}

// RunMonitor periodically detects a socket that should be open but is not,
// with no retry scheduled, and re-triggers Connect. Close events can be
// missed in backgrounded tabs, so the close-event path alone is not enough.
func (m *Manager) RunMonitor(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.mu.Lock()
			stalled := m.shouldBeOpen && m.sock == nil && !m.connecting && m.retryTimer == nil
			m.mu.Unlock()
			if stalled {
				log.Warn().Msg("connection monitor found a dead socket, reconnecting")
				if err := m.Connect(ctx); err != nil {
					log.Debug().Err(err).Msg("monitor reconnect attempt failed")
				}
			}
		}
	}
}

// CreateGame requests a new game. It requires an open connection and fails
// synchronously otherwise, issuing zero network calls.
func (m *Manager) CreateGame(ctx context.Context, settings appstate.Settings) error {
	if !m.store.IsConnected() {
		return ErrNotConnected
	}

	requestID := uuid.New().String()
	m.store.Dispatch(appstate.StartGame{RequestID: requestID, Settings: settings})

	resp, err := m.api.CreateGame(ctx, CreateGameRequest{
		RequestID: requestID,
		ClientID:  m.clientID(),
		Settings:  settings,
	})
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("game creation failed")
		m.store.Dispatch(appstate.GameCreateFailed{RequestID: requestID, Reason: err.Error()})
		return fmt.Errorf("create game: %w", err)
	}

	m.store.Dispatch(appstate.GameCreated{
		RequestID: requestID,
		GameID:    resp.GameID,
		State:     resp.State,
		At:        m.clock.Now(),
	})
	m.subscribeGame(resp.GameID)

	log.Info().Str("game_id", resp.GameID).Msg("game created")
	return nil
}

// JoinGame joins an existing game by id.
func (m *Manager) JoinGame(ctx context.Context, gameID string) error {
	if !m.store.IsConnected() {
		return ErrNotConnected
	}

	m.store.Dispatch(appstate.JoinGame{GameID: gameID})

	resp, err := m.api.JoinGame(ctx, gameID, m.clientID())
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("join failed")
		m.store.Dispatch(appstate.GameJoinFailed{GameID: gameID, Reason: err.Error()})
		return fmt.Errorf("join game: %w", err)
	}

	m.store.Dispatch(appstate.GameJoined{
		GameID: resp.GameID,
		State:  resp.State,
		At:     m.clock.Now(),
	})
	m.subscribeGame(resp.GameID)
	return nil
}

// MakeMove submits a move for the given game and dispatches the resulting
// authoritative state.
func (m *Manager) MakeMove(ctx context.Context, gameID, move string) error {
	if !m.store.IsConnected() {
		return ErrNotConnected
	}

	resp, err := m.api.SubmitMove(ctx, gameID, MoveRequest{ClientID: m.clientID(), Move: move})
	if err != nil {
		return fmt.Errorf("submit move: %w", err)
	}

	m.store.Dispatch(appstate.GameStateUpdated{
		GameID: resp.GameID,
		State:  resp.State,
		At:     m.clock.Now(),
	})
	return nil
}

// RequestGameState fetches the current state of a game, e.g. after resuming.
func (m *Manager) RequestGameState(ctx context.Context, gameID string) error {
	if !m.store.IsConnected() {
		return ErrNotConnected
	}

	state, err := m.api.FetchGameState(ctx, gameID)
	if err != nil {
		return fmt.Errorf("fetch game state: %w", err)
	}

	m.store.Dispatch(appstate.GameStateUpdated{
		GameID: gameID,
		State:  state,
		At:     m.clock.Now(),
	})
	return nil
}

func (m *Manager) clientID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastClientID
}

func (m *Manager) dialAndInstall(ctx context.Context) error {
	m.mu.Lock()
	genBefore := m.gen
	m.mu.Unlock()

	sock, err := m.dial(ctx, m.cfg.WSURL)
	if err != nil {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
		log.Error().Err(err).Str("url", m.cfg.WSURL).Msg("dial failed")
		m.handleFailure(err)
		return fmt.Errorf("dial: %w", err)
	}

	m.mu.Lock()
	if m.manualClose || m.gen != genBefore {
		// A deliberate disconnect intervened while the dial was in flight; the
		// socket it produced must not outlive it.
		m.connecting = false
		m.mu.Unlock()
		if cerr := sock.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("error closing superseded socket")
		}
		log.Info().Msg("discarding socket dialed across a disconnect")
		return nil
	}
	m.gen++
	gen := m.gen
	m.sock = sock
	m.connecting = false
	m.attempt = 0
	clientID := m.lastClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}
	m.lastClientID = clientID
	m.mu.Unlock()

	m.store.Dispatch(appstate.ConnectionEstablished{ClientID: clientID, At: m.clock.Now()})
	log.Info().Str("client_id", clientID).Str("url", m.cfg.WSURL).Msg("connected to game server")

	go m.readLoop(gen, sock)
	go m.pingLoop(gen, sock)
	return nil
}

// handleFailure runs on dial failures and unexpected closes. It surfaces the
// loss, then schedules a capped-backoff retry unless this was a deliberate
// disconnect or the attempt budget is exhausted.
func (m *Manager) handleFailure(err error) {
	m.store.Dispatch(appstate.ConnectionLost{Error: err.Error()})

	m.mu.Lock()
	if m.manualClose {
		m.mu.Unlock()
		return
	}
	if m.attempt >= m.cfg.MaxAttempts {
		m.shouldBeOpen = false
		m.mu.Unlock()
		log.Error().Err(err).Int("attempts", m.cfg.MaxAttempts).Msg("giving up on reconnection")
		m.store.Dispatch(appstate.NotificationAdded{Notification: appstate.Notification{
			ID:      "connection-lost",
			Level:   appstate.NotifyError,
			Message: fmt.Sprintf("connection lost after %d attempts", m.cfg.MaxAttempts),
			Sticky:  true,
		}})
		return
	}

	delay := backoffDelay(m.cfg.BackoffBase, m.cfg.BackoffCap, m.attempt)
	m.attempt++
	n := m.attempt
	m.retryTimer = m.clock.AfterFunc(delay, func() { m.retry(n) })
	m.mu.Unlock()

	log.Info().Dur("delay", delay).Int("attempt", n).Msg("reconnect scheduled")
}

func (m *Manager) retry(attempt int) {
	m.mu.Lock()
	m.retryTimer = nil
	if m.manualClose || m.sock != nil || m.connecting {
		m.mu.Unlock()
		return
	}
	m.connecting = true
	ctx := m.baseCtx
	m.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	m.store.Dispatch(appstate.ConnectionRetry{Attempt: attempt})
	if err := m.dialAndInstall(ctx); err != nil {
		log.Debug().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
	}
}

func (m *Manager) cancelRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func backoffDelay(base, limit time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > limit || delay <= 0 {
		return limit
	}
	return delay
}

func (m *Manager) readLoop(gen int, sock Socket) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			m.mu.Lock()
			if gen != m.gen {
				// A newer socket replaced this one; nothing to do.
				m.mu.Unlock()
				return
			}
			m.sock = nil
			manual := m.manualClose
			m.mu.Unlock()

			if manual {
				return
			}
			log.Warn().Err(err).Msg("socket closed unexpectedly")
			m.handleFailure(err)
			return
		}
		m.HandleFrame(data)
	}
}

func (m *Manager) pingLoop(gen int, sock Socket) {
	ticker := m.clock.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for range ticker.Chan() {
		m.mu.Lock()
		stale := gen != m.gen || m.sock == nil
		m.mu.Unlock()
		if stale {
			return
		}
		if err := m.writeFrameRaw(sock, websocket.PingMessage, nil); err != nil {
			log.Debug().Err(err).Msg("ping failed")
			return
		}
	}
}

// HandleFrame routes one inbound frame into state-machine actions. A
// malformed frame is logged and dropped, never thrown; frames whose game id
// does not match the current session are discarded.
func (m *Manager) HandleFrame(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	payload, err := ParseFramePayload(frame)
	if err != nil {
		log.Warn().Err(err).Str("type", string(frame.Type)).Msg("dropping frame with bad payload")
		return
	}

	switch frame.Type {
	case FrameWelcome:
		p := payload.(WelcomePayload)
		m.mu.Lock()
		if p.ClientID != "" {
			m.lastClientID = p.ClientID
		}
		m.mu.Unlock()
		m.store.Dispatch(appstate.ConnectionEstablished{ClientID: p.ClientID, At: m.clock.Now()})
		m.store.Dispatch(appstate.ClientIDAssigned{ClientID: p.ClientID})

	case FrameGameCreated:
		p := payload.(GameCreatedPayload)
		m.store.Dispatch(appstate.GameCreated{
			RequestID: p.RequestID,
			GameID:    frame.GameID,
			State:     p.State,
			At:        m.clock.Now(),
		})

	case FrameGameState:
		if m.staleFrame(frame) {
			return
		}
		p := payload.(GameStatePayload)
		m.store.Dispatch(appstate.GameStateUpdated{
			GameID: frame.GameID,
			State:  p.State,
			At:     m.clock.Now(),
		})

	case FrameMoveMade:
		if m.staleFrame(frame) {
			return
		}
		p := payload.(MoveMadePayload)
		m.store.Dispatch(appstate.MoveMade{
			GameID: frame.GameID,
			Move:   p.Move,
			At:     m.clock.Now(),
		})

	case FrameGameOver:
		if m.staleFrame(frame) {
			return
		}
		p := payload.(GameOverPayload)
		state := p.State
		if state == nil {
			state = &appstate.GameState{}
		}
		if state.Winner == "" {
			state.Winner = p.Winner
		}
		m.store.Dispatch(appstate.GameStateUpdated{
			GameID: frame.GameID,
			State:  state,
			At:     m.clock.Now(),
		})

	case FrameError:
		log.Error().Str("error", frame.Error).Str("game_id", frame.GameID).Msg("server error frame")
		m.store.Dispatch(appstate.NotificationAdded{Notification: appstate.Notification{
			ID:      uuid.New().String(),
			Level:   appstate.NotifyError,
			Message: frame.Error,
		}})

	default:
		log.Debug().Str("type", string(frame.Type)).Msg("ignoring unknown frame type")
	}
}

// staleFrame reports whether the frame references a game other than the
// session's current one. Session identity is the sole correlation key.
func (m *Manager) staleFrame(frame Frame) bool {
	current := m.store.CurrentGameID()
	if frame.GameID == current {
		return false
	}
	log.Debug().
		Str("frame_game_id", frame.GameID).
		Str("session_game_id", current).
		Str("type", string(frame.Type)).
		Msg("discarding stale frame")
	return true
}

// subscribeGame establishes the per-game sub-channel on the socket.
func (m *Manager) subscribeGame(gameID string) {
	m.mu.Lock()
	sock := m.sock
	m.mu.Unlock()
	if sock == nil {
		return
	}

	data, err := json.Marshal(Frame{Type: FrameSubscribe, GameID: gameID})
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode subscribe frame")
		return
	}
	if err := m.writeFrameRaw(sock, websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("failed to subscribe to game channel")
	}
}

func (m *Manager) writeFrameRaw(sock Socket, messageType int, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := sock.SetWriteDeadline(m.clock.Now().Add(m.cfg.WriteTimeout)); err != nil {
		return err
	}
	return sock.WriteMessage(messageType, data)
}
