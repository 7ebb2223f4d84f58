// Command mockserver is a minimal game server for local development of the
// client core: it implements just enough of the HTTP API and the socket
// frame feed to drive full create/move/game-over flows.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/playforge/boardsync/internal/appstate"
	"github.com/playforge/boardsync/internal/conn"
)

// winAfterMoves ends every game after this many client moves so the
// game-over flow can be exercised quickly.
const winAfterMoves = 10

type game struct {
	ID       string
	Settings appstate.Settings
	State    *appstate.GameState
}

type server struct {
	mu       sync.Mutex
	games    map[string]*game
	subs     map[string]map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

func newServer() *server {
	return &server{
		games: make(map[string]*game),
		subs:  make(map[string]map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	s := newServer()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /games", s.handleCreateGame)
	mux.HandleFunc("POST /games/{id}/join", s.handleJoinGame)
	mux.HandleFunc("POST /games/{id}/moves", s.handleMove)
	mux.HandleFunc("GET /games/{id}", s.handleGetGame)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Warn().Err(err).Msg("failed to write health check response")
		}
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	log.Info().Str("addr", *addr).Msg("mock game server listening")
	if err := http.ListenAndServe(*addr, c.Handler(mux)); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func (s *server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req conn.CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g := &game{
		ID:       uuid.New().String(),
		Settings: req.Settings,
		State:    &appstate.GameState{Turn: "client", Moves: []string{}},
	}

	s.mu.Lock()
	s.games[g.ID] = g
	s.mu.Unlock()

	log.Info().Str("game_id", g.ID).Str("request_id", req.RequestID).Msg("game created")
	writeJSON(w, conn.CreateGameResponse{GameID: g.ID, State: g.State})
}

func (s *server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	g, ok := s.games[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	writeJSON(w, conn.JoinGameResponse{GameID: g.ID, State: g.State})
}

func (s *server) handleMove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req conn.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	g, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	next := *g.State
	next.Moves = append(append([]string{}, next.Moves...), req.Move)
	if len(next.Moves) >= winAfterMoves {
		next.Winner = "client"
	}
	g.State = &next
	state := g.State
	s.mu.Unlock()

	frameType := conn.FrameGameState
	if state.Winner != "" {
		frameType = conn.FrameGameOver
	}
	s.broadcast(id, frameType, conn.GameStatePayload{State: state})

	writeJSON(w, conn.MoveResponse{GameID: id, State: state})
}

func (s *server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	g, ok := s.games[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	writeJSON(w, conn.GameStatePayload{State: g.State})
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	welcome, _ := json.Marshal(conn.Frame{
		Type: conn.FrameWelcome,
		Data: mustJSON(conn.WelcomePayload{ClientID: uuid.New().String()}),
	})
	if err := sock.WriteMessage(websocket.TextMessage, welcome); err != nil {
		sock.Close()
		return
	}

	go s.readPump(sock)
}

func (s *server) readPump(sock *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		for _, conns := range s.subs {
			delete(conns, sock)
		}
		s.mu.Unlock()
		sock.Close()
	}()

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			return
		}
		var frame conn.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn().Err(err).Msg("dropping malformed client frame")
			continue
		}

		switch frame.Type {
		case conn.FrameSubscribe:
			s.mu.Lock()
			if s.subs[frame.GameID] == nil {
				s.subs[frame.GameID] = make(map[*websocket.Conn]bool)
			}
			s.subs[frame.GameID][sock] = true
			s.mu.Unlock()
			log.Info().Str("game_id", frame.GameID).Msg("session subscribed")
		case conn.FrameUnsubscribe:
			s.mu.Lock()
			if conns := s.subs[frame.GameID]; conns != nil {
				delete(conns, sock)
			}
			s.mu.Unlock()
		}
	}
}

func (s *server) broadcast(gameID string, frameType conn.FrameType, payload interface{}) {
	frame, err := json.Marshal(conn.Frame{
		Type:   frameType,
		GameID: gameID,
		Data:   mustJSON(payload),
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal broadcast frame")
		return
	}

	s.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(s.subs[gameID]))
	for sock := range s.subs[gameID] {
		targets = append(targets, sock)
	}
	s.mu.Unlock()

	for _, sock := range targets {
		if err := sock.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Warn().Err(err).Str("game_id", gameID).Msg("failed to write to subscriber")
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal %T: %v", v, err))
	}
	return data
}
