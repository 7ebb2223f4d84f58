package conn

import (
	"encoding/json"

	"github.com/playforge/boardsync/internal/appstate"
)

// FrameType is the wire discriminator for inbound and outbound frames.
type FrameType string

const (
	FrameWelcome     FrameType = "welcome"
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FrameGameCreated FrameType = "game_created"
	FrameGameState   FrameType = "game_state"
	FrameMoveMade    FrameType = "move_made"
	FrameGameOver    FrameType = "game_over"
	FrameError       FrameType = "error"
)

// Frame is the envelope for every socket message. GameID correlates game
// frames with the client's session.
type Frame struct {
	Type   FrameType       `json:"type"`
	GameID string          `json:"game_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// WelcomePayload identifies the client to the server session.
type WelcomePayload struct {
	ClientID string `json:"client_id"`
}

// GameCreatedPayload confirms a game creation request.
type GameCreatedPayload struct {
	RequestID string              `json:"request_id,omitempty"`
	State     *appstate.GameState `json:"state,omitempty"`
}

// GameStatePayload carries a full authoritative game state.
type GameStatePayload struct {
	State *appstate.GameState `json:"state"`
}

// MoveMadePayload carries a single applied move.
type MoveMadePayload struct {
	Move string `json:"move"`
}

// GameOverPayload carries the final state and winner.
type GameOverPayload struct {
	State  *appstate.GameState `json:"state,omitempty"`
	Winner string              `json:"winner"`
}

// ParseFramePayload parses a frame's data into the payload struct for its
// type. Unknown types return nil with no error; the caller drops them.
func ParseFramePayload(frame Frame) (interface{}, error) {
	switch frame.Type {
	case FrameWelcome:
		var payload WelcomePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case FrameGameCreated:
		var payload GameCreatedPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case FrameGameState:
		var payload GameStatePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case FrameMoveMade:
		var payload MoveMadePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case FrameGameOver:
		var payload GameOverPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil
	}
}
