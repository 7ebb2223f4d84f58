package conn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/playforge/boardsync/internal/appstate"
)

// APIClient is the request/response channel to the game server, used for
// game creation and move submission alongside the socket feed.
type APIClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// NewAPIClient creates a client for the game server HTTP API.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

// SetHeader sets a header sent on every request.
func (c *APIClient) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetTimeout overrides the per-request timeout.
func (c *APIClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// CreateGameRequest is the body for game creation.
type CreateGameRequest struct {
	RequestID string            `json:"request_id"`
	ClientID  string            `json:"client_id,omitempty"`
	Settings  appstate.Settings `json:"settings"`
}

// CreateGameResponse confirms a created game.
type CreateGameResponse struct {
	GameID string              `json:"game_id"`
	State  *appstate.GameState `json:"state,omitempty"`
}

// JoinGameResponse confirms a joined game.
type JoinGameResponse struct {
	GameID string              `json:"game_id"`
	State  *appstate.GameState `json:"state,omitempty"`
}

// MoveRequest is the body for move submission.
type MoveRequest struct {
	ClientID string `json:"client_id,omitempty"`
	Move     string `json:"move"`
}

// MoveResponse carries the authoritative state after a move.
type MoveResponse struct {
	GameID string              `json:"game_id"`
	State  *appstate.GameState `json:"state,omitempty"`
}

// CreateGame asks the server for a new game with the given settings.
func (c *APIClient) CreateGame(ctx context.Context, req CreateGameRequest) (*CreateGameResponse, error) {
	var resp CreateGameResponse
	if err := c.doJSON(ctx, http.MethodPost, "/games", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JoinGame joins an existing game by id.
func (c *APIClient) JoinGame(ctx context.Context, gameID, clientID string) (*JoinGameResponse, error) {
	body := map[string]string{"client_id": clientID}
	var resp JoinGameResponse
	if err := c.doJSON(ctx, http.MethodPost, "/games/"+gameID+"/join", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitMove submits a move for the given game.
func (c *APIClient) SubmitMove(ctx context.Context, gameID string, req MoveRequest) (*MoveResponse, error) {
	var resp MoveResponse
	if err := c.doJSON(ctx, http.MethodPost, "/games/"+gameID+"/moves", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchGameState retrieves the current authoritative state of a game.
func (c *APIClient) FetchGameState(ctx context.Context, gameID string) (*appstate.GameState, error) {
	var resp GameStatePayload
	if err := c.doJSON(ctx, http.MethodGet, "/games/"+gameID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.State, nil
}

func (c *APIClient) doJSON(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
