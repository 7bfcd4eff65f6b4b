// Package actions is the HTTP client for the game authority's action
// endpoints. Actions mutate game state; their results arrive back
// through the push channel, so responses carry little beyond errors.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mafia/internal/domain"
)

const defaultTimeout = 15 * time.Second

type Client struct {
	base   string
	http   *http.Client
	logger zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: defaultTimeout},
		logger: log.With().Str("module", "actions").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GameInfo is the authority's description of a game.
type GameInfo struct {
	GameID       domain.GameID    `json:"gameId"`
	State        domain.GameState `json:"state"`
	CurrentPhase domain.Phase     `json:"currentPhase"`
	Players      []domain.Player  `json:"players"`
	MaxPlayers   int              `json:"maxPlayers"`
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// CreateGame opens a new lobby and returns its description.
func (c *Client) CreateGame(ctx context.Context, maxPlayers int) (*GameInfo, error) {
	var out GameInfo
	err := c.post(ctx, "/api/games", map[string]any{"maxPlayers": maxPlayers}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Join adds the named player to the lobby roster.
func (c *Client) Join(ctx context.Context, gameID domain.GameID, name string) error {
	if _, err := domain.NewPlayer(name); err != nil {
		return err
	}
	return c.post(ctx, c.gamePath(gameID, "join"), map[string]any{"name": name}, nil)
}

// FetchGame reads the current game description.
func (c *Client) FetchGame(ctx context.Context, gameID domain.GameID) (*GameInfo, error) {
	var out GameInfo
	if err := c.get(ctx, c.gamePath(gameID, ""), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Ready(ctx context.Context, gameID domain.GameID, name string) error {
	return c.post(ctx, c.gamePath(gameID, "ready"), map[string]any{"name": name}, nil)
}

func (c *Client) Unready(ctx context.Context, gameID domain.GameID, name string) error {
	return c.post(ctx, c.gamePath(gameID, "unready"), map[string]any{"name": name}, nil)
}

// MafiaVote casts the night kill vote.
func (c *Client) MafiaVote(ctx context.Context, gameID domain.GameID, voter, target string) error {
	return c.post(ctx, c.gamePath(gameID, "mafiaVote"),
		map[string]any{"voterName": voter, "targetName": target}, nil)
}

// Investigate is the detective's night action.
func (c *Client) Investigate(ctx context.Context, gameID domain.GameID, investigator, target string) error {
	return c.post(ctx, c.gamePath(gameID, "investigate"),
		map[string]any{"investigatorName": investigator, "targetName": target}, nil)
}

// Save is the doctor's night action.
func (c *Client) Save(ctx context.Context, gameID domain.GameID, doctor, target string) error {
	return c.post(ctx, c.gamePath(gameID, "save"),
		map[string]any{"doctorName": doctor, "targetName": target}, nil)
}

// DayVote casts the day lynch vote.
func (c *Client) DayVote(ctx context.Context, gameID domain.GameID, voter, target string) error {
	return c.post(ctx, c.gamePath(gameID, "dayVote"),
		map[string]any{"voterName": voter, "targetName": target}, nil)
}

func (c *Client) gamePath(gameID domain.GameID, action string) string {
	p := "/api/games/" + string(gameID)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("actions %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("actions %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("actions %s: %w", path, err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("actions %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("actions %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var ae apiError
		var msg string
		if json.Unmarshal(data, &ae) == nil {
			if msg = ae.Message; msg == "" {
				msg = ae.Error
			}
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", req.URL.Path).Str("msg", msg).Msg("action rejected")
		return fmt.Errorf("actions %s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, msg)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("actions %s %s: bad response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
