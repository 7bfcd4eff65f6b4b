package game

import "github.com/dkeye/Mafia/internal/domain"

// Wire payloads of the push events this state machine consumes.

// GameUpdated is the full-state resync event. Votes maps voter name to
// target name and may arrive bundled with the phase change itself.
type GameUpdated struct {
	GameID       domain.GameID     `json:"gameId,omitempty"`
	State        domain.GameState  `json:"state,omitempty"`
	CurrentPhase domain.Phase      `json:"currentPhase"`
	Players      []domain.Player   `json:"players"`
	Votes        map[string]string `json:"votes,omitempty"`
	LastKilled   string            `json:"lastKilled,omitempty"`
}

type PhaseChanged struct {
	Phase      domain.Phase `json:"phase"`
	LastKilled string       `json:"lastKilled,omitempty"`
}

type PlayerEvent struct {
	Name string `json:"name"`
}

type CountdownEvent struct {
	Countdown int `json:"countdown"`
}

type GameOver struct {
	Winner string `json:"winner"`
}

type DayVoteResult struct {
	Eliminated string `json:"eliminated"`
}

type NightResult struct {
	Msg string `json:"msg"`
}

type PrivateRole struct {
	Role domain.Role `json:"role"`
}

type InvestigationResult struct {
	Target string `json:"target"`
	Result string `json:"result"`
}
