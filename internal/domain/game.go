// Package domain contains entity without logic, just meta-data
package domain

type GameID string

// GameState is the coarse lifecycle of a game as reported by the server.
type GameState string

const (
	StateWaiting    GameState = "waiting"
	StateInProgress GameState = "inProgress"
	StateFinished   GameState = "finished"
)

// Phase is the current stage of a game round. It is mutated only by
// authoritative server events, never inferred locally.
type Phase string

const (
	PhaseWaiting        Phase = "waiting"
	PhaseNightMafia     Phase = "nightMafia"
	PhaseNightDetective Phase = "nightDetective"
	PhaseNightDoctor    Phase = "nightDoctor"
	PhaseDay            Phase = "day"
	PhaseFinished       Phase = "finished"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseWaiting, PhaseNightMafia, PhaseNightDetective, PhaseNightDoctor, PhaseDay, PhaseFinished:
		return true
	}
	return false
}

// Night reports whether the phase is one of the night sub-phases.
func (p Phase) Night() bool {
	switch p {
	case PhaseNightMafia, PhaseNightDetective, PhaseNightDoctor:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are accepted.
func (p Phase) Terminal() bool { return p == PhaseFinished }
