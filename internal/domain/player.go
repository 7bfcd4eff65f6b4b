package domain

import "errors"

const MaxPlayerNameLen = 36

var (
	ErrPlayerNameTooLong = errors.New("player name too long")
	ErrPlayerNameEmpty   = errors.New("player name empty")
)

// Role is private information, known only to its owner and to members
// of the same faction.
type Role string

const (
	RoleMafia     Role = "Mafia"
	RoleGodfather Role = "Godfather"
	RoleDetective Role = "Detective"
	RoleDoctor    Role = "Doctor"
	RoleVillager  Role = "Villager"
)

// Mafioso reports whether the role belongs to the mafia faction.
func (r Role) Mafioso() bool { return r == RoleMafia || r == RoleGodfather }

type PlayerID string

// Player is a roster entry as pushed by the server. Display names are
// unique within a game but not globally.
type Player struct {
	ID      PlayerID `json:"id,omitempty"`
	Name    string   `json:"name"`
	IsAlive bool     `json:"isAlive"`
	IsReady bool     `json:"isReady"`
	Role    Role     `json:"role,omitempty"`
}

// NewPlayer is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewPlayer(name string) (*Player, error) {
	if len(name) == 0 {
		return nil, ErrPlayerNameEmpty
	}
	if len(name) > MaxPlayerNameLen {
		return nil, ErrPlayerNameTooLong
	}
	return &Player{Name: name, IsAlive: true}, nil
}
