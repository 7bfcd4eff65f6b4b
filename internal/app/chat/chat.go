// Package chat keeps the local message transcript. Public messages are
// recorded for everyone; mafia-channel messages only reach transcripts
// whose local player belongs to the mafia.
package chat

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mafia/internal/app/game"
	"github.com/dkeye/Mafia/internal/domain"
)

const (
	EventChatMessage = "chatMessage"
	EventMafiaChat   = "mafiaChat"

	defaultCapacity = 200
)

// Message is one transcript line.
type Message struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	// Channel is "public" or "mafia". Prefix is the sender's mafia rank
	// tag, empty on public messages.
	Channel string `json:"channel"`
	Prefix  string `json:"prefix,omitempty"`
}

// Wire payload of both chat events.
type Inbound struct {
	GameID  domain.GameID `json:"gameId,omitempty"`
	Name    string        `json:"name"`
	Message string        `json:"message"`
}

// Transcript is a bounded in-order message log.
type Transcript struct {
	game *game.StateMachine

	mu       sync.Mutex
	messages []Message
	capacity int
}

func NewTranscript(sm *game.StateMachine) *Transcript {
	return &Transcript{game: sm, capacity: defaultCapacity}
}

// AddPublic appends a public message.
func (t *Transcript) AddPublic(in Inbound) {
	t.append(Message{Name: in.Name, Message: in.Message, Channel: "public"})
}

// AddMafia appends a mafia-channel message only when the local player is
// part of the mafia. Everyone else's transcript never sees it.
func (t *Transcript) AddMafia(in Inbound) {
	snap := t.game.Snapshot()
	if !snap.Role.Mafioso() {
		log.Debug().Str("module", "chat").Str("from", in.Name).Msg("dropping mafia message for non-mafia local player")
		return
	}
	prefix := "[Mafia]"
	for _, p := range snap.Players {
		if p.Name == in.Name && p.Role == domain.RoleGodfather {
			prefix = "[Godfather]"
		}
	}
	t.append(Message{Name: in.Name, Message: in.Message, Channel: "mafia", Prefix: prefix})
}

func (t *Transcript) append(m Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, m)
	if len(t.messages) > t.capacity {
		t.messages = t.messages[len(t.messages)-t.capacity:]
	}
}

// Messages returns a copy of the transcript, oldest first.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.messages...)
}

// CanSend reports whether the local player may chat right now: alive, and
// either the day phase or the mafia night for mafia members.
func (t *Transcript) CanSend() bool {
	snap := t.game.Snapshot()
	var alive bool
	for _, p := range snap.Players {
		if p.Name == t.game.LocalName() {
			alive = p.IsAlive
		}
	}
	if !alive {
		return false
	}
	switch snap.Phase {
	case domain.PhaseDay:
		return true
	case domain.PhaseNightMafia:
		return snap.Role.Mafioso()
	}
	return false
}
