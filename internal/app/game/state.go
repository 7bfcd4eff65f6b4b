// Package game mirrors the authoritative, server-pushed game timeline.
// Every inbound snapshot is treated as authoritative and overwrites local
// state idempotently; events carry no sequence numbers, so a stale resync
// arriving after a newer phase change is not detected.
package game

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mafia/internal/domain"
)

// Transition notifies consumers that the phase moved.
type Transition struct {
	From  domain.Phase
	To    domain.Phase
	Event string
}

// Snapshot is the full derived state at one point in time. Returned by
// value; callers never share memory with the machine.
type Snapshot struct {
	GameID        domain.GameID
	State         domain.GameState
	Phase         domain.Phase
	Players       []domain.Player
	Tally         map[string]int
	LastKilled    string
	Winner        string
	HasMafiaVoted bool
	HasDayVoted   bool
	Countdown     int
	Role          domain.Role
	MafiaGang     []string
	Notice        string
}

type StateMachine struct {
	mu        sync.RWMutex
	localName string
	snap      Snapshot
	subs      []chan Transition
}

func New(gameID domain.GameID, localName string) *StateMachine {
	return &StateMachine{
		localName: localName,
		snap: Snapshot{
			GameID: gameID,
			State:  domain.StateWaiting,
			Phase:  domain.PhaseWaiting,
			Tally:  make(map[string]int),
		},
	}
}

// Snapshot returns a copy of the current state. No partial updates are
// observable between consumers.
func (m *StateMachine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copySnapLocked()
}

func (m *StateMachine) copySnapLocked() Snapshot {
	out := m.snap
	out.Players = make([]domain.Player, len(m.snap.Players))
	copy(out.Players, m.snap.Players)
	out.Tally = make(map[string]int, len(m.snap.Tally))
	for k, v := range m.snap.Tally {
		out.Tally[k] = v
	}
	out.MafiaGang = append([]string(nil), m.snap.MafiaGang...)
	return out
}

// Subscribe returns a stream of phase transitions. Slow subscribers miss
// transitions rather than block the machine.
func (m *StateMachine) Subscribe() <-chan Transition {
	ch := make(chan Transition, 16)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *StateMachine) notifyLocked(tr Transition) {
	for _, ch := range m.subs {
		select {
		case ch <- tr:
		default:
			log.Warn().Str("module", "game").Str("to", string(tr.To)).Msg("dropped transition for slow subscriber")
		}
	}
}

// LocalPlayer finds the local participant in the current roster.
func (m *StateMachine) LocalPlayer() (domain.Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.snap.Players {
		if p.Name == m.localName {
			return p, true
		}
	}
	return domain.Player{}, false
}

func (m *StateMachine) LocalName() string { return m.localName }

// Eligible is the voice-session predicate: day phase and local player alive.
func (m *StateMachine) Eligible() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap.Phase != domain.PhaseDay {
		return false
	}
	for _, p := range m.snap.Players {
		if p.Name == m.localName {
			return p.IsAlive
		}
	}
	return false
}

// Reset discards all state for a brand-new game. The only way out of the
// terminal phase.
func (m *StateMachine) Reset(gameID domain.GameID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = Snapshot{
		GameID: gameID,
		State:  domain.StateWaiting,
		Phase:  domain.PhaseWaiting,
		Tally:  make(map[string]int),
	}
}

func (m *StateMachine) ApplyGameUpdated(u GameUpdated) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.Phase.Terminal() {
		return
	}
	if u.GameID != "" {
		m.snap.GameID = u.GameID
	}
	if u.State != "" {
		m.snap.State = u.State
	}
	if u.Players != nil {
		m.snap.Players = u.Players
	}
	m.setPhaseLocked(u.CurrentPhase, "gameUpdated", u.Votes, u.LastKilled)
}

func (m *StateMachine) ApplyPhaseChanged(p PhaseChanged) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.Phase.Terminal() {
		return
	}
	m.setPhaseLocked(p.Phase, "phaseChanged", nil, p.LastKilled)
}

func (m *StateMachine) ApplyGameStarted(u GameUpdated) {
	m.ApplyGameUpdated(u)
	m.mu.Lock()
	m.snap.Countdown = 0
	m.snap.Notice = "Game started!"
	m.mu.Unlock()
}

// setPhaseLocked replaces the phase atomically and recomputes the derived
// per-phase state. Duplicate delivery of the current phase is a no-op.
func (m *StateMachine) setPhaseLocked(to domain.Phase, event string, votes map[string]string, lastKilled string) {
	if !to.Valid() {
		log.Warn().Str("module", "game").Str("phase", string(to)).Msg("ignoring unknown phase")
		return
	}
	from := m.snap.Phase
	if lastKilled != "" {
		m.snap.LastKilled = lastKilled
	}
	if from == to {
		if to == domain.PhaseDay && votes != nil {
			m.rebuildTallyLocked(votes)
		}
		return
	}

	m.snap.Phase = to

	switch from {
	case domain.PhaseDay:
		m.snap.Tally = make(map[string]int)
		m.snap.HasDayVoted = false
	case domain.PhaseNightMafia:
		m.snap.HasMafiaVoted = false
	}

	switch to {
	case domain.PhaseDay:
		m.rebuildTallyLocked(votes)
		m.snap.HasDayVoted = false
	case domain.PhaseNightMafia:
		m.snap.HasMafiaVoted = false
	}
	if to.Night() && !from.Night() {
		m.snap.Notice = "Night falls"
	}

	log.Info().Str("module", "game").Str("from", string(from)).Str("to", string(to)).Str("event", event).Msg("phase transition")
	m.notifyLocked(Transition{From: from, To: to, Event: event})
}

// rebuildTallyLocked recomputes the day vote tally from scratch: one key
// per roster name, counts taken from the votes map (voter -> target).
func (m *StateMachine) rebuildTallyLocked(votes map[string]string) {
	tally := make(map[string]int, len(m.snap.Players))
	for _, p := range m.snap.Players {
		tally[p.Name] = 0
	}
	for _, target := range votes {
		if _, ok := tally[target]; ok {
			tally[target]++
		}
	}
	m.snap.Tally = tally
}

func (m *StateMachine) ApplyPlayerEliminated(e PlayerEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markDeadLocked(e.Name)
	m.snap.Notice = e.Name + " was eliminated"
}

func (m *StateMachine) ApplyDayVoteResult(r DayVoteResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markDeadLocked(r.Eliminated)
	m.snap.Notice = r.Eliminated + " was lynched by majority vote"
}

func (m *StateMachine) markDeadLocked(name string) {
	for i := range m.snap.Players {
		if m.snap.Players[i].Name == name {
			m.snap.Players[i].IsAlive = false
		}
	}
}

// ApplyGameOver enters the terminal phase. Only a Reset with a new game
// id leaves it.
func (m *StateMachine) ApplyGameOver(g GameOver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.Phase.Terminal() {
		return
	}
	m.snap.Winner = g.Winner
	m.snap.State = domain.StateFinished
	m.snap.Notice = g.Winner + " wins!"
	m.setPhaseLocked(domain.PhaseFinished, "gameOver", nil, "")
}

func (m *StateMachine) ApplyPrivateRole(r PrivateRole) {
	m.mu.Lock()
	m.snap.Role = r.Role
	m.mu.Unlock()
}

func (m *StateMachine) ApplyMafiaGang(gang []string) {
	m.mu.Lock()
	m.snap.MafiaGang = gang
	m.mu.Unlock()
}

func (m *StateMachine) ApplyPlayerJoined(e PlayerEvent) {
	m.mu.Lock()
	m.snap.Notice = e.Name + " has joined"
	m.mu.Unlock()
}

func (m *StateMachine) ApplyPlayerReady(e PlayerEvent) {
	m.setReady(e.Name, true)
	m.mu.Lock()
	m.snap.Notice = e.Name + " is ready"
	m.mu.Unlock()
}

func (m *StateMachine) ApplyPlayerUnready(e PlayerEvent) {
	m.setReady(e.Name, false)
	m.mu.Lock()
	m.snap.Notice = e.Name + " is not ready"
	m.snap.Countdown = 0
	m.mu.Unlock()
}

func (m *StateMachine) setReady(name string, ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.snap.Players {
		if m.snap.Players[i].Name == name {
			m.snap.Players[i].IsReady = ready
		}
	}
}

func (m *StateMachine) ApplyCountdown(e CountdownEvent) {
	m.mu.Lock()
	m.snap.Countdown = e.Countdown
	m.mu.Unlock()
}

func (m *StateMachine) ApplyNightResult(r NightResult) {
	m.mu.Lock()
	m.snap.Notice = r.Msg
	m.mu.Unlock()
}

// ApplyInvestigationResult is only meaningful for the detective; others
// receiving it (server misdelivery) see no change.
func (m *StateMachine) ApplyInvestigationResult(r InvestigationResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.Role != domain.RoleDetective {
		return
	}
	verdict := "Not Mafia"
	if r.Result == "+ve" {
		verdict = "Mafia"
	}
	m.snap.Notice = "Investigation: " + r.Target + " is " + verdict
}

// MarkDayVoted records that the local participant cast their day vote.
func (m *StateMachine) MarkDayVoted() {
	m.mu.Lock()
	m.snap.HasDayVoted = true
	m.mu.Unlock()
}

// MarkMafiaVoted records that the local participant cast their night vote.
func (m *StateMachine) MarkMafiaVoted() {
	m.mu.Lock()
	m.snap.HasMafiaVoted = true
	m.mu.Unlock()
}

// SetNotice replaces the user-facing notice line.
func (m *StateMachine) SetNotice(msg string) {
	m.mu.Lock()
	m.snap.Notice = msg
	m.mu.Unlock()
}
