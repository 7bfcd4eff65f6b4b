package game_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mafia/internal/app/game"
	"github.com/dkeye/Mafia/internal/domain"
)

func roster(names ...string) []domain.Player {
	out := make([]domain.Player, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Player{ID: domain.PlayerID(n), Name: n, IsAlive: true})
	}
	return out
}

func newMachine(t *testing.T, local string, names ...string) *game.StateMachine {
	t.Helper()
	m := game.New("g1", local)
	m.ApplyGameUpdated(game.GameUpdated{
		State:        domain.StateInProgress,
		CurrentPhase: domain.PhaseWaiting,
		Players:      roster(names...),
	})
	return m
}

func TestStateMachine_TallyRebuiltFromVotes(t *testing.T) {
	m := newMachine(t, "alice", "alice", "bob", "carol")

	m.ApplyGameUpdated(game.GameUpdated{
		CurrentPhase: domain.PhaseDay,
		Players:      roster("alice", "bob", "carol"),
		Votes:        map[string]string{"alice": "carol", "bob": "carol"},
	})

	snap := m.Snapshot()
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0, "carol": 2}, snap.Tally)
}

func TestStateMachine_TallyAlwaysCoversRoster(t *testing.T) {
	m := newMachine(t, "alice", "alice", "bob")

	m.ApplyGameUpdated(game.GameUpdated{
		CurrentPhase: domain.PhaseDay,
		Players:      roster("alice", "bob"),
	})

	snap := m.Snapshot()
	require.Len(t, snap.Tally, 2)
	assert.Equal(t, 0, snap.Tally["alice"])
	assert.Equal(t, 0, snap.Tally["bob"])
}

func TestStateMachine_VoteForUnknownTargetIgnored(t *testing.T) {
	m := newMachine(t, "alice", "alice", "bob")

	m.ApplyGameUpdated(game.GameUpdated{
		CurrentPhase: domain.PhaseDay,
		Players:      roster("alice", "bob"),
		Votes:        map[string]string{"alice": "mallory"},
	})

	snap := m.Snapshot()
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, snap.Tally)
}

func TestStateMachine_LeavingDayClearsDerivedState(t *testing.T) {
	m := newMachine(t, "alice", "alice", "bob")

	m.ApplyGameUpdated(game.GameUpdated{
		CurrentPhase: domain.PhaseDay,
		Players:      roster("alice", "bob"),
		Votes:        map[string]string{"alice": "bob"},
	})
	m.MarkDayVoted()

	m.ApplyPhaseChanged(game.PhaseChanged{Phase: domain.PhaseNightMafia})

	snap := m.Snapshot()
	assert.Empty(t, snap.Tally)
	assert.False(t, snap.HasDayVoted)
}

func TestStateMachine_DuplicatePhaseIsNoOp(t *testing.T) {
	m := newMachine(t, "alice", "alice", "bob")
	ch := m.Subscribe()

	m.ApplyPhaseChanged(game.PhaseChanged{Phase: domain.PhaseDay})
	m.MarkDayVoted()
	m.ApplyPhaseChanged(game.PhaseChanged{Phase: domain.PhaseDay})

	snap := m.Snapshot()
	assert.True(t, snap.HasDayVoted, "duplicate phase must not reset vote flag")

	// Exactly one transition observed.
	<-ch
	select {
	case tr := <-ch:
		t.Fatalf("unexpected second transition: %+v", tr)
	default:
	}
}

func TestStateMachine_DuplicateDayRefreshesTally(t *testing.T) {
	m := newMachine(t, "alice", "alice", "bob", "carol")

	m.ApplyGameUpdated(game.GameUpdated{
		CurrentPhase: domain.PhaseDay,
		Players:      roster("alice", "bob", "carol"),
	})
	m.ApplyGameUpdated(game.GameUpdated{
		CurrentPhase: domain.PhaseDay,
		Players:      roster("alice", "bob", "carol"),
		Votes:        map[string]string{"bob": "alice"},
	})

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.Tally["alice"])
}

func TestStateMachine_UnknownPhaseIgnored(t *testing.T) {
	m := newMachine(t, "alice", "alice")
	m.ApplyPhaseChanged(game.PhaseChanged{Phase: domain.PhaseDay})

	m.ApplyPhaseChanged(game.PhaseChanged{Phase: "twilight"})

	assert.Equal(t, domain.PhaseDay, m.Snapshot().Phase)
}

func TestStateMachine_TerminalPhaseSticks(t *testing.T) {
	m := newMachine(t, "alice", "alice", "bob")

	m.ApplyGameOver(game.GameOver{Winner: "Mafia"})
	m.ApplyPhaseChanged(game.PhaseChanged{Phase: domain.PhaseDay})
	m.ApplyGameUpdated(game.GameUpdated{CurrentPhase: domain.PhaseDay, Players: roster("alice")})

	snap := m.Snapshot()
	assert.Equal(t, domain.PhaseFinished, snap.Phase)
	assert.Equal(t, "Mafia", snap.Winner)
	assert.Len(t, snap.Players, 2, "terminal snapshot must not change")
}

func TestStateMachine_ResetLeavesTerminal(t *testing.T) {
	m := newMachine(t, "alice", "alice")
	m.ApplyGameOver(game.GameOver{Winner: "Town"})

	m.Reset("g2")

	snap := m.Snapshot()
	assert.Equal(t, domain.GameID("g2"), snap.GameID)
	assert.Equal(t, domain.PhaseWaiting, snap.Phase)
	assert.Empty(t, snap.Winner)
}

func TestStateMachine_Eligibility(t *testing.T) {
	tests := []struct {
		name  string
		phase domain.Phase
		alive bool
		want  bool
	}{
		{"day and alive", domain.PhaseDay, true, true},
		{"day but dead", domain.PhaseDay, false, false},
		{"night and alive", domain.PhaseNightMafia, true, false},
		{"waiting", domain.PhaseWaiting, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := game.New("g1", "alice")
			players := roster("alice", "bob")
			players[0].IsAlive = tt.alive
			m.ApplyGameUpdated(game.GameUpdated{
				CurrentPhase: tt.phase,
				Players:      players,
			})
			assert.Equal(t, tt.want, m.Eligible())
		})
	}
}

func TestStateMachine_EliminationMarksDead(t *testing.T) {
	m := newMachine(t, "alice", "alice", "bob")

	m.ApplyPlayerEliminated(game.PlayerEvent{Name: "bob"})

	for _, p := range m.Snapshot().Players {
		if p.Name == "bob" {
			assert.False(t, p.IsAlive)
		}
	}
}

func TestStateMachine_SnapshotIsACopy(t *testing.T) {
	m := newMachine(t, "alice", "alice", "bob")
	m.ApplyPhaseChanged(game.PhaseChanged{Phase: domain.PhaseDay})

	snap := m.Snapshot()
	snap.Players[0].IsAlive = false
	snap.Tally["alice"] = 99

	fresh := m.Snapshot()
	assert.True(t, fresh.Players[0].IsAlive)
	assert.Equal(t, 0, fresh.Tally["alice"])
}

func TestStateMachine_InvestigationOnlyForDetective(t *testing.T) {
	m := newMachine(t, "alice", "alice", "bob")

	m.ApplyInvestigationResult(game.InvestigationResult{Target: "bob", Result: "+ve"})
	assert.NotContains(t, m.Snapshot().Notice, "Investigation")

	m.ApplyPrivateRole(game.PrivateRole{Role: domain.RoleDetective})
	m.ApplyInvestigationResult(game.InvestigationResult{Target: "bob", Result: "+ve"})
	assert.Contains(t, m.Snapshot().Notice, "bob is Mafia")
}

func TestStateMachine_UnreadyResetsCountdown(t *testing.T) {
	m := newMachine(t, "alice", "alice", "bob")

	m.ApplyCountdown(game.CountdownEvent{Countdown: 5})
	require.Equal(t, 5, m.Snapshot().Countdown)

	m.ApplyPlayerUnready(game.PlayerEvent{Name: "bob"})
	assert.Equal(t, 0, m.Snapshot().Countdown)
}

func TestStateMachine_NightfallSetsNotice(t *testing.T) {
	m := newMachine(t, "alice", "alice", "bob")

	m.ApplyPhaseChanged(game.PhaseChanged{Phase: domain.PhaseNightMafia})
	assert.Equal(t, "Night falls", m.Snapshot().Notice)

	m.SetNotice("")
	m.ApplyPhaseChanged(game.PhaseChanged{Phase: domain.PhaseNightDetective})
	assert.Empty(t, m.Snapshot().Notice, "notice announces nightfall once, not every night phase")
}
