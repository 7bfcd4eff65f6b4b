package chat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mafia/internal/app/chat"
	"github.com/dkeye/Mafia/internal/app/game"
	"github.com/dkeye/Mafia/internal/domain"
)

func setup(t *testing.T, localRole domain.Role, phase domain.Phase, alive bool) (*game.StateMachine, *chat.Transcript) {
	t.Helper()
	sm := game.New("g1", "alice")
	sm.ApplyGameUpdated(game.GameUpdated{
		State:        domain.StateInProgress,
		CurrentPhase: phase,
		Players: []domain.Player{
			{ID: "1", Name: "alice", IsAlive: alive, Role: localRole},
			{ID: "2", Name: "bob", IsAlive: true, Role: domain.RoleGodfather},
			{ID: "3", Name: "carol", IsAlive: true, Role: domain.RoleVillager},
		},
	})
	sm.ApplyPrivateRole(game.PrivateRole{Role: localRole})
	return sm, chat.NewTranscript(sm)
}

func TestTranscript_PublicMessagesReachEveryone(t *testing.T) {
	_, tr := setup(t, domain.RoleVillager, domain.PhaseDay, true)

	tr.AddPublic(chat.Inbound{Name: "bob", Message: "hello"})

	msgs := tr.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "public", msgs[0].Channel)
	assert.Equal(t, "bob", msgs[0].Name)
	assert.Empty(t, msgs[0].Prefix)
}

func TestTranscript_MafiaMessagesHiddenFromTown(t *testing.T) {
	_, tr := setup(t, domain.RoleVillager, domain.PhaseNightMafia, true)

	tr.AddMafia(chat.Inbound{Name: "bob", Message: "target carol"})

	assert.Empty(t, tr.Messages())
}

func TestTranscript_MafiaMessagesVisibleToMafia(t *testing.T) {
	_, tr := setup(t, domain.RoleMafia, domain.PhaseNightMafia, true)

	tr.AddMafia(chat.Inbound{Name: "bob", Message: "target carol"})

	msgs := tr.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "mafia", msgs[0].Channel)
	assert.Equal(t, "[Godfather]", msgs[0].Prefix, "sender rank tags the message")
}

func TestTranscript_GodfatherSeesMafiaChannel(t *testing.T) {
	_, tr := setup(t, domain.RoleGodfather, domain.PhaseNightMafia, true)

	tr.AddMafia(chat.Inbound{Name: "carol", Message: "hm"})

	msgs := tr.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "[Mafia]", msgs[0].Prefix, "non-godfather senders get the plain tag")
}

func TestTranscript_CanSend(t *testing.T) {
	tests := []struct {
		name  string
		role  domain.Role
		phase domain.Phase
		alive bool
		want  bool
	}{
		{"villager at day", domain.RoleVillager, domain.PhaseDay, true, true},
		{"villager at mafia night", domain.RoleVillager, domain.PhaseNightMafia, true, false},
		{"mafia at mafia night", domain.RoleMafia, domain.PhaseNightMafia, true, true},
		{"godfather at mafia night", domain.RoleGodfather, domain.PhaseNightMafia, true, true},
		{"dead villager at day", domain.RoleVillager, domain.PhaseDay, false, false},
		{"anyone at doctor night", domain.RoleDoctor, domain.PhaseNightDoctor, true, false},
		{"waiting room", domain.RoleVillager, domain.PhaseWaiting, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, tr := setup(t, tt.role, tt.phase, tt.alive)
			assert.Equal(t, tt.want, tr.CanSend())
		})
	}
}

func TestTranscript_BoundedHistory(t *testing.T) {
	_, tr := setup(t, domain.RoleVillager, domain.PhaseDay, true)

	for i := 0; i < 250; i++ {
		tr.AddPublic(chat.Inbound{Name: "bob", Message: "spam"})
	}

	msgs := tr.Messages()
	assert.Len(t, msgs, 200)
}
