package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mafia/internal/adapters/actions"
	"github.com/dkeye/Mafia/internal/adapters/httpapi"
	"github.com/dkeye/Mafia/internal/app"
	"github.com/dkeye/Mafia/internal/app/chat"
	"github.com/dkeye/Mafia/internal/app/game"
	"github.com/dkeye/Mafia/internal/app/voice"
	"github.com/dkeye/Mafia/internal/config"
	"github.com/dkeye/Mafia/internal/core"
	"github.com/dkeye/Mafia/internal/domain"
)

type nopPush struct {
	emitted []string
}

func (n *nopPush) Emit(event string, payload any) error {
	n.emitted = append(n.emitted, event)
	return nil
}

func (n *nopPush) Request(ctx context.Context, event string, payload any, reply any) error {
	return nil
}

func (n *nopPush) On(string, core.EventHandler) {}
func (n *nopPush) Off(string)                   {}
func (n *nopPush) Close()                       {}

type harness struct {
	router   http.Handler
	push     *nopPush
	sm       *game.StateMachine
	upstream *[]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	push := &nopPush{}
	sm := game.New("g1", "alice")
	sm.ApplyGameUpdated(game.GameUpdated{
		State:        domain.StateInProgress,
		CurrentPhase: domain.PhaseDay,
		Players: []domain.Player{
			{ID: "1", Name: "alice", IsAlive: true},
			{ID: "2", Name: "bob", IsAlive: true},
		},
	})

	device := voice.NewDevice()
	tm := voice.NewTransportManager(push, "g1", nil)
	reg := voice.NewRegistry(push, "g1", "alice", device, nil)
	ctl := voice.NewController(push, sm, device, tm, reg, nil, "g1", zerolog.Nop())
	transcript := chat.NewTranscript(sm)
	orch := app.NewOrchestrator(push, sm, ctl, transcript, zerolog.Nop())

	var upstreamPaths []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamPaths = append(upstreamPaths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{Mode: "release", ControlPort: 0}
	router := httpapi.SetupRouter(cfg, httpapi.Deps{
		Game:    sm,
		Voice:   ctl,
		Chat:    transcript,
		Orch:    orch,
		Actions: actions.NewClient(upstream.URL),
	})
	return &harness{router: router, push: push, sm: sm, upstream: &upstreamPaths}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestRouter_StateReportsGameAndSession(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Game struct {
			Phase   domain.Phase    `json:"Phase"`
			Players []domain.Player `json:"Players"`
		} `json:"game"`
		Session string `json:"session"`
		Muted   bool   `json:"muted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.PhaseDay, resp.Game.Phase)
	assert.Len(t, resp.Game.Players, 2)
	assert.Equal(t, "idle", resp.Session)
	assert.True(t, resp.Muted, "no capture source means muted")
}

func TestRouter_MuteWithoutSessionConflicts(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/unmute", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_RetryAlwaysSucceeds(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/retry", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_ChatRoundTrip(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, h.push.emitted, "chatMessage")

	w = h.do(t, http.MethodGet, "/api/chat", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ChatRejectedAtNight(t *testing.T) {
	h := newHarness(t)
	h.sm.ApplyPhaseChanged(game.PhaseChanged{Phase: domain.PhaseNightMafia})

	w := h.do(t, http.MethodPost, "/api/chat", `{"message":"psst"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_ChatRequiresMessage(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/chat", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_DayVoteProxiesAndMarks(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/dayVote", `{"target":"bob"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, *h.upstream, "/api/games/g1/dayVote")
	assert.True(t, h.sm.Snapshot().HasDayVoted)
}

func TestRouter_VoteRequiresTarget(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/dayVote", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, *h.upstream)
}

func TestRouter_ReadyProxies(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/ready", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, *h.upstream, "/api/games/g1/ready")
}

func TestRouter_UpstreamFailureIsBadGateway(t *testing.T) {
	h := newHarness(t)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	cfg := &config.Config{Mode: "release"}
	router := httpapi.SetupRouter(cfg, httpapi.Deps{
		Game:    h.sm,
		Voice:   nil,
		Chat:    nil,
		Orch:    nil,
		Actions: actions.NewClient(broken.URL),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
