// Package app wires the push channel events into the game state machine,
// the chat transcript and the voice session controller.
package app

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/dkeye/Mafia/internal/app/chat"
	"github.com/dkeye/Mafia/internal/app/game"
	"github.com/dkeye/Mafia/internal/app/voice"
	"github.com/dkeye/Mafia/internal/core"
)

// Push event names emitted by the game authority.
const (
	EventGameUpdated         = "gameUpdated"
	EventGameStarted         = "gameStarted"
	EventPhaseChanged        = "phaseChanged"
	EventPlayerJoined        = "playerJoined"
	EventPlayerReady         = "playerReady"
	EventPlayerUnready       = "playerUnready"
	EventStartCountdown      = "startCountdown"
	EventPlayerEliminated    = "playerEliminated"
	EventNightResult         = "nightResult"
	EventDayVoteResult       = "dayVoteResult"
	EventGameOver            = "gameOver"
	EventPrivateRole         = "privateRole"
	EventMafiaGang           = "mafiaGang"
	EventInvestigationResult = "investigationResult"
	EventError               = "error"

	cmdJoinRoom = "joinRoom"
	cmdJoinGame = "joinGame"
)

// ErrChatClosed means the local player may not chat in the current phase.
var ErrChatClosed = errors.New("chat is closed for the current phase")

// Orchestrator is the session root: it owns the handler registrations on
// the push channel and routes every inbound event to its consumer. Game
// events re-evaluate the voice session after the state machine absorbs
// them, so eligibility flips are acted on exactly once per event.
type Orchestrator struct {
	push   core.PushChannel
	game   *game.StateMachine
	voice  *voice.Controller
	chat   *chat.Transcript
	logger zerolog.Logger
}

func NewOrchestrator(
	push core.PushChannel,
	sm *game.StateMachine,
	vc *voice.Controller,
	tr *chat.Transcript,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		push:   push,
		game:   sm,
		voice:  vc,
		chat:   tr,
		logger: logger.With().Str("module", "orchestrator").Logger(),
	}
}

// Bind registers every push handler. Handlers run on the channel's read
// loop; anything that round-trips through the channel is deferred to the
// voice controller's worker.
func (o *Orchestrator) Bind() {
	o.push.On(EventGameUpdated, gameEvent(o, func(u game.GameUpdated) { o.game.ApplyGameUpdated(u) }))
	o.push.On(EventGameStarted, gameEvent(o, func(u game.GameUpdated) { o.game.ApplyGameStarted(u) }))
	o.push.On(EventPhaseChanged, gameEvent(o, func(p game.PhaseChanged) { o.game.ApplyPhaseChanged(p) }))
	o.push.On(EventPlayerJoined, gameEvent(o, func(e game.PlayerEvent) { o.game.ApplyPlayerJoined(e) }))
	o.push.On(EventPlayerReady, gameEvent(o, func(e game.PlayerEvent) { o.game.ApplyPlayerReady(e) }))
	o.push.On(EventPlayerUnready, gameEvent(o, func(e game.PlayerEvent) { o.game.ApplyPlayerUnready(e) }))
	o.push.On(EventStartCountdown, gameEvent(o, func(e game.CountdownEvent) { o.game.ApplyCountdown(e) }))
	o.push.On(EventPlayerEliminated, gameEvent(o, func(e game.PlayerEvent) { o.game.ApplyPlayerEliminated(e) }))
	o.push.On(EventNightResult, gameEvent(o, func(r game.NightResult) { o.game.ApplyNightResult(r) }))
	o.push.On(EventDayVoteResult, gameEvent(o, func(r game.DayVoteResult) { o.game.ApplyDayVoteResult(r) }))
	o.push.On(EventGameOver, gameEvent(o, func(g game.GameOver) { o.game.ApplyGameOver(g) }))
	o.push.On(EventPrivateRole, gameEvent(o, func(r game.PrivateRole) { o.game.ApplyPrivateRole(r) }))
	o.push.On(EventMafiaGang, gameEvent(o, func(g []string) { o.game.ApplyMafiaGang(g) }))
	o.push.On(EventInvestigationResult, gameEvent(o, func(r game.InvestigationResult) { o.game.ApplyInvestigationResult(r) }))

	o.push.On(voice.EventRTPCapabilities, o.voice.OnCapabilities)
	o.push.On(voice.EventNewProducer, decode(o.logger, o.voice.OnNewProducer))
	o.push.On(voice.EventConsumerClosed, decode(o.logger, o.voice.OnConsumerClosed))
	o.push.On(voice.EventAudioStarted, func(json.RawMessage) { o.voice.OnAudioStarted() })
	o.push.On(voice.EventAudioStopped, func(json.RawMessage) { o.voice.OnAudioStopped() })

	o.push.On(chat.EventChatMessage, decode(o.logger, o.chat.AddPublic))
	o.push.On(chat.EventMafiaChat, decode(o.logger, o.chat.AddMafia))

	o.push.On(EventError, decode(o.logger, func(e serverError) {
		o.logger.Warn().Str("message", e.Message).Msg("authority error")
		o.game.SetNotice(e.Message)
	}))
}

type serverError struct {
	Message string `json:"message"`
}

// Announce joins the push room for the game and registers the local
// player, so the authority starts routing this game's events here.
func (o *Orchestrator) Announce() error {
	snap := o.game.Snapshot()
	if err := o.push.Emit(cmdJoinRoom, map[string]any{"gameId": snap.GameID}); err != nil {
		return err
	}
	return o.push.Emit(cmdJoinGame, map[string]any{
		"gameId":     snap.GameID,
		"playerName": o.game.LocalName(),
	})
}

// Unbind removes every handler registered by Bind.
func (o *Orchestrator) Unbind() {
	for _, ev := range []string{
		EventGameUpdated, EventGameStarted, EventPhaseChanged,
		EventPlayerJoined, EventPlayerReady, EventPlayerUnready,
		EventStartCountdown, EventPlayerEliminated, EventNightResult,
		EventDayVoteResult, EventGameOver, EventPrivateRole,
		EventMafiaGang, EventInvestigationResult, EventError,
		voice.EventRTPCapabilities, voice.EventNewProducer,
		voice.EventConsumerClosed, voice.EventAudioStarted,
		voice.EventAudioStopped,
		chat.EventChatMessage, chat.EventMafiaChat,
	} {
		o.push.Off(ev)
	}
}

// SendChat emits a public chat message when the current phase and local
// player state allow it.
func (o *Orchestrator) SendChat(message string) error {
	if !o.chat.CanSend() {
		return ErrChatClosed
	}
	return o.push.Emit(chat.EventChatMessage, chat.Inbound{
		GameID:  o.game.Snapshot().GameID,
		Name:    o.game.LocalName(),
		Message: message,
	})
}

// gameEvent decodes a payload, applies it to the state machine and then
// re-evaluates the voice session.
func gameEvent[T any](o *Orchestrator, apply func(T)) core.EventHandler {
	return func(data json.RawMessage) {
		var payload T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &payload); err != nil {
				o.logger.Warn().Err(err).Msg("bad game event payload")
				return
			}
		}
		apply(payload)
		o.voice.Evaluate()
	}
}

func decode[T any](logger zerolog.Logger, apply func(T)) core.EventHandler {
	return func(data json.RawMessage) {
		var payload T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &payload); err != nil {
				logger.Warn().Err(err).Msg("bad event payload")
				return
			}
		}
		apply(payload)
	}
}
