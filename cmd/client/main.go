package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mafia/internal/adapters/actions"
	"github.com/dkeye/Mafia/internal/adapters/httpapi"
	"github.com/dkeye/Mafia/internal/adapters/media"
	"github.com/dkeye/Mafia/internal/adapters/push"
	"github.com/dkeye/Mafia/internal/adapters/rtc"
	"github.com/dkeye/Mafia/internal/app"
	"github.com/dkeye/Mafia/internal/app/chat"
	"github.com/dkeye/Mafia/internal/app/game"
	"github.com/dkeye/Mafia/internal/app/voice"
	"github.com/dkeye/Mafia/internal/config"
	"github.com/dkeye/Mafia/internal/core"
	"github.com/dkeye/Mafia/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	api := actions.NewClient(cfg.ServerURL)

	gameID, err := resolveGame(ctx, cfg, api)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create or join game")
	}
	log.Info().Str("game_id", string(gameID)).Str("player", cfg.PlayerName).Msg("joined game")

	channel, err := push.Dial(ctx, cfg.PushURL, push.WithAckTimeout(cfg.AckTimeout))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to dial push channel")
	}
	defer channel.Close()

	sm := game.New(gameID, cfg.PlayerName)
	seedRoster(ctx, api, sm, gameID)

	device := voice.NewDevice()
	rtcConfig := rtc.DefaultWebRTCConfig(cfg.STUNURLs)
	transports := voice.NewTransportManager(channel, gameID, func(dir voice.Direction) (core.MediaConn, error) {
		return rtc.NewConn(rtcConfig, string(dir), dir == voice.DirectionRecv)
	})
	registry := voice.NewRegistry(channel, gameID, cfg.PlayerName, device, func() core.PlaybackSink {
		return media.NewRTPSink(nil, cfg.PlayerName)
	})
	controller := voice.NewController(
		channel, sm, device, transports, registry,
		func(context.Context) (core.CaptureSource, error) { return media.OpenMicrophone() },
		gameID, log.Logger,
	)

	transcript := chat.NewTranscript(sm)
	orch := app.NewOrchestrator(channel, sm, controller, transcript, log.Logger)
	orch.Bind()
	defer orch.Unbind()
	if err := orch.Announce(); err != nil {
		log.Warn().Err(err).Msg("room announcement failed")
	}

	go controller.Run(ctx)

	r := httpapi.SetupRouter(cfg, httpapi.Deps{
		Game:    sm,
		Voice:   controller,
		Chat:    transcript,
		Orch:    orch,
		Actions: api,
	})
	addr := fmt.Sprintf(":%d", cfg.ControlPort)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Mafia client started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Client exited gracefully")
}

// resolveGame joins the configured game, creating a fresh one when no
// game id was configured.
func resolveGame(ctx context.Context, cfg *config.Config, api *actions.Client) (domain.GameID, error) {
	gameID := domain.GameID(cfg.GameID)
	if gameID == "" {
		info, err := api.CreateGame(ctx, cfg.MaxPlayers)
		if err != nil {
			return "", err
		}
		gameID = info.GameID
		log.Info().Str("game_id", string(gameID)).Msg("created game")
	}
	if err := api.Join(ctx, gameID, cfg.PlayerName); err != nil {
		return "", err
	}
	return gameID, nil
}

// seedRoster primes the state machine from a one-shot fetch so the UI is
// not empty before the first push event lands.
func seedRoster(ctx context.Context, api *actions.Client, sm *game.StateMachine, gameID domain.GameID) {
	info, err := api.FetchGame(ctx, gameID)
	if err != nil {
		log.Warn().Err(err).Msg("initial game fetch failed, waiting for push events")
		return
	}
	sm.ApplyGameUpdated(game.GameUpdated{
		GameID:       info.GameID,
		State:        info.State,
		CurrentPhase: info.CurrentPhase,
		Players:      info.Players,
	})
}
