// Package httpapi exposes the client's local control surface: session
// state for a UI, mute and retry controls, game actions and the chat
// transcript.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mafia/internal/adapters/actions"
	"github.com/dkeye/Mafia/internal/app"
	"github.com/dkeye/Mafia/internal/app/chat"
	"github.com/dkeye/Mafia/internal/app/game"
	"github.com/dkeye/Mafia/internal/app/voice"
	"github.com/dkeye/Mafia/internal/config"
	"github.com/dkeye/Mafia/internal/domain"
)

type Deps struct {
	Game    *game.StateMachine
	Voice   *voice.Controller
	Chat    *chat.Transcript
	Orch    *app.Orchestrator
	Actions *actions.Client
}

type stateResponse struct {
	Game      game.Snapshot   `json:"game"`
	Session   string          `json:"session"`
	Condition voice.Condition `json:"condition"`
	Muted     bool            `json:"muted"`
	Level     float64         `json:"level"`
	Producers int             `json:"producers"`
	Consumers int             `json:"consumers"`
	Speaking  []string        `json:"speaking"`
}

type targetRequest struct {
	Target string `json:"target" binding:"required"`
}

func SetupRouter(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.httpapi").Int("port", cfg.ControlPort).Msg("router setup")

	api := r.Group("/api")

	api.GET("/state", func(c *gin.Context) {
		count, owners := d.Voice.Consumers()
		c.JSON(http.StatusOK, stateResponse{
			Game:      d.Game.Snapshot(),
			Session:   d.Voice.State().String(),
			Condition: d.Voice.Condition(),
			Muted:     d.Voice.Muted(),
			Level:     d.Voice.Level(),
			Producers: d.Voice.Producers(),
			Consumers: count,
			Speaking:  owners,
		})
	})

	api.POST("/mute", func(c *gin.Context) {
		if err := d.Voice.SetMuted(true); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/unmute", func(c *gin.Context) {
		if err := d.Voice.SetMuted(false); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/retry", func(c *gin.Context) {
		d.Voice.Retry()
		c.Status(http.StatusNoContent)
	})

	api.GET("/chat", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"messages": d.Chat.Messages()})
	})

	api.POST("/chat", func(c *gin.Context) {
		var req struct {
			Message string `json:"message" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := d.Orch.SendChat(req.Message); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	registerActions(api, d)

	return r
}

// registerActions proxies the game authority's action endpoints so a UI
// only ever talks to the local client.
func registerActions(api *gin.RouterGroup, d Deps) {
	snapID := func() (domain.GameID, string) {
		snap := d.Game.Snapshot()
		return snap.GameID, d.Game.LocalName()
	}

	api.POST("/ready", func(c *gin.Context) {
		gameID, name := snapID()
		if err := d.Actions.Ready(c.Request.Context(), gameID, name); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/unready", func(c *gin.Context) {
		gameID, name := snapID()
		if err := d.Actions.Unready(c.Request.Context(), gameID, name); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/dayVote", func(c *gin.Context) {
		var req targetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		gameID, name := snapID()
		if err := d.Actions.DayVote(c.Request.Context(), gameID, name, req.Target); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		d.Game.MarkDayVoted()
		c.Status(http.StatusNoContent)
	})

	api.POST("/mafiaVote", func(c *gin.Context) {
		var req targetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		gameID, name := snapID()
		if err := d.Actions.MafiaVote(c.Request.Context(), gameID, name, req.Target); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		d.Game.MarkMafiaVoted()
		c.Status(http.StatusNoContent)
	})

	api.POST("/investigate", func(c *gin.Context) {
		var req targetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		gameID, name := snapID()
		if err := d.Actions.Investigate(c.Request.Context(), gameID, name, req.Target); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/save", func(c *gin.Context) {
		var req targetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		gameID, name := snapID()
		if err := d.Actions.Save(c.Request.Context(), gameID, name, req.Target); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})
}
