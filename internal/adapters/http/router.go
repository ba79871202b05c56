package http

import (
	"context"

	"github.com/dkeye/Talkie/internal/adapters/signal"
	"github.com/dkeye/Talkie/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// SetupRouter wires the REST endpoints and the websocket upgrade.
// ctx bounds the lifetime of every websocket the router accepts.
func SetupRouter(ctx context.Context, cfg *config.Config, h *Handlers, ws *signal.SignalWSController) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(RequestLogger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("TalkieSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")
	v1.POST("/send_message", h.SendMessage)
	v1.POST("/make_call", h.MakeCall)
	v1.GET("/get_message/:booking_code", h.GetMessages)
	v1.GET("/call/:booking_code", h.GetCall)
	v1.GET("/connections/:booking_code", h.GetConnections)

	r.GET("/api/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(signal.ClientTokenKey)).Msg("ws endpoint hit")
		ws.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
