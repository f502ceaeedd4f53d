package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ringline/ringline-server/internal/auth"
	"github.com/ringline/ringline-server/internal/callengine"
	"github.com/ringline/ringline-server/internal/config"
	"github.com/ringline/ringline-server/internal/core"
	"github.com/ringline/ringline-server/internal/store"
)

// NewServer builds the HTTP server: REST endpoints for tokens, call
// records and async call-link work, plus the signaling WebSocket.
func NewServer(manager *core.Manager, broadcaster *Broadcaster, st store.Store, engine callengine.Engine, jwtConfig *auth.JWTConfig, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	handlers := NewAPIHandlers(manager, st, engine, jwtConfig, logger)
	router.POST("/api/token", handlers.IssueToken)

	api := router.Group("/api")
	api.Use(AuthMiddleware(jwtConfig, logger))
	{
		api.GET("/calls/current", handlers.CurrentCall)
		api.GET("/calls/recent", handlers.RecentCalls)
		api.GET("/calls/:id", handlers.GetCall)
		api.GET("/group/clients/:id", handlers.GroupClient)
		api.POST("/group/join-info", handlers.GroupJoinInfo)
		api.POST("/call-links", handlers.CreateCallLink)
		api.POST("/call-links/read", handlers.ReadCallLink)
		api.PATCH("/call-links", handlers.UpdateCallLink)
		api.POST("/peek/group", handlers.PeekGroupCall)
		api.POST("/peek/link", handlers.PeekCallLinkCall)
	}

	defaults := commandDefaults{
		SFUURL:              cfg.SFU.URL,
		AudioLevelsInterval: cfg.Calls.AudioLevelsInterval,
	}
	wsHandler := NewWSHandler(manager, broadcaster, defaults, logger)
	router.GET("/ws", gin.WrapH(wsHandler))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
