package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hearthhq/hearth/internal/adapters/signal"
	"github.com/hearthhq/hearth/internal/app"
	"github.com/hearthhq/hearth/internal/config"
	"github.com/hearthhq/hearth/internal/store"
)

// ClientTokenMiddleware issues an anonymous per-browser token used as
// the WebSocket session id. Not authentication.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, router *app.Router, st store.Store) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("HearthSessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ws := signal.NewController(router, cfg.ReadLimit)
	r.GET("/ws", func(c *gin.Context) {
		ws.Handle(ctx, c)
	})

	h := &Handlers{Store: st, HistoryLimit: cfg.HistoryLimit}
	api := r.Group("/api")
	{
		api.GET("/members/:roomId", h.ListMembers)
		api.GET("/members/:roomId/:id", h.GetMember)
		api.GET("/messages/:roomId", h.ListMessages)
		api.PATCH("/messages/:roomId/:id", h.EditMessage)
		api.DELETE("/messages/:roomId/:id", h.DeleteMessage)
		api.POST("/messages/:roomId/:id/pin", h.PinMessage)
		api.GET("/conversations/:roomId", h.ListConversations)
		api.POST("/conversations/:roomId", h.CreateConversation)
	}

	return r
}
