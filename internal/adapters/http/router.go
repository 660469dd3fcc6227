package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/adapters/signal"
	"github.com/dkeye/voxroom/internal/app/orch"
	"github.com/dkeye/voxroom/internal/config"
)

const clientTokenCookie = "ct"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token; it doubles as session and peer id.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if _, err := uuid.Parse(token); err != nil {
			token = genClientToken()
			c.SetCookie(clientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoxroomSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	h := &handlers{orch: o, ai: cfg.AI.FactoryConfig}
	ctrl := signal.NewSignalWSController(o, signal.Config{
		JoinTimeout: cfg.JoinTimeout,
		ReadLimit:   cfg.ReadLimit,
		PingPeriod:  cfg.PingPeriod,
		SendBuffer:  cfg.SendBuffer,
		RateLimit:   cfg.RateLimit,
		RateWindow:  cfg.RateWindow,
	})

	r.GET("/healthz", h.health)

	api := r.Group("/api")
	api.GET("/me", h.me)
	api.PUT("/me", h.updateMe)
	api.GET("/ice", h.iceServers)
	api.GET("/providers", h.providers)

	rooms := api.Group("/rooms")
	rooms.GET("", h.listRooms)
	rooms.POST("", h.createRoom)
	rooms.GET("/:id", h.getRoom)
	rooms.DELETE("/:id", h.closeRoom)
	rooms.GET("/:id/peers", h.listPeers)
	rooms.GET("/:id/transcript", h.transcript)

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
