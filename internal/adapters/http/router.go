package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/roomnet/rendezvous/internal/adapters/signal"
	"github.com/roomnet/rendezvous/internal/config"
	"github.com/roomnet/rendezvous/internal/core"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every client with a stable cookie token,
// used for log correlation only, never for authentication.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// APIKeyMiddleware gates a route on the configured key. An empty key
// leaves the route open.
func APIKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key != "" && c.GetHeader("X-Api-Key") != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, server *core.Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RendezvousSessions", store))
	r.Use(ClientTokenMiddleware())

	ctl := signal.NewController(server, cfg.ReadLimit)
	started := time.Now()

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws endpoint hit")
		ctl.HandleSession(c)
	})

	api.GET("/status", APIKeyMiddleware(cfg.StatusAPIKey), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"uptime_seconds": int64(time.Since(started).Seconds()),
			"rooms":          server.RoomCount(),
			"peers":          server.PeerCount(),
			"stats":          server.Stats().Snapshot(),
		})
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
