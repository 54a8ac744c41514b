package http

import (
	"context"
	"net/http"

	"github.com/dkeye/EchoTest/internal/adapters/signal"
	"github.com/dkeye/EchoTest/internal/config"
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sessionName   = "EchoTestSessions"
	tokenKey      = "ct"
	tokenMaxAge   = 3600 * 24 * 7
	clientTokenCK = "client_token"
)

// Deps are the handlers the router serves.
type Deps struct {
	Signal      *signal.SignalWSController
	Diagnostics Diagnostics
	// Metrics serves /metrics; nil disables the route.
	Metrics http.Handler
}

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware keeps a per-browser token in the cookie session. A
// missing or malformed token is replaced.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(tokenKey).(string)
		if _, err := domain.ParseClientID(token); err != nil {
			token = genClientToken()
			s.Set(tokenKey, token)
			if err := s.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenCK, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: tokenMaxAge, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("ct", c.GetString(clientTokenCK)).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})

	if deps.Diagnostics != nil {
		h := diagnosticsHandler{d: deps.Diagnostics}
		api.GET("/healthz", h.health)
		api.GET("/sessions", h.sessions)
		api.GET("/pipelines", h.pipelines)
	}
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	return r
}
