// Package http is the local control API: the buttons, text field and
// message list of the call page, as JSON routes and an SSE feed.
package http

import (
	"context"

	"github.com/dkeye/AvatarCall/internal/app"
	"github.com/dkeye/AvatarCall/internal/app/call"
	"github.com/dkeye/AvatarCall/internal/config"
	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sessionName   = "AvatarCallSessions"
	tokenKey      = "client_token"
	tokenMaxAge   = 3600 * 24 * 7
	eventsBuffer  = 64
	stopCallCause = "operator hangup"
)

type Calls interface {
	Toggle(ctx context.Context, kind domain.CallKind) (bool, error)
	Stop(ctx context.Context, reason string) error
	Snapshot() call.Snapshot
}

type PushToTalk interface {
	Press(ctx context.Context) error
	Release() error
	Held() bool
	Composer() string
}

type Chat interface {
	Send(text string) error
}

// ResultFeed accepts recognition batches from an external recognizer.
type ResultFeed interface {
	Push(batch []core.Recognition) error
}

type Playback interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Playing() bool
}

// Services is everything the routes drive. Results and Playback are
// optional.
type Services struct {
	Arbiter  *app.Arbiter
	Feed     *app.Feed
	Session  *app.SessionField
	Calls    Calls
	PTT      PushToTalk
	Chat     Chat
	Results  ResultFeed
	Playback Playback
	Limiter  *RateLimiter
}

// ClientTokenMiddleware gives every operator a stable token kept in the
// signed cookie session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(tokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(tokenKey, token)
			sess.Options(sessions.Options{Path: "/", MaxAge: tokenMaxAge, HttpOnly: true})
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(tokenKey, token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, svc *Services) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	h := &handlers{svc: svc}
	api := r.Group("/api")
	api.GET("/state", h.state)
	api.PUT("/session", h.setSession)
	api.POST("/chat", h.chat)
	api.POST("/ptt/press", h.pttPress)
	api.POST("/ptt/release", h.pttRelease)
	api.POST("/ptt/results", h.pttResults)
	api.POST("/call/:kind", h.toggleCall)
	api.DELETE("/call", h.stopCall)
	api.POST("/playback", h.startPlayback)
	api.DELETE("/playback", h.stopPlayback)
	api.GET("/events", h.events)
	api.GET("/messages", h.messages)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
