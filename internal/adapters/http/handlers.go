package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dkeye/AvatarCall/internal/adapters/rtc"
	"github.com/dkeye/AvatarCall/internal/app"
	"github.com/dkeye/AvatarCall/internal/app/call"
	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	svc *Services
}

type pttState struct {
	Held     bool   `json:"held"`
	Composer string `json:"composer"`
}

type playbackState struct {
	Playing bool              `json:"playing"`
	Status  domain.ConnStatus `json:"status"`
}

type stateResponse struct {
	Mode        domain.InputMode `json:"mode"`
	Affordances app.Affordances  `json:"affordances"`
	SessionID   domain.SessionID `json:"sessionid"`
	Call        call.Snapshot    `json:"call"`
	PTT         pttState         `json:"ptt"`
	Playback    playbackState    `json:"playback"`
}

func (h *handlers) state(c *gin.Context) {
	mode := h.svc.Arbiter.Mode()
	resp := stateResponse{
		Mode:        mode,
		Affordances: app.Project(mode),
		SessionID:   h.svc.Session.Get(),
		Call:        h.svc.Calls.Snapshot(),
		PTT:         pttState{Held: h.svc.PTT.Held(), Composer: h.svc.PTT.Composer()},
		Playback:    playbackState{Status: h.svc.Feed.Status()},
	}
	if h.svc.Playback != nil {
		resp.Playback.Playing = h.svc.Playback.Playing()
	}
	c.JSON(http.StatusOK, resp)
}

// setSession accepts the id as a JSON string or number.
func (h *handlers) setSession(c *gin.Context) {
	var body struct {
		SessionID json.RawMessage `json:"sessionid"`
	}
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	sid, err := domain.ParseSessionID(strings.Trim(string(body.SessionID), `"`))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.svc.Session.Set(sid); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionid": sid})
}

func (h *handlers) chat(c *gin.Context) {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	token := c.GetString(tokenKey)
	if !h.svc.Limiter.Allow(token) {
		log.Warn().Str("module", "adapters.http").Str("ct", token).Msg("chat rate limited")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many messages"})
		return
	}
	if err := h.svc.Chat.Send(body.Text); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sent": true})
}

func (h *handlers) pttPress(c *gin.Context) {
	// Recognition outlives this request.
	if err := h.svc.PTT.Press(context.WithoutCancel(c.Request.Context())); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"held": true})
}

func (h *handlers) pttRelease(c *gin.Context) {
	if err := h.svc.PTT.Release(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"held": false})
}

type recognitionBody struct {
	Transcript string `json:"transcript"`
	Final      bool   `json:"final"`
}

func (h *handlers) pttResults(c *gin.Context) {
	if h.svc.Results == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "result feed not enabled"})
		return
	}
	var body struct {
		Results []recognitionBody `json:"results"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Results) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "results required"})
		return
	}
	batch := make([]core.Recognition, len(body.Results))
	for i, r := range body.Results {
		batch[i] = core.Recognition{Transcript: r.Transcript, Final: r.Final}
	}
	if err := h.svc.Results.Push(batch); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"composer": h.svc.PTT.Composer()})
}

func (h *handlers) toggleCall(c *gin.Context) {
	kind, err := domain.ParseCallKind(c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return
	}
	started, err := h.svc.Calls.Toggle(c.Request.Context(), kind)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": started, "call": h.svc.Calls.Snapshot()})
}

func (h *handlers) stopCall(c *gin.Context) {
	if err := h.svc.Calls.Stop(c.Request.Context(), stopCallCause); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": h.svc.Calls.Snapshot()})
}

func (h *handlers) startPlayback(c *gin.Context) {
	if h.svc.Playback == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "playback not configured"})
		return
	}
	if err := h.svc.Playback.Start(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"playing": true})
}

func (h *handlers) stopPlayback(c *gin.Context) {
	if h.svc.Playback == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "playback not configured"})
		return
	}
	if err := h.svc.Playback.Stop(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"playing": false})
}

func (h *handlers) messages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": h.svc.Feed.History()})
}

// events streams feed events as SSE until the client goes away.
func (h *handlers) events(c *gin.Context) {
	ch, cancel := h.svc.Feed.Subscribe(eventsBuffer)
	defer cancel()

	token := c.GetString(tokenKey)
	log.Info().Str("module", "adapters.http").Str("ct", token).Msg("events stream opened")
	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
	log.Info().Str("module", "adapters.http").Str("ct", token).Msg("events stream closed")
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var acq *domain.AcquisitionError
	var tr *domain.TransportError
	switch {
	case errors.Is(err, domain.ErrCallActive),
		errors.Is(err, domain.ErrModeBusy),
		errors.Is(err, domain.ErrComposerDisabled),
		errors.Is(err, domain.ErrNotPressed),
		errors.Is(err, domain.ErrNoCall),
		errors.Is(err, rtc.ErrPlaying),
		errors.Is(err, rtc.ErrNotPlaying):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrEmptyText),
		errors.Is(err, domain.ErrUnknownCallKind),
		errors.Is(err, domain.ErrSessionIDEmpty),
		errors.Is(err, domain.ErrSessionIDInvalid):
		status = http.StatusBadRequest
	case errors.As(err, &acq), errors.As(err, &tr):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
