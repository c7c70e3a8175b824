package voicews

import (
	"time"

	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/dkeye/AvatarCall/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (c *Conn) writePump() {
	failed := false
	for out := range c.send {
		if failed {
			continue
		}
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			log.Error().Err(err).Str("module", "voicews").Msg("writePump set deadline")
			failed = true
			_ = c.ws.Close()
			continue
		}
		if err := c.ws.WriteMessage(out.kind, out.data); err != nil {
			log.Error().Err(err).Str("module", "voicews").Msg("writePump write error")
			failed = true
			_ = c.ws.Close()
		}
	}

	// send is closed only by Close, after the last queued frame.
	if !failed {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			log.Debug().Err(err).Str("module", "voicews").Msg("writePump close frame")
		}
	}
	_ = c.ws.Close()
	log.Debug().Str("module", "voicews").Msg("writePump done")
}

func (c *Conn) readPump() {
	defer close(c.done)
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.peerGone() {
				log.Warn().Err(err).Str("module", "voicews").Msg("readPump connection lost")
				c.handler.OnClosed(&domain.TransportError{Op: "read", Err: err})
			} else {
				log.Debug().Err(err).Str("module", "voicews").Msg("readPump closing")
			}
			_ = c.ws.Close()
			return
		}
		if kind != websocket.TextMessage {
			log.Warn().Str("module", "voicews").Int("bytes", len(data)).Msg("unexpected binary frame")
			continue
		}
		c.handleFrame(data)
	}
}

func (c *Conn) handleFrame(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "voicews").Msg("bad frame")
		c.handler.OnProtocolError(err)
		return
	}
	log.Debug().Str("module", "voicews").Str("type", msg.Type()).Msg("message")
	c.handler.OnMessage(msg)
}
