// Package voicews is the websocket call transport to the speech recognition
// backend.
package voicews

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultURL          = "ws://127.0.0.1:8765/ws"
	DefaultSendBuffer   = 32
	DefaultWriteTimeout = 5 * time.Second
	readLimit           = 1 << 20
)

type Dialer struct {
	URL          string
	SendBuffer   int
	WriteTimeout time.Duration

	ws *websocket.Dialer
}

func NewDialer(url string) *Dialer {
	if url == "" {
		url = DefaultURL
	}
	return &Dialer{
		URL:          url,
		SendBuffer:   DefaultSendBuffer,
		WriteTimeout: DefaultWriteTimeout,
		ws: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial opens one call transport. Inbound traffic goes to h from the read
// pump until the connection ends.
func (d *Dialer) Dial(ctx context.Context, h core.VoiceHandler) (core.VoiceConnection, error) {
	ws, _, err := d.ws.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	ws.SetReadLimit(readLimit)

	buf := d.SendBuffer
	if buf <= 0 {
		buf = DefaultSendBuffer
	}
	wt := d.WriteTimeout
	if wt <= 0 {
		wt = DefaultWriteTimeout
	}
	c := &Conn{
		ws:           ws,
		send:         make(chan outbound, buf),
		handler:      h,
		writeTimeout: wt,
		done:         make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()

	log.Info().Str("module", "voicews").Str("url", d.URL).Msg("connected")
	return c, nil
}

type outbound struct {
	kind int
	data []byte
}

// Conn is one websocket to the recognition backend. Writes are serialized by
// the write pump; Close flushes queued frames before the socket closes.
type Conn struct {
	ws           *websocket.Conn
	send         chan outbound
	handler      core.VoiceHandler
	writeTimeout time.Duration
	done         chan struct{}

	mu sync.RWMutex
	// closed stops new sends; local records that Close was called.
	closed bool
	local  bool
}

func (c *Conn) SendControl(ctl protocol.Control) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	t := time.NewTimer(c.writeTimeout)
	defer t.Stop()
	select {
	case c.send <- outbound{kind: websocket.TextMessage, data: []byte(ctl)}:
		return nil
	case <-t.C:
		return core.ErrBackpressure
	}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- outbound{kind: websocket.BinaryMessage, data: f}:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *Conn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Close is idempotent. The handler hears nothing about a close it caused.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.local {
		c.mu.Unlock()
		return
	}
	c.local = true
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	log.Debug().Str("module", "voicews").Msg("closing")
}

// Done is closed once the read pump has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// peerGone marks the socket dead and reports whether the handler should be
// told.
func (c *Conn) peerGone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local {
		return false
	}
	was := c.closed
	c.closed = true
	return !was
}
