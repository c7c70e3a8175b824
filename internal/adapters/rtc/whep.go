// Package rtc plays the avatar's WebRTC stream over WHEP.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const DefaultWHEPURL = "http://127.0.0.1:1985/rtc/v1/whep/?app=live&stream=livestream"

var (
	ErrPlaying    = errors.New("playback already running")
	ErrNotPlaying = errors.New("playback not running")
)

// StatusSink receives connection status changes.
type StatusSink interface {
	ConnectionStatus(domain.ConnStatus)
}

// Player is a WHEP client. At most one session plays at a time.
type Player struct {
	URL       string
	Config    webrtc.Configuration
	RecordDir string
	Status    StatusSink
	Client    *http.Client

	mu       sync.Mutex
	conn     *RecvConnection
	resource string
	tracks   sync.WaitGroup
}

func NewPlayer(whepURL string, status StatusSink) *Player {
	if whepURL == "" {
		whepURL = DefaultWHEPURL
	}
	return &Player{
		URL:    whepURL,
		Config: DefaultWebRTCConfig(),
		Status: status,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *Player) status(s domain.ConnStatus) {
	if p.Status != nil {
		p.Status.ConnectionStatus(s)
	}
}

// Playing reports a session that has not failed. A remotely failed session
// is replaced by the next Start.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && p.conn.Status() != domain.StatusDisconnected
}

// Start negotiates a receive-only session: the offer is posted as
// application/sdp and the answer applied.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		if p.conn.Status() != domain.StatusDisconnected {
			return ErrPlaying
		}
		log.Info().Str("module", "whep").Str("resource", p.resource).Msg("replacing failed session")
		p.conn.Close()
		p.tracks.Wait()
		p.deleteResource(ctx, p.resource)
		p.conn, p.resource = nil, ""
	}

	p.status(domain.StatusConnecting)
	conn, err := NewRecvConnection(p.Config)
	if err != nil {
		p.status(domain.StatusDisconnected)
		return fmt.Errorf("peer connection: %w", err)
	}
	conn.OnStatus(p.status)
	conn.OnTrack(p.handleTrack)
	conn.Start(context.Background())

	offer, err := conn.CreateOffer()
	if err != nil {
		conn.Close()
		p.status(domain.StatusDisconnected)
		return fmt.Errorf("create offer: %w", err)
	}
	answer, resource, err := p.exchange(ctx, offer.SDP)
	if err != nil {
		conn.Close()
		p.status(domain.StatusDisconnected)
		return err
	}
	if err := conn.ApplyAnswer(answer); err != nil {
		conn.Close()
		p.deleteResource(ctx, resource)
		p.status(domain.StatusDisconnected)
		return fmt.Errorf("apply answer: %w", err)
	}

	p.conn = conn
	p.resource = resource
	log.Info().Str("module", "whep").Str("url", p.URL).Str("resource", resource).Msg("playback negotiated")
	return nil
}

func (p *Player) exchange(ctx context.Context, offer string) (answer, resource string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, strings.NewReader(offer))
	if err != nil {
		return "", "", fmt.Errorf("build offer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("post offer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("read answer: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("post offer: unexpected status %s", resp.Status)
	}
	return string(body), p.resolve(resp.Header.Get("Location")), nil
}

// resolve turns a Location header into an absolute URL.
func (p *Player) resolve(loc string) string {
	if loc == "" {
		return ""
	}
	base, err := url.Parse(p.URL)
	if err != nil {
		return loc
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return loc
	}
	return base.ResolveReference(ref).String()
}

func (p *Player) deleteResource(ctx context.Context, resource string) {
	if resource == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resource, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "whep").Msg("build delete")
		return
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("module", "whep").Msg("delete resource")
		return
	}
	_ = resp.Body.Close()
	log.Info().Str("module", "whep").Int("status", resp.StatusCode).Msg("resource deleted")
}

// Stop closes the peer connection and deletes the WHEP resource.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	conn, resource := p.conn, p.resource
	p.conn, p.resource = nil, ""
	p.mu.Unlock()
	if conn == nil {
		return ErrNotPlaying
	}

	conn.Close()
	p.tracks.Wait()
	p.deleteResource(ctx, resource)
	p.status(domain.StatusDisconnected)
	return nil
}

func (p *Player) handleTrack(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	logger := log.With().
		Str("module", "whep").
		Str("kind", track.Kind().String()).
		Str("codec", track.Codec().MimeType).
		Logger()

	var w RTPWriter
	if p.RecordDir != "" {
		var err error
		w, err = OpenRecorder(p.RecordDir, track.Codec(), track.ID())
		if err != nil {
			logger.Error().Err(err).Msg("open recorder")
		}
	}

	p.tracks.Add(1)
	go func() {
		defer p.tracks.Done()
		read := func() (*rtp.Packet, error) {
			pkt, _, err := track.ReadRTP()
			return pkt, err
		}
		drain(ctx, read, w, &logger)
		if w != nil {
			if err := w.Close(); err != nil {
				logger.Warn().Err(err).Msg("close recorder")
			}
		}
	}()
}
