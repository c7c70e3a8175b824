package rtc

import (
	"context"
	"sync/atomic"

	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// RecvConnection is a receive-only peer connection for the avatar stream.
type RecvConnection struct {
	pc     *webrtc.PeerConnection
	cancel context.CancelFunc

	onTrack  func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onStatus func(domain.ConnStatus)
	status   atomic.Value
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// NewRecvConnection creates the peer connection with one recvonly video and
// one recvonly audio transceiver.
func NewRecvConnection(cfg webrtc.Configuration) (*RecvConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	recv := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, recv); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}
	return &RecvConnection{pc: pc}, nil
}

func (c *RecvConnection) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateNew, webrtc.PeerConnectionStateConnecting:
			c.setStatus(domain.StatusConnecting)
		case webrtc.PeerConnectionStateConnected:
			c.setStatus(domain.StatusConnected)
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			c.setStatus(domain.StatusDisconnected)
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("kind", track.Kind().String()).
			Str("codec", track.Codec().MimeType).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(ctx, track, receiver)
		}
	})
}

// CreateOffer returns the local offer once ICE gathering has finished, so it
// can be sent in one request.
func (c *RecvConnection) CreateOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	<-gatherComplete
	return c.pc.LocalDescription(), nil
}

func (c *RecvConnection) ApplyAnswer(sdp string) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (c *RecvConnection) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "webrtc").Msg("close error")
		} else {
			log.Info().Str("module", "webrtc").Msg("closed")
		}
	}
}

// OnTrack sets the callback for remote tracks.
func (c *RecvConnection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

// OnStatus sets the callback for connection status changes.
func (c *RecvConnection) OnStatus(fn func(domain.ConnStatus)) { c.onStatus = fn }

func (c *RecvConnection) setStatus(s domain.ConnStatus) {
	c.status.Store(s)
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

// Status is the last reported status, empty before the first change.
func (c *RecvConnection) Status() domain.ConnStatus {
	s, _ := c.status.Load().(domain.ConnStatus)
	return s
}
