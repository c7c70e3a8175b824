package rtc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
)

// RTPWriter is a media container sink.
type RTPWriter interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// OpenRecorder picks a container for the codec. It returns nil, nil for
// codecs with no container; those tracks are only drained.
func OpenRecorder(dir string, codec webrtc.RTPCodecParameters, trackID string) (RTPWriter, error) {
	stamp := time.Now().Format("20060102-150405")
	base := filepath.Join(dir, fmt.Sprintf("%s-%s", stamp, sanitize(trackID)))

	var (
		w   RTPWriter
		err error
	)
	switch {
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeVP8):
		w, err = ivfwriter.New(base + ".ivf")
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeH264):
		w, err = h264writer.New(base + ".h264")
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeOpus):
		channels := codec.Channels
		if channels == 0 {
			channels = 2
		}
		w, err = oggwriter.New(base+".ogg", codec.ClockRate, channels)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// drain reads packets until the track ends or ctx is cancelled, passing them
// to w when set. It returns the number of packets read.
func drain(ctx context.Context, src func() (*rtp.Packet, error), w RTPWriter, logger *zerolog.Logger) int {
	n := 0
	failed := false
	for {
		select {
		case <-ctx.Done():
			logger.Info().Int("packets", n).Msg("track drain ctx done")
			return n
		default:
		}
		pkt, err := src()
		if err != nil {
			logger.Info().Err(err).Int("packets", n).Msg("track ended")
			return n
		}
		n++
		if w == nil || failed {
			continue
		}
		if err := w.WriteRTP(pkt); err != nil {
			logger.Error().Err(err).Msg("record write error, recording stopped")
			failed = true
		}
	}
}
