package main

import (
	"net/http"

	"github.com/dkeye/AvatarCall/internal/adapters/human"
	"github.com/dkeye/AvatarCall/internal/adapters/media"
	"github.com/dkeye/AvatarCall/internal/adapters/rtc"
	"github.com/dkeye/AvatarCall/internal/adapters/voicews"
	"github.com/dkeye/AvatarCall/internal/app"
	"github.com/dkeye/AvatarCall/internal/app/call"
	"github.com/dkeye/AvatarCall/internal/app/ptt"
	"github.com/dkeye/AvatarCall/internal/app/speaking"
	"github.com/dkeye/AvatarCall/internal/config"
	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/rs/zerolog/log"
)

// stack is the fully wired client.
type stack struct {
	arbiter    *app.Arbiter
	feed       *app.Feed
	session    *app.SessionField
	dispatcher *app.Dispatcher
	chat       *app.TextChat
	calls      *call.Controller
	ptt        *ptt.Controller
	results    *ptt.FeedRecognizer
	player     *rtc.Player
}

func newDevices(cfg *config.Config) *media.Devices {
	d := &media.Devices{}
	switch cfg.Media.Audio {
	case config.AudioFile:
		d.Audio = media.FileAudio(cfg.Media.AudioFile)
	default:
		if !media.PortAudioAvailable {
			log.Warn().Str("module", "main").Msg("built without portaudio, calls will fail to open the microphone")
		}
		d.Audio = media.PortAudio()
	}
	if cfg.Media.CameraSnapshot != "" {
		d.Video = media.SnapshotCamera(cfg.Media.CameraSnapshot, cfg.Media.MaxWidth)
	}
	return d
}

func newStack(cfg *config.Config) *stack {
	arbiter := app.NewArbiter()
	feed := app.NewFeed(cfg.Feed.History)
	arbiter.OnChange(feed.ModeChanged)
	session := app.NewSessionField(domain.SessionID(cfg.SessionID))

	backend := human.New(cfg.Backend.BaseURL,
		human.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
		human.WithVariant(cfg.Variant()),
	)
	dispatcher := &app.Dispatcher{Sender: backend, Presenter: feed, Timeout: cfg.Backend.Timeout}
	chat := &app.TextChat{Arbiter: arbiter, Dispatcher: dispatcher, Session: session}

	poller := speaking.New(backend)
	poller.Interval = cfg.Speaking.Interval
	poller.StartAttempts = cfg.Speaking.StartAttempts
	poller.StopGrace = cfg.Speaking.StopGrace

	dialer := voicews.NewDialer(cfg.Voice.URL)
	if cfg.Voice.SendBuffer > 0 {
		dialer.SendBuffer = cfg.Voice.SendBuffer
	}
	devices := newDevices(cfg)

	opts := call.DefaultOptions()
	opts.SamplePeriod = cfg.Media.SamplePeriod
	opts.JPEGQuality = cfg.Media.JPEGQuality
	calls := call.NewController(call.Deps{
		Arbiter:    arbiter,
		Devices:    devices,
		Dialer:     dialer,
		Dispatcher: dispatcher,
		Replies:    poller,
		Presenter:  feed,
		Session:    session,
		Policy:     app.SimplePolicy{MaxConsecutiveDrops: cfg.Voice.MaxConsecutiveDrops},
	}, opts)

	var (
		rec     core.SpeechRecognizer
		results *ptt.FeedRecognizer
	)
	if cfg.PTT.Recognizer == config.RecognizerVoice {
		rec = voicews.NewRecognizer(dialer, devices)
	} else {
		results = ptt.NewFeedRecognizer()
		rec = results
	}
	talk := ptt.New(arbiter, rec, chat, feed)
	if cfg.PTT.Debounce > 0 {
		talk.Debounce = cfg.PTT.Debounce
	}

	player := rtc.NewPlayer(cfg.Playback.WHEPURL, feed)
	player.RecordDir = cfg.Playback.RecordDir

	return &stack{
		arbiter:    arbiter,
		feed:       feed,
		session:    session,
		dispatcher: dispatcher,
		chat:       chat,
		calls:      calls,
		ptt:        talk,
		results:    results,
		player:     player,
	}
}
