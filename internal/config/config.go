package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode      string `mapstructure:"mode"`
	Port      int    `mapstructure:"port"`
	Secret    string `mapstructure:"secret"`
	LogLevel  string `mapstructure:"log_level"`
	SessionID int    `mapstructure:"session_id"`

	Backend  BackendConfig  `mapstructure:"backend"`
	Voice    VoiceConfig    `mapstructure:"voice"`
	Speaking SpeakingConfig `mapstructure:"speaking"`
	Media    MediaConfig    `mapstructure:"media"`
	PTT      PTTConfig      `mapstructure:"ptt"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Feed     FeedConfig     `mapstructure:"feed"`
}

// BackendConfig is the avatar HTTP API (/human, /is_speaking).
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// VoiceConfig is the recognition websocket used by calls.
type VoiceConfig struct {
	URL                 string `mapstructure:"url"`
	SendBuffer          int    `mapstructure:"send_buffer"`
	MaxConsecutiveDrops int    `mapstructure:"max_consecutive_drops"`
}

type SpeakingConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	StartAttempts int           `mapstructure:"start_attempts"`
	StopGrace     time.Duration `mapstructure:"stop_grace"`
}

type MediaConfig struct {
	Variant        string        `mapstructure:"variant"`
	SamplePeriod   time.Duration `mapstructure:"sample_period"`
	JPEGQuality    int           `mapstructure:"jpeg_quality"`
	MaxWidth       int           `mapstructure:"max_width"`
	Audio          string        `mapstructure:"audio"`
	AudioFile      string        `mapstructure:"audio_file"`
	CameraSnapshot string        `mapstructure:"camera_snapshot"`
}

type PTTConfig struct {
	Recognizer string        `mapstructure:"recognizer"`
	Debounce   time.Duration `mapstructure:"debounce"`
}

type PlaybackConfig struct {
	WHEPURL   string `mapstructure:"whep_url"`
	RecordDir string `mapstructure:"record_dir"`
	Autostart bool   `mapstructure:"autostart"`
}

type ChatConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type FeedConfig struct {
	History int `mapstructure:"history"`
}

const (
	AudioPortAudio = "portaudio"
	AudioFile      = "file"

	RecognizerFeed  = "feed"
	RecognizerVoice = "voice"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "avatarcall-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("session_id", 0)

	v.SetDefault("backend.base_url", "http://127.0.0.1:8010")
	v.SetDefault("backend.timeout", "30s")

	v.SetDefault("voice.url", "ws://127.0.0.1:8765/ws")
	v.SetDefault("voice.send_buffer", 32)
	v.SetDefault("voice.max_consecutive_drops", 0)

	v.SetDefault("speaking.interval", "1s")
	v.SetDefault("speaking.start_attempts", 20)
	v.SetDefault("speaking.stop_grace", "2s")

	v.SetDefault("media.variant", string(domain.VariantImages))
	v.SetDefault("media.sample_period", "1s")
	v.SetDefault("media.jpeg_quality", 80)
	v.SetDefault("media.max_width", 640)
	v.SetDefault("media.audio", AudioPortAudio)
	v.SetDefault("media.audio_file", "")
	v.SetDefault("media.camera_snapshot", "")

	v.SetDefault("ptt.recognizer", RecognizerFeed)
	v.SetDefault("ptt.debounce", "300ms")

	v.SetDefault("playback.whep_url", "http://127.0.0.1:1985/rtc/v1/whep/?app=live&stream=livestream")
	v.SetDefault("playback.record_dir", "")
	v.SetDefault("playback.autostart", false)

	v.SetDefault("chat.rate_limit", 10)
	v.SetDefault("chat.rate_interval", "10s")

	v.SetDefault("feed.history", 200)
}

// Load reads config/config.<CONFIG_ENV>.yaml, or path when set. Missing
// files fall back to defaults; AVATAR_* env vars override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := path
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("AVATAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("variant", cfg.Media.Variant).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := domain.ParseMediaVariant(c.Media.Variant); err != nil {
		return fmt.Errorf("media.variant: %w", err)
	}
	if err := domain.SessionID(c.SessionID).Validate(); err != nil {
		return fmt.Errorf("session_id: %w", err)
	}
	switch c.Media.Audio {
	case AudioPortAudio:
	case AudioFile:
		if c.Media.AudioFile == "" {
			return fmt.Errorf("media.audio_file required when media.audio is %q", AudioFile)
		}
	default:
		return fmt.Errorf("media.audio: unknown backend %q", c.Media.Audio)
	}
	switch c.PTT.Recognizer {
	case RecognizerFeed, RecognizerVoice:
	default:
		return fmt.Errorf("ptt.recognizer: unknown recognizer %q", c.PTT.Recognizer)
	}
	return nil
}

// Variant is the parsed media variant. Validate has already checked it.
func (c *Config) Variant() domain.MediaVariant {
	v, _ := domain.ParseMediaVariant(c.Media.Variant)
	return v
}
