package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for every tunable. Thresholds are on the monitor's 0-255 scale.
const (
	DefaultListenAddr         = ":3000"
	DefaultDeepgramURL        = "wss://api.deepgram.com/v1/listen?model=nova-2&encoding=linear16&sample_rate=16000&channels=1&language=en-US&punctuate=true&smart_format=true&interim_results=true&vad_events=true"
	DefaultSilenceWindow      = 1500 * time.Millisecond
	DefaultMinTranscriptChars = 3
	DefaultActivityThreshold  = 30
	DefaultInterruptThreshold = 50
	DefaultSampleRate         = 16000
)

// TTS engine selectors accepted in TTS_ENGINE.
const (
	EngineElevenLabs = "elevenlabs"
	EngineOpenAI     = "openai"
	EngineOff        = "off"
)

// Config carries everything the service reads from the environment.
type Config struct {
	ListenAddr      string
	StudyServiceURL string

	// Recognition. An empty DeepgramAPIKey disables the voice feature
	// entirely; the rest of the service (document listing) still works.
	DeepgramAPIKey string
	DeepgramURL    string
	SampleRate     int

	// Synthesis.
	TTSEngine        string
	ElevenLabsAPIKey string
	OpenAIAPIKey     string

	// Conversation tuning.
	SilenceWindow      time.Duration
	MinTranscriptChars int
	ActivityThreshold  float64
	InterruptThreshold float64
}

// Load reads configuration from a .env file (if present) and the process
// environment. Missing required variables and malformed values are errors.
func Load() (*Config, error) {
	// A missing .env file is fine; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:       envOr("LISTEN_ADDR", DefaultListenAddr),
		StudyServiceURL:  os.Getenv("STUDY_SERVICE_URL"),
		DeepgramAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramURL:      envOr("DEEPGRAM_URL", DefaultDeepgramURL),
		TTSEngine:        envOr("TTS_ENGINE", EngineElevenLabs),
		ElevenLabsAPIKey: os.Getenv("ELEVEN_LABS_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPEN_AI_API_KEY"),
	}

	if cfg.StudyServiceURL == "" {
		return nil, fmt.Errorf("STUDY_SERVICE_URL must be set")
	}

	var err error
	if cfg.SampleRate, err = envInt("SAMPLE_RATE", DefaultSampleRate); err != nil {
		return nil, err
	}
	silenceMs, err := envInt("SILENCE_WINDOW_MS", int(DefaultSilenceWindow/time.Millisecond))
	if err != nil {
		return nil, err
	}
	cfg.SilenceWindow = time.Duration(silenceMs) * time.Millisecond
	if cfg.MinTranscriptChars, err = envInt("MIN_TRANSCRIPT_CHARS", DefaultMinTranscriptChars); err != nil {
		return nil, err
	}
	if cfg.ActivityThreshold, err = envFloat("ACTIVITY_THRESHOLD", DefaultActivityThreshold); err != nil {
		return nil, err
	}
	if cfg.InterruptThreshold, err = envFloat("INTERRUPT_THRESHOLD", DefaultInterruptThreshold); err != nil {
		return nil, err
	}

	switch cfg.TTSEngine {
	case EngineElevenLabs:
		if cfg.ElevenLabsAPIKey == "" {
			return nil, fmt.Errorf("ELEVEN_LABS_API_KEY must be set when TTS_ENGINE=%s", EngineElevenLabs)
		}
	case EngineOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPEN_AI_API_KEY must be set when TTS_ENGINE=%s", EngineOpenAI)
		}
	case EngineOff:
	default:
		return nil, fmt.Errorf("unknown TTS_ENGINE %q", cfg.TTSEngine)
	}

	return cfg, nil
}

// VoiceEnabled reports whether speech recognition is configured at all.
func (c *Config) VoiceEnabled() bool {
	return c.DeepgramAPIKey != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f, nil
}
