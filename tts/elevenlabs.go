package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io"
	// Multilingual default voice, used when no preferred voice is available.
	elevenLabsFallbackVoice = "JBFqnCBsd6RMkjVDRZzb"
	elevenLabsModel         = "eleven_multilingual_v2"
)

// elevenLabsVoicePrefs are matched against the account's voice names, best
// first. The fallback voice is used when none match.
var elevenLabsVoicePrefs = []string{"Rachel", "Sarah", "Bella", "Elli"}

// ElevenLabs streams synthesized speech from the ElevenLabs API. The voice
// is resolved once per process from the account's voice list.
type ElevenLabs struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	voiceOnce sync.Once
	voiceID   string
}

// ElevenLabsOption customizes an ElevenLabs engine.
type ElevenLabsOption func(*ElevenLabs)

// WithElevenLabsBaseURL overrides the API origin (test seam).
func WithElevenLabsBaseURL(base string) ElevenLabsOption {
	return func(e *ElevenLabs) { e.baseURL = base }
}

// WithElevenLabsHTTPClient overrides the HTTP client.
func WithElevenLabsHTTPClient(c *http.Client) ElevenLabsOption {
	return func(e *ElevenLabs) { e.httpClient = c }
}

// NewElevenLabs builds an ElevenLabs engine.
func NewElevenLabs(apiKey string, logger *zap.Logger, opts ...ElevenLabsOption) (*ElevenLabs, error) {
	if apiKey == "" {
		return nil, errors.New("tts: elevenlabs api key is required")
	}
	e := &ElevenLabs{
		apiKey:     apiKey,
		baseURL:    elevenLabsBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

// Synthesize starts a streaming synthesis request and returns a channel of
// decoded audio chunks. A non-2xx response is returned as an error before
// any chunk is delivered.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	voice := e.resolveVoice(ctx)

	endpoint, err := url.Parse(fmt.Sprintf("%s/v1/text-to-speech/%s/stream/with-timestamps", e.baseURL, voice))
	if err != nil {
		return nil, fmt.Errorf("tts: build url: %w", err)
	}
	q := endpoint.Query()
	q.Set("output_format", "mp3_44100_128")
	endpoint.RawQuery = q.Encode()

	payload := map[string]any{
		"text":     text,
		"model_id": elevenLabsModel,
		"voice_settings": map[string]float64{
			"stability":        0.75,
			"similarity_boost": 0.7,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tts: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("tts: elevenlabs status %s", resp.Status)
	}

	out := make(chan []byte, 8)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		dec := json.NewDecoder(resp.Body)
		for {
			var chunk struct {
				AudioBase64 string `json:"audio_base64"`
			}
			if err := dec.Decode(&chunk); err != nil {
				if err != io.EOF && ctx.Err() == nil {
					e.logger.Warn("elevenlabs stream decode failed", zap.Error(err))
				}
				return
			}
			if chunk.AudioBase64 == "" {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(chunk.AudioBase64)
			if err != nil {
				e.logger.Warn("elevenlabs chunk decode failed", zap.Error(err))
				continue
			}
			select {
			case out <- audio:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// resolveVoice picks a voice from the account's list once, preferring the
// names in elevenLabsVoicePrefs. Any lookup failure falls back to the
// default voice; synthesis should not fail because the catalog was
// unreachable.
func (e *ElevenLabs) resolveVoice(ctx context.Context) string {
	e.voiceOnce.Do(func() {
		e.voiceID = elevenLabsFallbackVoice
		voices, err := e.listVoices(ctx)
		if err != nil {
			e.logger.Warn("voice list unavailable, using fallback voice", zap.Error(err))
			return
		}
		e.voiceID = pickVoice(voices, elevenLabsVoicePrefs, elevenLabsFallbackVoice)
		e.logger.Info("voice selected", zap.String("voice_id", e.voiceID))
	})
	return e.voiceID
}

func (e *ElevenLabs) listVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voices status %s", resp.Status)
	}

	var payload struct {
		Voices []struct {
			VoiceID string `json:"voice_id"`
			Name    string `json:"name"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	voices := make([]Voice, 0, len(payload.Voices))
	for _, v := range payload.Voices {
		voices = append(voices, Voice{ID: v.VoiceID, Name: v.Name})
	}
	return voices, nil
}
