package tts

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIVoicePrefs is the preference order over OpenAI's fixed voice set.
var openAIVoicePrefs = []openai.SpeechVoice{
	openai.VoiceNova,
	openai.VoiceShimmer,
	openai.VoiceAlloy,
}

// OpenAISpeech synthesizes speech through the OpenAI audio API. Unlike the
// ElevenLabs engine it returns the whole utterance as one response body,
// which is re-chunked for the downlink.
type OpenAISpeech struct {
	client *openai.Client
	voice  openai.SpeechVoice
	logger *zap.Logger
}

// NewOpenAISpeech builds an OpenAI speech engine.
func NewOpenAISpeech(apiKey string, logger *zap.Logger) (*OpenAISpeech, error) {
	if apiKey == "" {
		return nil, errors.New("tts: openai api key is required")
	}
	return &OpenAISpeech{
		client: openai.NewClient(apiKey),
		voice:  openAIVoicePrefs[0],
		logger: logger,
	}, nil
}

func (o *OpenAISpeech) Name() string { return "openai" }

// Synthesize requests speech and streams the response body in fixed-size
// chunks.
func (o *OpenAISpeech) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, 8)
	go func() {
		defer close(out)
		defer resp.Close()

		buf := make([]byte, 8192)
		for {
			n, err := resp.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					o.logger.Warn("openai speech read failed", zap.Error(err))
				}
				return
			}
		}
	}()
	return out, nil
}
