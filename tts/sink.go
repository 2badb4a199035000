package tts

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/studymate/voice-session/types"
)

// Sink plays synthesized speech. At most one utterance is in flight;
// Speak cancels the previous one before starting, and Stop cancels
// unconditionally. Lifecycle signals (started, ended, error) are emitted on
// Events; decoded audio chunks go out on Audio for the session downlink.
type Sink struct {
	engine Engine
	logger *zap.Logger

	events chan types.SpeechEvent
	audio  chan []byte

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSink builds a Sink over the given engine.
func NewSink(engine Engine, logger *zap.Logger) *Sink {
	return &Sink{
		engine: engine,
		logger: logger,
		events: make(chan types.SpeechEvent, 8),
		audio:  make(chan []byte, 32),
	}
}

// Events delivers utterance lifecycle signals.
func (s *Sink) Events() <-chan types.SpeechEvent { return s.events }

// Audio delivers encoded audio chunks of the current utterance.
func (s *Sink) Audio() <-chan []byte { return s.audio }

// Speak cancels any in-flight utterance, strips markup from text, and
// begins synthesis. It returns false when nothing is left to speak after
// stripping, in which case no lifecycle events are emitted.
func (s *Sink) Speak(text string) bool {
	clean := CleanForSpeech(text)
	if clean == "" {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go s.play(ctx, clean)
	return true
}

// Stop cancels any in-flight utterance. Idempotent.
func (s *Sink) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// play runs one utterance. A cancelled utterance emits nothing further:
// cancellation only ever comes from Stop or a replacing Speak, and in both
// cases the caller has already moved on, so a late "ended" would only
// confuse the state machine.
func (s *Sink) play(ctx context.Context, text string) {
	chunks, err := s.engine.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("synthesis failed", zap.String("engine", s.engine.Name()), zap.Error(err))
		s.emit(ctx, types.SpeechEvent{Kind: types.SpeechError, Err: err})
		return
	}

	s.emit(ctx, types.SpeechEvent{Kind: types.SpeechStarted})
	for chunk := range chunks {
		select {
		case s.audio <- chunk:
		case <-ctx.Done():
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	s.emit(ctx, types.SpeechEvent{Kind: types.SpeechEnded})
}

func (s *Sink) emit(ctx context.Context, ev types.SpeechEvent) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
