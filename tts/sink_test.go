package tts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studymate/voice-session/types"
)

// scriptEngine plays back a fixed set of chunks with an optional delay
// between them.
type scriptEngine struct {
	chunks [][]byte
	delay  time.Duration
	err    error

	mu       sync.Mutex
	lastText string
	calls    int
}

func (e *scriptEngine) Name() string { return "script" }

func (e *scriptEngine) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	e.mu.Lock()
	e.lastText = text
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}

	out := make(chan []byte, len(e.chunks))
	go func() {
		defer close(out)
		for _, c := range e.chunks {
			if e.delay > 0 {
				select {
				case <-time.After(e.delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (e *scriptEngine) spokenText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastText
}

func nextEvent(t *testing.T, s *Sink) types.SpeechEvent {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for speech event")
		return types.SpeechEvent{}
	}
}

func TestSpeakLifecycleAndStripping(t *testing.T) {
	engine := &scriptEngine{chunks: [][]byte{{1, 2}, {3, 4}}}
	s := NewSink(engine, zap.NewNop())

	require.True(t, s.Speak("**Hello** `world`"))
	require.Equal(t, types.SpeechStarted, nextEvent(t, s).Kind)

	var got [][]byte
	for len(got) < 2 {
		select {
		case c := <-s.Audio():
			got = append(got, c)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for audio")
		}
	}
	require.Equal(t, types.SpeechEnded, nextEvent(t, s).Kind)
	require.Equal(t, "Hello world", engine.spokenText(), "sink must strip markup before synthesis")
}

func TestSpeakNothingAfterStripping(t *testing.T) {
	engine := &scriptEngine{}
	s := NewSink(engine, zap.NewNop())

	require.False(t, s.Speak("### "))
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %v for empty utterance", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopCancelsInFlightUtterance(t *testing.T) {
	engine := &scriptEngine{
		chunks: [][]byte{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}},
		delay:  20 * time.Millisecond,
	}
	s := NewSink(engine, zap.NewNop())

	require.True(t, s.Speak("a long explanation"))
	require.Equal(t, types.SpeechStarted, nextEvent(t, s).Kind)

	s.Stop()

	// A cancelled utterance emits no trailing end event.
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %v after stop", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopIdempotent(t *testing.T) {
	s := NewSink(&scriptEngine{}, zap.NewNop())
	s.Stop()
	s.Stop()

	require.True(t, s.Speak("still works"))
	require.Equal(t, types.SpeechStarted, nextEvent(t, s).Kind)
	s.Stop()
	s.Stop()
}

func TestSpeakReplacesInFlightUtterance(t *testing.T) {
	engine := &scriptEngine{
		chunks: [][]byte{{1}, {2}, {3}, {4}},
		delay:  20 * time.Millisecond,
	}
	s := NewSink(engine, zap.NewNop())

	require.True(t, s.Speak("first answer"))
	require.Equal(t, types.SpeechStarted, nextEvent(t, s).Kind)

	require.True(t, s.Speak("second answer"))
	require.Equal(t, types.SpeechStarted, nextEvent(t, s).Kind)
	require.Equal(t, "second answer", engine.spokenText())
}

func TestEngineErrorIsImplicitEnd(t *testing.T) {
	engine := &scriptEngine{err: errors.New("synthesis backend down")}
	s := NewSink(engine, zap.NewNop())

	require.True(t, s.Speak("doomed"))
	ev := nextEvent(t, s)
	require.Equal(t, types.SpeechError, ev.Kind)
	require.Error(t, ev.Err)
}
