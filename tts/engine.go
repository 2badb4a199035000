package tts

import (
	"context"
	"strings"
)

// Engine turns text into a stream of encoded audio chunks. Cancelling the
// context aborts synthesis; the returned channel is closed when the stream
// ends for any reason.
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, text string) (<-chan []byte, error)
}

// Silent is the engine used when spoken playback is disabled: utterances
// start and end immediately without producing audio, so the conversation
// loop behaves identically with playback on or off.
type Silent struct{}

func (Silent) Name() string { return "off" }

func (Silent) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	out := make(chan []byte)
	close(out)
	return out, nil
}

// Voice is one synthesis voice an engine can offer.
type Voice struct {
	ID   string
	Name string
}

// pickVoice returns the ID of the first available voice whose name matches
// an entry of the preference list (case-insensitive substring match), or
// fallback when nothing matches.
func pickVoice(available []Voice, prefs []string, fallback string) string {
	for _, pref := range prefs {
		p := strings.ToLower(pref)
		for _, v := range available {
			if strings.Contains(strings.ToLower(v.Name), p) {
				return v.ID
			}
		}
	}
	return fallback
}
