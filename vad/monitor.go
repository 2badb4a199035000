package vad

import (
	"sync"

	"go.uber.org/zap"

	"github.com/studymate/voice-session/types"
)

// Monitor reduces incoming PCM frames to a scalar energy level and signals
// threshold crossings. It taps the same frame stream the recognizer
// consumes, so its cadence tracks the capture frame rate (~50-60 Hz for
// typical 16-20ms frames).
//
// Crossings are latched: each threshold fires exactly once per rising edge
// and re-arms only after the level falls back below it. ResetLatch re-arms
// both latches explicitly so that every synthesized utterance can be
// interrupted regardless of earlier excursions.
type Monitor struct {
	activityThreshold  float64
	interruptThreshold float64
	logger             *zap.Logger

	events chan types.LevelEvent

	mu               sync.Mutex
	activityLatched  bool
	interruptLatched bool
}

// NewMonitor builds a Monitor. Thresholds are on the 0-255 level scale;
// the interrupt threshold is expected to sit above the activity threshold.
func NewMonitor(activityThreshold, interruptThreshold float64, logger *zap.Logger) *Monitor {
	return &Monitor{
		activityThreshold:  activityThreshold,
		interruptThreshold: interruptThreshold,
		logger:             logger,
		events:             make(chan types.LevelEvent, 64),
	}
}

// Events delivers level samples and latched threshold crossings.
func (m *Monitor) Events() <-chan types.LevelEvent { return m.events }

// Process ingests one PCM frame (16-bit little-endian samples). It never
// blocks; if the consumer falls behind, samples are dropped first and
// crossings rely on the channel's slack.
func (m *Monitor) Process(frame []byte) {
	level := frameLevel(frame)
	m.emit(types.LevelEvent{Level: level, Kind: types.LevelSample})

	m.mu.Lock()
	fireActivity := false
	fireInterrupt := false
	if level >= m.activityThreshold {
		if !m.activityLatched {
			m.activityLatched = true
			fireActivity = true
		}
	} else {
		m.activityLatched = false
	}
	if level >= m.interruptThreshold {
		if !m.interruptLatched {
			m.interruptLatched = true
			fireInterrupt = true
		}
	} else {
		m.interruptLatched = false
	}
	m.mu.Unlock()

	if fireActivity {
		m.emit(types.LevelEvent{Level: level, Kind: types.LevelActivity})
	}
	if fireInterrupt {
		m.logger.Debug("interruption threshold crossed", zap.Float64("level", level))
		m.emit(types.LevelEvent{Level: level, Kind: types.LevelInterrupt})
	}
}

// ResetLatch re-arms both threshold latches.
func (m *Monitor) ResetLatch() {
	m.mu.Lock()
	m.activityLatched = false
	m.interruptLatched = false
	m.mu.Unlock()
}

func (m *Monitor) emit(ev types.LevelEvent) {
	select {
	case m.events <- ev:
	default:
	}
}

// frameLevel is the mean absolute amplitude of the frame's 16-bit samples,
// scaled to 0-255.
func frameLevel(frame []byte) float64 {
	if len(frame) < 2 {
		return 0
	}
	var sum float64
	n := len(frame) / 2
	for i := 0; i < n; i++ {
		s := int16(uint16(frame[2*i]) | uint16(frame[2*i+1])<<8)
		if s < 0 {
			// -32768 negates to itself; clamp instead.
			if s == -32768 {
				s = 32767
			} else {
				s = -s
			}
		}
		sum += float64(s)
	}
	return sum / float64(n) * 255 / 32767
}
