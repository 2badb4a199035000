package vad

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studymate/voice-session/types"
)

// pcmFrame builds a frame of n identical 16-bit little-endian samples.
func pcmFrame(amplitude int16, n int) []byte {
	frame := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(frame[2*i:], uint16(amplitude))
	}
	return frame
}

// drain collects every pending event, counted by kind.
func drain(m *Monitor) map[types.LevelKind]int {
	counts := map[types.LevelKind]int{}
	for {
		select {
		case ev := <-m.Events():
			counts[ev.Kind]++
		default:
			return counts
		}
	}
}

func TestFrameLevel(t *testing.T) {
	require.Equal(t, 0.0, frameLevel(nil))
	require.Equal(t, 0.0, frameLevel(pcmFrame(0, 160)))

	full := frameLevel(pcmFrame(32767, 160))
	require.InDelta(t, 255, full, 0.01)

	half := frameLevel(pcmFrame(16384, 160))
	require.InDelta(t, 127.5, half, 0.5)

	// Negative samples contribute their magnitude.
	require.InDelta(t, full, frameLevel(pcmFrame(-32767, 160)), 0.01)
}

func TestThresholdCrossingsFireOncePerRisingEdge(t *testing.T) {
	m := NewMonitor(30, 50, zap.NewNop())

	loud := pcmFrame(16384, 160) // well above both thresholds
	m.Process(loud)
	counts := drain(m)
	require.Equal(t, 1, counts[types.LevelSample])
	require.Equal(t, 1, counts[types.LevelActivity])
	require.Equal(t, 1, counts[types.LevelInterrupt])

	// Staying above the threshold must not re-fire.
	m.Process(loud)
	m.Process(loud)
	counts = drain(m)
	require.Equal(t, 2, counts[types.LevelSample])
	require.Zero(t, counts[types.LevelActivity])
	require.Zero(t, counts[types.LevelInterrupt])
}

func TestLatchReArmsAfterFallingBelow(t *testing.T) {
	m := NewMonitor(30, 50, zap.NewNop())
	loud := pcmFrame(16384, 160)
	quiet := pcmFrame(100, 160)

	m.Process(loud)
	drain(m)

	m.Process(quiet)
	counts := drain(m)
	require.Equal(t, 1, counts[types.LevelSample])
	require.Zero(t, counts[types.LevelInterrupt])

	m.Process(loud)
	counts = drain(m)
	require.Equal(t, 1, counts[types.LevelInterrupt], "falling below the threshold re-arms the latch")
}

func TestResetLatchAllowsNextUtteranceInterruption(t *testing.T) {
	m := NewMonitor(30, 50, zap.NewNop())
	loud := pcmFrame(16384, 160)

	m.Process(loud)
	drain(m)

	// Level never dropped, but a new synthesized utterance re-arms.
	m.ResetLatch()
	m.Process(loud)
	counts := drain(m)
	require.Equal(t, 1, counts[types.LevelInterrupt])
}

func TestIntermediateLevelFiresActivityOnly(t *testing.T) {
	m := NewMonitor(30, 50, zap.NewNop())

	// Roughly level 40: above activity, below interrupt.
	mid := pcmFrame(5140, 160)
	m.Process(mid)
	counts := drain(m)
	require.Equal(t, 1, counts[types.LevelActivity])
	require.Zero(t, counts[types.LevelInterrupt])
}
