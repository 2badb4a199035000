package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/studymate/voice-session/types"
)

const (
	initialRedialBackoff = 250 * time.Millisecond
	maxRedialBackoff     = 5 * time.Second
)

// ErrUnauthorized is reported on Fatal() when Deepgram rejects the
// credentials during the websocket handshake. It is the service-side
// equivalent of a denied microphone permission: the conversation cannot
// continue and must be stopped.
var ErrUnauthorized = errors.New("stt: deepgram rejected credentials")

// transcriptMessage is the slice of Deepgram's streaming response we care
// about.
type transcriptMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Recognizer streams microphone audio to Deepgram and emits transcript
// events. It supervises its own connection: benign stream terminations
// (read errors, server-side timeouts on silence) are redialed with capped
// exponential backoff for as long as the session context is alive, while
// credential rejections surface on Fatal().
type Recognizer struct {
	apiKey   string
	endpoint string
	logger   *zap.Logger

	frames      chan []byte
	transcripts chan types.Transcript
	fatal       chan error

	mu   sync.Mutex
	conn *gws.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// NewRecognizer builds a Recognizer. Start must be called before any frames
// are accepted.
func NewRecognizer(apiKey, endpoint string, logger *zap.Logger) (*Recognizer, error) {
	if apiKey == "" {
		return nil, errors.New("stt: api key is required")
	}
	if endpoint == "" {
		return nil, errors.New("stt: endpoint is required")
	}
	return &Recognizer{
		apiKey:      apiKey,
		endpoint:    endpoint,
		logger:      logger,
		frames:      make(chan []byte, 64),
		transcripts: make(chan types.Transcript, 16),
		fatal:       make(chan error, 1),
		done:        make(chan struct{}),
	}, nil
}

// Transcripts delivers interim and final transcript events. Events for the
// same utterance arrive in non-decreasing finality order; a single reader
// goroutine preserves the engine's ordering.
func (r *Recognizer) Transcripts() <-chan types.Transcript { return r.transcripts }

// Fatal delivers at most one unrecoverable error (credential rejection).
func (r *Recognizer) Fatal() <-chan error { return r.fatal }

// Start dials Deepgram and launches the uplink pump and the supervised
// reader. It returns an error only when the very first dial fails; later
// terminations are handled by the redial policy.
func (r *Recognizer) Start(ctx context.Context) error {
	conn, err := r.dial()
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		return fmt.Errorf("stt: dial deepgram: %w", err)
	}
	r.setConn(conn)
	go r.pump(ctx)
	go r.readLoop(ctx)
	return nil
}

// Write queues an audio frame for the uplink. Frames are dropped when the
// pump falls behind; losing a frame degrades recognition slightly but must
// never block the session's read loop.
func (r *Recognizer) Write(frame []byte) {
	if len(frame) == 0 {
		return
	}
	select {
	case r.frames <- frame:
	case <-r.done:
	default:
		r.logger.Debug("recognizer uplink full, dropping frame", zap.Int("bytes", len(frame)))
	}
}

// Close shuts the connection down. Idempotent.
func (r *Recognizer) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		conn := r.conn
		r.conn = nil
		r.mu.Unlock()
		if conn != nil {
			_ = conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, "session ended"))
			_ = conn.Close()
		}
	})
	return nil
}

func (r *Recognizer) dial() (*gws.Conn, error) {
	header := http.Header{
		"Authorization": {fmt.Sprintf("Token %s", r.apiKey)},
	}
	conn, resp, err := gws.DefaultDialer.Dial(r.endpoint, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

func (r *Recognizer) setConn(conn *gws.Conn) {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
}

func (r *Recognizer) currentConn() *gws.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

// pump forwards queued audio frames to the live connection.
func (r *Recognizer) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case frame := <-r.frames:
			conn := r.currentConn()
			if conn == nil {
				continue
			}
			if err := conn.WriteMessage(gws.BinaryMessage, frame); err != nil {
				// The reader notices the broken connection and redials;
				// frames written in the gap are lost, which is fine.
				r.logger.Debug("recognizer write failed", zap.Error(err))
			}
		}
	}
}

// readLoop consumes transcript messages and redials on benign termination.
func (r *Recognizer) readLoop(ctx context.Context) {
	backoff := initialRedialBackoff
	for {
		conn := r.currentConn()
		if conn == nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || r.isClosed() {
				return
			}
			r.logger.Warn("recognizer stream ended, redialing", zap.Error(err))
			if !r.redial(ctx, &backoff) {
				return
			}
			continue
		}
		backoff = initialRedialBackoff
		if tr, ok := parseTranscript(msg); ok {
			select {
			case r.transcripts <- tr:
			case <-r.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// redial attempts to re-establish the stream, sleeping between attempts.
// It returns false when the session is over or the credentials are bad.
func (r *Recognizer) redial(ctx context.Context, backoff *time.Duration) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-r.done:
			return false
		case <-time.After(*backoff):
		}
		*backoff = nextBackoff(*backoff)

		conn, err := r.dial()
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				select {
				case r.fatal <- err:
				default:
				}
				return false
			}
			r.logger.Warn("recognizer redial failed", zap.Error(err), zap.Duration("next_backoff", *backoff))
			continue
		}
		r.logger.Info("recognizer stream re-established")
		r.setConn(conn)
		return true
	}
}

func (r *Recognizer) isClosed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxRedialBackoff {
		return maxRedialBackoff
	}
	return d
}

// parseTranscript extracts a transcript event from a raw Deepgram message.
// Metadata frames and empty transcripts yield ok=false.
func parseTranscript(msg []byte) (types.Transcript, bool) {
	if len(msg) == 0 || msg[0] != '{' {
		return types.Transcript{}, false
	}
	var m transcriptMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return types.Transcript{}, false
	}
	if len(m.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}
	text := m.Channel.Alternatives[0].Transcript
	if text == "" {
		return types.Transcript{}, false
	}
	return types.Transcript{Text: text, Final: m.IsFinal}, true
}
