// Package session wires one study-page websocket connection to the voice
// conversation pipeline: uplinked microphone frames fan out to the
// recognizer and the level monitor, and everything the page should paint
// or play flows back as typed downlink events.
package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studymate/voice-session/config"
	"github.com/studymate/voice-session/conversation"
	"github.com/studymate/voice-session/render"
	"github.com/studymate/voice-session/stt"
	"github.com/studymate/voice-session/study"
	"github.com/studymate/voice-session/tts"
	"github.com/studymate/voice-session/types"
	"github.com/studymate/voice-session/vad"
)

// uplinkEvent is one message from the study page.
type uplinkEvent struct {
	Event     string `json:"event"` // "start", "select", "media", "stop"
	IndexName string `json:"index_name"`
	Media     struct {
		Payload string `json:"payload"` // base64 PCM frame
	} `json:"media"`
}

// Session owns the per-connection pipeline and implements
// conversation.Renderer so controller output lands on the downlink.
type Session struct {
	id         string
	ws         *websocket.Conn
	recognizer *stt.Recognizer
	monitor    *vad.Monitor
	sink       *tts.Sink
	study      *study.Client
	ctrl       *conversation.Controller
	out        *downlink
	logger     *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// New assembles a session for one websocket connection.
func New(ws *websocket.Conn, cfg *config.Config, studyClient *study.Client, engine tts.Engine, logger *zap.Logger) (*Session, error) {
	id := uuid.NewString()
	logger = logger.With(zap.String("session_id", id))

	recognizer, err := stt.NewRecognizer(cfg.DeepgramAPIKey, cfg.DeepgramURL, logger)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		id:         id,
		ws:         ws,
		recognizer: recognizer,
		monitor:    vad.NewMonitor(cfg.ActivityThreshold, cfg.InterruptThreshold, logger),
		sink:       tts.NewSink(engine, logger),
		study:      studyClient,
		out:        newDownlink(ws, logger),
		logger:     logger,
		done:       make(chan struct{}),
	}
	s.ctrl = conversation.New(
		conversation.Config{
			SilenceWindow:      cfg.SilenceWindow,
			MinTranscriptChars: cfg.MinTranscriptChars,
		},
		s.recognizer, s.sink, s.monitor, s.study, s, logger,
	)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Run services the connection until the page disconnects. It blocks.
func (s *Session) Run() {
	defer s.cleanup()

	go s.out.run()
	go s.forwardAudio()

	s.logger.Info("session connected")
	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("session closed")
			} else {
				s.logger.Warn("session read error", zap.Error(err))
			}
			return
		}

		var ev uplinkEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.logger.Warn("bad uplink event", zap.Error(err))
			continue
		}
		s.handle(ev)
	}
}

func (s *Session) handle(ev uplinkEvent) {
	switch ev.Event {
	case "start":
		if ev.IndexName != "" {
			s.ctrl.SelectMaterial(ev.IndexName)
		}
		if err := s.ctrl.Start(); err != nil {
			// The controller already rendered the user-facing status.
			s.logger.Warn("conversation did not start", zap.Error(err))
		}

	case "select":
		s.ctrl.SelectMaterial(ev.IndexName)

	case "media":
		frame, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
		if err != nil {
			s.logger.Debug("bad media payload", zap.Error(err))
			return
		}
		s.monitor.Process(frame)
		s.recognizer.Write(frame)

	case "stop":
		s.ctrl.Stop()

	default:
		s.logger.Debug("unknown uplink event", zap.String("event", ev.Event))
	}
}

// forwardAudio relays synthesized audio chunks to the page.
func (s *Session) forwardAudio() {
	for {
		select {
		case <-s.done:
			return
		case chunk := <-s.sink.Audio():
			s.out.push(audioEvent{
				Event:   "audio",
				Payload: base64.StdEncoding.EncodeToString(chunk),
			})
		}
	}
}

// cleanup releases everything the session acquired. Unconditional and
// idempotent: it runs on normal disconnect and on every error path.
func (s *Session) cleanup() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.ctrl.Stop()
		_ = s.recognizer.Close()
		s.out.close()
		_ = s.ws.Close()
		s.logger.Info("session resources released")
	})
}

// conversation.Renderer implementation.

func (s *Session) ShowState(st conversation.State) {
	s.out.push(stateEvent{Event: "state", State: st.String()})
}

func (s *Session) ShowTranscript(t types.Transcript) {
	s.out.push(transcriptEvent{Event: "transcript", Text: t.Text, Final: t.Final})
}

func (s *Session) ShowLevel(ev types.LevelEvent) {
	s.out.push(levelEvent{
		Event:  "level",
		Level:  ev.Level,
		Active: ev.Kind == types.LevelActivity,
	})
}

func (s *Session) ShowAnswer(p types.AnswerPayload) {
	s.out.push(answerEvent{
		Event: "answer",
		View:  render.Answer(p, s.study.ImageURL),
	})
}

func (s *Session) ShowStatus(kind, message string) {
	s.out.push(statusEvent{Event: "status", Kind: kind, Message: message})
}
