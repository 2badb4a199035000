package session

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/studymate/voice-session/queue"
	"github.com/studymate/voice-session/render"
)

// Downlink event shapes sent to the study page.

type stateEvent struct {
	Event string `json:"event"`
	State string `json:"state"`
}

type transcriptEvent struct {
	Event string `json:"event"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type statusEvent struct {
	Event   string `json:"event"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type levelEvent struct {
	Event  string  `json:"event"`
	Level  float64 `json:"level"`
	Active bool    `json:"active"`
}

type answerEvent struct {
	Event string `json:"event"`
	render.View
}

type audioEvent struct {
	Event   string `json:"event"`
	Payload string `json:"payload"` // base64-encoded audio chunk
}

// downlink serializes all outbound traffic through one writer goroutine.
// Producers (controller loop, synthesis stream, level monitor) push into an
// unbounded FIFO so a burst of audio chunks never blocks them.
type downlink struct {
	ws     *websocket.Conn
	q      *queue.Queue[any]
	logger *zap.Logger
}

func newDownlink(ws *websocket.Conn, logger *zap.Logger) *downlink {
	return &downlink{
		ws:     ws,
		q:      queue.New[any](),
		logger: logger,
	}
}

func (d *downlink) push(v any) {
	d.q.Push(v)
}

// run drains the queue onto the socket until the queue closes or the write
// fails.
func (d *downlink) run() {
	for {
		v, ok := d.q.Pop()
		if !ok {
			return
		}
		if err := d.ws.WriteJSON(v); err != nil {
			d.logger.Debug("downlink write failed", zap.Error(err))
			return
		}
	}
}

func (d *downlink) close() {
	d.q.Close()
}
