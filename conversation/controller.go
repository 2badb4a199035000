package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studymate/voice-session/types"
)

// Apology spoken and rendered when the study service fails to answer.
const Apology = "Sorry, I ran into a problem answering that. Please try again."

// ErrNoMaterial is returned by Start when no document has been selected.
var ErrNoMaterial = errors.New("conversation: no material selected")

// State is the controller's conversation state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SpeechSource is a continuous speech-to-text stream.
type SpeechSource interface {
	Start(ctx context.Context) error
	Transcripts() <-chan types.Transcript
	Fatal() <-chan error
	Close() error
}

// SpeechSink plays synthesized speech. Speak reports whether an utterance
// actually started (false when the cleaned text is empty).
type SpeechSink interface {
	Speak(text string) bool
	Stop()
	Events() <-chan types.SpeechEvent
}

// LevelSource emits microphone energy samples and threshold crossings.
type LevelSource interface {
	Events() <-chan types.LevelEvent
	ResetLatch()
}

// Asker submits a question to the study service.
type Asker interface {
	Ask(ctx context.Context, question, indexName string) (*types.AnswerPayload, error)
}

// Renderer receives everything the user should see.
type Renderer interface {
	ShowState(s State)
	ShowTranscript(t types.Transcript)
	ShowLevel(ev types.LevelEvent)
	ShowAnswer(p types.AnswerPayload)
	ShowStatus(kind, message string)
}

// Config tunes the controller.
type Config struct {
	// SilenceWindow is how long a finalized transcript must stay stable
	// before it is dispatched as a question.
	SilenceWindow time.Duration
	// MinTranscriptChars is the minimum trimmed transcript length that
	// counts as speech, for both dispatch and barge-in.
	MinTranscriptChars int
}

type askResult struct {
	payload *types.AnswerPayload
	err     error
}

// Controller owns the conversation state machine. All three asynchronous
// inputs (transcripts, level events, synthesis lifecycle) and the ask
// results funnel into a single event-loop goroutine, so ordering between
// them is explicit and no handler races another.
type Controller struct {
	cfg    Config
	source SpeechSource
	sink   SpeechSink
	levels LevelSource
	asker  Asker
	view   Renderer
	logger *zap.Logger

	askResults chan askResult

	mu        sync.Mutex
	state     State
	active    bool
	indexName string
	pending   string
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a Controller in the Idle state.
func New(cfg Config, source SpeechSource, sink SpeechSink, levels LevelSource, asker Asker, view Renderer, logger *zap.Logger) *Controller {
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = 1500 * time.Millisecond
	}
	if cfg.MinTranscriptChars <= 0 {
		cfg.MinTranscriptChars = 3
	}
	return &Controller{
		cfg:        cfg,
		source:     source,
		sink:       sink,
		levels:     levels,
		asker:      asker,
		view:       view,
		logger:     logger,
		askResults: make(chan askResult, 1),
		state:      StateIdle,
	}
}

// SelectMaterial sets the opaque index handle sent with every question.
func (c *Controller) SelectMaterial(indexName string) {
	c.mu.Lock()
	c.indexName = indexName
	c.mu.Unlock()
}

// State returns the current conversation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether a conversation is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Start moves Idle -> Listening: it requires a selected material, starts
// the speech source, and launches the event loop. Starting an already
// active conversation is a no-op.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil
	}
	if c.indexName == "" {
		c.mu.Unlock()
		c.view.ShowStatus("error", "Please select a PDF first.")
		return ErrNoMaterial
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.source.Start(ctx); err != nil {
		cancel()
		c.state = StateStopped
		c.mu.Unlock()
		c.logger.Error("speech source failed to start", zap.Error(err))
		c.view.ShowStatus("error", "Could not access the microphone stream.")
		c.view.ShowState(StateStopped)
		return err
	}

	c.active = true
	c.state = StateListening
	c.pending = ""
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.view.ShowState(StateListening)
	go c.run(ctx, done)
	return nil
}

// Stop forces any state to Stopped: recognition stops, synthesis is
// cancelled, the event loop exits and all timers die with it. Idempotent.
func (c *Controller) Stop() {
	done := c.teardown()
	if done == nil {
		return
	}
	<-done
	c.view.ShowState(StateStopped)
}

// teardown flips the controller inactive and releases resources. It
// returns the loop's done channel, or nil if the controller was not
// active. Split from Stop so the loop goroutine can tear itself down on a
// fatal source error without deadlocking on its own exit.
func (c *Controller) teardown() chan struct{} {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = false
	c.state = StateStopped
	c.pending = ""
	cancel := c.cancel
	c.cancel = nil
	done := c.done
	c.mu.Unlock()

	cancel()
	c.sink.Stop()
	if err := c.source.Close(); err != nil {
		c.logger.Debug("source close", zap.Error(err))
	}
	return done
}

// run is the single event loop. The silence timer lives here: exactly one
// outstanding timer, armed and replaced only from this goroutine.
func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(c.cfg.SilenceWindow)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false
	arm := func() {
		if armed && !timer.Stop() {
			<-timer.C
		}
		timer.Reset(c.cfg.SilenceWindow)
		armed = true
	}
	disarm := func() {
		if armed && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		armed = false
	}
	defer disarm()

	for {
		select {
		case <-ctx.Done():
			return

		case tr, ok := <-c.source.Transcripts():
			if !ok {
				return
			}
			c.handleTranscript(tr, arm, disarm)

		case err := <-c.source.Fatal():
			c.logger.Error("speech source fatal error", zap.Error(err))
			c.view.ShowStatus("error", "Microphone access was denied. Conversation stopped.")
			c.teardown()
			c.view.ShowState(StateStopped)
			return

		case lv := <-c.levels.Events():
			c.handleLevel(lv, disarm)

		case ev := <-c.sink.Events():
			c.handleSpeechEvent(ev)

		case res := <-c.askResults:
			c.handleAnswer(res)

		case <-timer.C:
			armed = false
			c.dispatch(ctx)
		}
	}
}

// handleTranscript applies the minimum-length filter, the barge-in rule,
// and the debounce. The latest finalized transcript within the silence
// window wins; each new one replaces the pending question and re-arms the
// single timer slot.
func (c *Controller) handleTranscript(tr types.Transcript, arm, disarm func()) {
	c.view.ShowTranscript(tr)

	if len(strings.TrimSpace(tr.Text)) < c.cfg.MinTranscriptChars {
		return
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == StateSpeaking {
		c.handleInterruption(disarm)
	}

	if !tr.Final {
		return
	}

	c.mu.Lock()
	if !c.active || c.state == StateProcessing {
		// At most one in-flight question: while processing, later
		// transcripts are consumed but never dispatched.
		c.mu.Unlock()
		return
	}
	c.pending = tr.Text
	c.mu.Unlock()
	arm()
}

// handleLevel forwards samples to the visual indicator and funnels
// interruption crossings into the same idempotent barge-in action the
// transcript path uses.
func (c *Controller) handleLevel(ev types.LevelEvent, disarm func()) {
	switch ev.Kind {
	case types.LevelInterrupt:
		c.handleInterruption(disarm)
	default:
		c.view.ShowLevel(ev)
	}
}

// handleInterruption is the barge-in: the user's voice wins over the
// assistant's within one monitoring tick. It bails out immediately when
// not speaking, so racing triggers (audio level vs. recognizer result)
// cancel synthesis at most once.
func (c *Controller) handleInterruption(disarm func()) {
	c.mu.Lock()
	if c.state != StateSpeaking {
		c.mu.Unlock()
		return
	}
	c.state = StateListening
	c.pending = ""
	c.mu.Unlock()

	c.sink.Stop()
	disarm()
	c.logger.Info("synthesis interrupted by user speech")
	c.view.ShowState(StateListening)
}

// dispatch fires when the silence window elapses with a stable pending
// question. At most one request is in flight; the timer is never armed
// while processing, so dispatch cannot double-fire.
func (c *Controller) dispatch(ctx context.Context) {
	c.mu.Lock()
	if !c.active || c.state != StateListening || c.pending == "" {
		c.mu.Unlock()
		return
	}
	question := c.pending
	indexName := c.indexName
	c.pending = ""
	c.state = StateProcessing
	c.mu.Unlock()

	c.view.ShowState(StateProcessing)
	c.logger.Info("dispatching question", zap.String("question", question))

	go func() {
		payload, err := c.asker.Ask(ctx, question, indexName)
		select {
		case c.askResults <- askResult{payload: payload, err: err}:
		case <-ctx.Done():
			// Conversation stopped while the request was in flight; the
			// late response is ignorable by design.
		}
	}()
}

// handleAnswer finishes a request cycle: render, then speak. Failures are
// reported with a spoken apology and the conversation keeps going.
func (c *Controller) handleAnswer(res askResult) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if res.err != nil {
		c.logger.Warn("question failed", zap.Error(res.err))
		c.view.ShowStatus("error", Apology)
		c.speak(Apology)
		return
	}

	c.view.ShowAnswer(*res.payload)
	c.speak(res.payload.Answer)
}

// speak starts synthesis and enters Speaking, re-arming the interruption
// latch so this utterance can be barged into. When there is nothing to
// speak the controller returns straight to Listening.
func (c *Controller) speak(text string) {
	c.levels.ResetLatch()
	spoken := c.sink.Speak(text)

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	if spoken {
		c.state = StateSpeaking
	} else {
		c.state = StateListening
	}
	state := c.state
	c.mu.Unlock()
	c.view.ShowState(state)
}

// handleSpeechEvent returns to Listening when an utterance finishes. A
// synthesis error is an implicit end.
func (c *Controller) handleSpeechEvent(ev types.SpeechEvent) {
	switch ev.Kind {
	case types.SpeechStarted:
		return
	case types.SpeechError:
		c.logger.Warn("synthesis error", zap.Error(ev.Err))
	}

	c.mu.Lock()
	if !c.active || c.state != StateSpeaking {
		c.mu.Unlock()
		return
	}
	c.state = StateListening
	c.mu.Unlock()
	c.view.ShowState(StateListening)
}
