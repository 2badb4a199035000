package types

// Transcript is the most recent recognized utterance segment. Interim
// transcripts are superseded by later segments of the same utterance; a
// Final transcript is what the recognition engine considers complete.
type Transcript struct {
	Text  string
	Final bool
}

// LevelKind classifies an audio level event.
type LevelKind int

const (
	// LevelSample is a plain magnitude sample, emitted per audio frame.
	LevelSample LevelKind = iota
	// LevelActivity marks a rising edge across the lower voice-activity
	// threshold.
	LevelActivity
	// LevelInterrupt marks a rising edge across the higher interruption
	// threshold.
	LevelInterrupt
)

// LevelEvent carries the current microphone energy on a 0-255 scale.
type LevelEvent struct {
	Level float64
	Kind  LevelKind
}

// SpeechEventKind classifies a synthesis lifecycle event.
type SpeechEventKind int

const (
	SpeechStarted SpeechEventKind = iota
	SpeechEnded
	SpeechError
)

// SpeechEvent is a lifecycle signal from the speech output sink. An error
// event is treated as an implicit end of the utterance.
type SpeechEvent struct {
	Kind SpeechEventKind
	Err  error
}

// AnswerImage references a page image attached to an answer.
type AnswerImage struct {
	Page int    `json:"page"`
	Path string `json:"path"`
}

// AnswerPayload is the study service's response to a question.
type AnswerPayload struct {
	Answer string        `json:"answer"`
	Images []AnswerImage `json:"images,omitempty"`
	Pages  []int         `json:"pages,omitempty"`
}

// PDFInfo describes one preloaded document offered by the study service.
// IndexName is the opaque handle supplied with every question.
type PDFInfo struct {
	IndexName   string `json:"index_name"`
	DisplayName string `json:"display_name"`
}
