package tts

import (
	"regexp"
	"strings"
)

var (
	imageRe   = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkRe    = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	boldRe    = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldAltRe = regexp.MustCompile(`__([^_]+)__`)
	italicRe  = regexp.MustCompile(`\*([^*]+)\*`)
	codeRe    = regexp.MustCompile("`([^`]+)`")
	headingRe = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	spaceRe   = regexp.MustCompile(`[ \t]+`)
)

// CleanForSpeech strips markdown decoration from answer text so the
// synthesizer does not read asterisks and backticks aloud. The rendered
// visual text is untouched; only the spoken copy goes through here.
func CleanForSpeech(text string) string {
	text = imageRe.ReplaceAllString(text, "")
	text = linkRe.ReplaceAllString(text, "$1")
	text = boldRe.ReplaceAllString(text, "$1")
	text = boldAltRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = codeRe.ReplaceAllString(text, "$1")
	text = headingRe.ReplaceAllString(text, "")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
