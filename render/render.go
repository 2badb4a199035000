// Package render assembles answer view models. The browser owns
// presentation; this package only shapes what it paints.
package render

import (
	"fmt"
	"strings"

	"github.com/studymate/voice-session/types"
)

// ImageRef is one resolved page image of an answer view.
type ImageRef struct {
	Page int    `json:"page"`
	URL  string `json:"url"`
}

// View is the rendered form of an answer: the original (markup-preserving)
// text, a human-readable page reference line, and resolved image URLs.
type View struct {
	Text   string     `json:"text"`
	Pages  string     `json:"pages,omitempty"`
	Images []ImageRef `json:"images,omitempty"`
}

// Answer builds a View from a service payload. resolve maps image paths to
// fetchable URLs; nil leaves paths as-is.
func Answer(p types.AnswerPayload, resolve func(string) string) View {
	v := View{
		Text:  p.Answer,
		Pages: pagesLine(p.Pages),
	}
	for _, img := range p.Images {
		u := img.Path
		if resolve != nil {
			u = resolve(img.Path)
		}
		v.Images = append(v.Images, ImageRef{Page: img.Page, URL: u})
	}
	return v
}

// pagesLine formats the page reference line, e.g. "Found on pages: 12, 14".
func pagesLine(pages []int) string {
	if len(pages) == 0 {
		return ""
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return "Found on pages: " + strings.Join(parts, ", ")
}
