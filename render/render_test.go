package render

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studymate/voice-session/types"
)

func TestAnswerPagesLine(t *testing.T) {
	v := Answer(types.AnswerPayload{Answer: "Paris is the capital.", Pages: []int{12}}, nil)
	require.Equal(t, "Paris is the capital.", v.Text)
	require.Equal(t, "Found on pages: 12", v.Pages)

	v = Answer(types.AnswerPayload{Answer: "x", Pages: []int{12, 14, 30}}, nil)
	require.Equal(t, "Found on pages: 12, 14, 30", v.Pages)

	v = Answer(types.AnswerPayload{Answer: "x"}, nil)
	require.Empty(t, v.Pages)
}

func TestAnswerKeepsMarkupInVisualText(t *testing.T) {
	// The spoken copy is cleaned elsewhere; the rendered text keeps its
	// markdown untouched.
	raw := "**Bold** claims need `citations`."
	v := Answer(types.AnswerPayload{Answer: raw}, nil)
	require.Equal(t, raw, v.Text)
}

func TestAnswerResolvesImages(t *testing.T) {
	resolve := func(p string) string { return "http://svc" + "/" + p }
	v := Answer(types.AnswerPayload{
		Answer: "see figure",
		Images: []types.AnswerImage{{Page: 3, Path: "img/p3.png"}},
	}, resolve)
	require.Equal(t, []ImageRef{{Page: 3, URL: "http://svc/img/p3.png"}}, v.Images)

	v = Answer(types.AnswerPayload{
		Answer: "see figure",
		Images: []types.AnswerImage{{Page: 3, Path: "img/p3.png"}},
	}, nil)
	require.Equal(t, "img/p3.png", v.Images[0].URL)
}
