package study

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studymate/voice-session/types"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("", zap.NewNop())
	require.Error(t, err)

	c, err := NewClient("http://study.local/api/", zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "http://study.local/api", c.baseURL, "trailing slash is trimmed")
}

func TestListPDFs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pdfs", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pdfs": []map[string]string{
				{"index_name": "physics-vol-1", "display_name": "Physics Vol 1.pdf"},
			},
		})
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, zap.NewNop())
	require.NoError(t, err)

	pdfs, err := c.ListPDFs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []types.PDFInfo{{IndexName: "physics-vol-1", DisplayName: "Physics Vol 1.pdf"}}, pdfs)
}

func TestListPDFsEmptyCatalogIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, zap.NewNop())
	require.NoError(t, err)

	pdfs, err := c.ListPDFs(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pdfs)
	require.Empty(t, pdfs)
}

func TestAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ask", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req askRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "what is the capital of france", req.Question)
		require.Equal(t, "geography-101", req.IndexName)

		_ = json.NewEncoder(w).Encode(types.AnswerPayload{
			Answer: "Paris is the capital.",
			Pages:  []int{12},
		})
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, zap.NewNop())
	require.NoError(t, err)

	got, err := c.Ask(context.Background(), "what is the capital of france", "geography-101")
	require.NoError(t, err)
	require.Equal(t, "Paris is the capital.", got.Answer)
	require.Equal(t, []int{12}, got.Pages)
}

func TestAskNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, zap.NewNop())
	require.NoError(t, err)

	_, err = c.Ask(context.Background(), "anything", "idx")
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestAskNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, zap.NewNop())
	require.NoError(t, err)

	_, err = c.Ask(context.Background(), "anything", "idx")
	require.Error(t, err)
}

func TestAskInputValidation(t *testing.T) {
	c, err := NewClient("http://study.local", zap.NewNop())
	require.NoError(t, err)

	_, err = c.Ask(context.Background(), "  ", "idx")
	require.Error(t, err)
	_, err = c.Ask(context.Background(), "question", "")
	require.Error(t, err)
}

func TestImageURL(t *testing.T) {
	c, err := NewClient("http://study.local/api", zap.NewNop())
	require.NoError(t, err)

	require.Equal(t, "http://study.local/api/images/p12.png", c.ImageURL("images/p12.png"))
	require.Equal(t, "http://study.local/api/images/p12.png", c.ImageURL("/images/p12.png"))
	require.Equal(t, "https://cdn.example.com/x.png", c.ImageURL("https://cdn.example.com/x.png"))
	require.Equal(t, "", c.ImageURL(""))
}
