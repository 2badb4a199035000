package study

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/studymate/voice-session/types"
)

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("study: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// askRequest is the question body sent to the study service.
type askRequest struct {
	Question  string `json:"question"`
	IndexName string `json:"index_name"`
}

// listResponse is the shape of the document listing. A missing or empty
// list is a valid state, not an error.
type listResponse struct {
	PDFs []types.PDFInfo `json:"pdfs"`
}

// Client talks to the remote retrieval/answering collaborator. The
// collaborator is opaque: this client only knows its two endpoints and the
// origin against which answer image paths resolve.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (test seam).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// NewClient builds a Client for the service at baseURL.
func NewClient(baseURL string, logger *zap.Logger, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("study: base url must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("study: invalid base url: %w", err)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListPDFs fetches the preloaded documents. An empty catalog returns an
// empty (non-nil) slice.
func (c *Client) ListPDFs(ctx context.Context) ([]types.PDFInfo, error) {
	reqURL := c.baseURL + "/pdfs"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("study: create request: %w", err)
	}

	raw, err := c.doJSONRequest(req, reqURL)
	if err != nil {
		return nil, fmt.Errorf("study: list pdfs: %w", err)
	}

	var payload listResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("study: decode pdf list: %w", err)
	}
	if payload.PDFs == nil {
		return []types.PDFInfo{}, nil
	}
	return payload.PDFs, nil
}

// Ask submits a question against the selected material. Non-2xx responses
// are failures.
func (c *Client) Ask(ctx context.Context, question, indexName string) (*types.AnswerPayload, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("study: question must not be empty")
	}
	if strings.TrimSpace(indexName) == "" {
		return nil, errors.New("study: index name must not be empty")
	}

	body, err := json.Marshal(askRequest{Question: question, IndexName: indexName})
	if err != nil {
		return nil, fmt.Errorf("study: marshal question: %w", err)
	}

	reqURL := c.baseURL + "/ask"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("study: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.doJSONRequest(req, reqURL)
	if err != nil {
		return nil, fmt.Errorf("study: ask: %w", err)
	}

	var payload types.AnswerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("study: decode answer: %w", err)
	}
	return &payload, nil
}

// ImageURL resolves an answer image path against the service origin.
// Absolute URLs pass through unchanged.
func (c *Client) ImageURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) doJSONRequest(req *http.Request, reqURL string) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        reqURL,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
