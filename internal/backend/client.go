// Package backend talks to the external RAG/LLM service that does the real
// work: chat generation, configuration and document ingestion.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/RichardoC/relaychat/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL and DefaultAPIKey are used for chat when nothing is
	// configured, matching a locally running development backend.
	DefaultBaseURL = "http://localhost:3001"
	DefaultAPIKey  = "dev123"
)

// UpstreamError is a non-successful backend response, kept verbatim.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}

// AsUpstream unwraps err into an *UpstreamError when it is one.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	baseURL    string
	apiKey     string
	configured bool
	http       *http.Client
	logger     *zap.Logger
}

// New builds a Client. Missing URL or key fall back to the development
// defaults for chat; Configured reports whether both were given explicitly.
func New(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		configured: opts.BaseURL != "" && opts.APIKey != "",
		http:       opts.HTTPClient,
		logger:     opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.apiKey == "" {
		c.apiKey = DefaultAPIKey
	}
	if c.http == nil {
		// No timeout: a generation may legitimately stream for minutes.
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

func (c *Client) Configured() bool { return c.configured }

func (c *Client) BaseURL() string { return c.baseURL }

type chatRequest struct {
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
}

// Chat starts a streamed generation. The model is chosen by the backend.
// On success the caller owns the returned NDJSON body and must close it.
func (c *Client) Chat(ctx context.Context, messages []models.ChatMessage) (io.ReadCloser, error) {
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	body, err := json.Marshal(chatRequest{Messages: messages, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend chat request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.Body == nil || resp.Body == http.NoBody {
		return nil, c.upstreamError(resp)
	}

	c.logger.Debug("backend chat stream opened",
		zap.Int("messages", len(messages)),
		zap.Int("status", resp.StatusCode))
	return resp.Body, nil
}

// GetJSON fetches a JSON document from the backend.
func (c *Client) GetJSON(ctx context.Context, path string) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodGet, path, nil)
}

// SendJSON sends body (which may be nil) with the given method and returns
// the backend's JSON reply.
func (c *Client) SendJSON(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	return c.doJSON(ctx, method, path, body)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return nil, err
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.upstreamError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("backend %s %s: response is not JSON", method, path)
	}
	return json.RawMessage(data), nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// upstreamError drains and closes resp, returning its status and raw text.
func (c *Client) upstreamError(resp *http.Response) error {
	var text string
	if resp.Body != nil {
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			text = "Upstream error"
		} else {
			text = string(data)
		}
	}

	c.logger.Warn("backend request failed",
		zap.String("url", resp.Request.URL.Path),
		zap.Int("status", resp.StatusCode))
	return &UpstreamError{Status: resp.StatusCode, Body: text}
}
