package client

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
)

// ConversationHeader carries the server-side conversation ID on chat replies.
const ConversationHeader = "X-Conversation-ID"

// Request is one chat exchange as sent to the relay.
type Request struct {
	Messages       []models.ChatMessage `json:"messages"`
	ConversationID string               `json:"conversation_id,omitempty"`
}

// Stream is an open SSE reply.
type Stream struct {
	Body           io.ReadCloser
	ConversationID string
}

// Transport opens chat streams.
type Transport interface {
	Open(ctx context.Context, req Request) (*Stream, error)
}

// HTTPTransport talks to a relaychat server over HTTP.
type HTTPTransport struct {
	server string
	client *http.Client
}

func NewHTTPTransport(server string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{server: strings.TrimRight(server, "/"), client: client}
}

func (t *HTTPTransport) Open(ctx context.Context, req Request) (*Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.server+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.Body == nil || resp.Body == http.NoBody {
		var text []byte
		if resp.Body != nil {
			text, _ = io.ReadAll(resp.Body)
			resp.Body.Close()
		}
		if msg := strings.TrimSpace(string(text)); msg != "" {
			return nil, errors.New(msg)
		}
		return nil, errors.New("Network error")
	}

	return &Stream{Body: resp.Body, ConversationID: resp.Header.Get(ConversationHeader)}, nil
}
