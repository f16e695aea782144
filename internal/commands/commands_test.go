package commands

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RichardoC/relaychat/internal/config"
)

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Conversation-ID", "conv-1")
		for _, f := range frames {
			io.WriteString(w, "data: "+f+"\n\n")
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunChat_StreamsReply(t *testing.T) {
	srv := sseServer(t,
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"error":"retrieval degraded"}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`[DONE]`,
	)

	var out bytes.Buffer
	err := runChat(context.Background(), strings.NewReader("hi\n/exit\nnever sent\n"), &out,
		&chatOptions{server: srv.URL, prompt: "default", width: 80})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Hel")
	assert.Contains(t, text, "lo\n")
	assert.Contains(t, text, "! retrieval degraded")
	assert.NotContains(t, text, "Error:")
}

func TestRunChat_ShowsRequestErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runChat(context.Background(), strings.NewReader("hi\n\n/new\n"), &out,
		&chatOptions{server: srv.URL, prompt: "research", width: 80})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Error: backend down")
	assert.Contains(t, out.String(), "Started a new conversation.")
}

func TestRunChat_Render(t *testing.T) {
	srv := sseServer(t, `{"choices":[{"delta":{"content":"**bold** answer"}}]}`, `[DONE]`)

	var out bytes.Buffer
	err := runChat(context.Background(), strings.NewReader("hi\n"), &out,
		&chatOptions{server: srv.URL, prompt: "default", render: true, width: 60})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "answer")
}

func TestRunChat_UnknownPreset(t *testing.T) {
	err := runChat(context.Background(), strings.NewReader(""), io.Discard,
		&chatOptions{server: "http://127.0.0.1:1", prompt: "pirate"})
	assert.EqualError(t, err, `unknown prompt preset "pirate"`)
}

func TestPromptsCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"prompts"})

	require.NoError(t, cmd.Execute())
	for _, id := range []string{"default", "research", "critic", "rag"} {
		assert.Contains(t, out.String(), id)
	}
	assert.Contains(t, out.String(), "(default)")
}

func TestNewRelay(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"rag":{"enabled":true}}`)
	}))
	defer backend.Close()

	cfg := config.Default()
	cfg.Backend.URL = backend.URL
	cfg.Storage.Path = filepath.Join(t.TempDir(), "relay.db")

	srv, err := newRelay(cfg, zap.NewNop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","backend_configured":true,"history":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rag":{"enabled":true}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, srv.Shutdown(context.Background()))
}
