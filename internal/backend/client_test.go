package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RichardoC/relaychat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.False(t, c.Configured())

	c = New(Options{BaseURL: "http://backend:8000/", APIKey: "k"})
	assert.Equal(t, "http://backend:8000", c.BaseURL())
	assert.True(t, c.Configured())

	assert.False(t, New(Options{BaseURL: "http://backend:8000"}).Configured())
}

func TestChat_SendsHistoryAndStreamFlag(t *testing.T) {
	var gotAuth string
	var gotBody map[string]json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		io.WriteString(w, `{"message":{"content":"hi"}}`+"\n"+`{"done":true}`+"\n")
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, APIKey: "secret"})
	body, err := c.Chat(context.Background(), []models.ChatMessage{
		{Role: models.RoleSystem, Content: "be brief"},
		{Role: models.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.JSONEq(t, `[{"role":"system","content":"be brief"},{"role":"user","content":"hello"}]`, string(gotBody["messages"]))
	assert.Equal(t, "true", string(gotBody["stream"]))
	_, hasModel := gotBody["model"]
	assert.False(t, hasModel, "model is chosen server-side")
	assert.Contains(t, string(data), `"done":true`)
}

func TestChat_UpstreamFailureIsVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "invalid api key")
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, APIKey: "bad"})
	_, err := c.Chat(context.Background(), nil)
	require.Error(t, err)

	ue, ok := AsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, ue.Status)
	assert.Equal(t, "invalid api key", ue.Body)
}

func TestChat_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Options{BaseURL: url, APIKey: "k"}).Chat(context.Background(), nil)
	require.Error(t, err)
	_, ok := AsUpstream(err)
	assert.False(t, ok)
}

func TestSendJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/config/rag", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, APIKey: "k"})
	got, err := c.SendJSON(context.Background(), http.MethodPatch, "/v1/config/rag", map[string]int{"n_results": 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n_results":5}`, string(got))
}

func TestGetJSON_RejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>")
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL, APIKey: "k"}).GetJSON(context.Background(), "/v1/config")
	assert.Error(t, err)
}

func TestUpload_Multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/upload-docs", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "research", r.FormValue("collection_name"))
		assert.Equal(t, "test-user", r.FormValue("user_id"))

		files := r.MultipartForm.File["files"]
		require.Len(t, files, 2)
		assert.Equal(t, "a.txt", files[0].Filename)
		assert.Equal(t, "text/plain", files[0].Header.Get("Content-Type"))
		assert.Equal(t, `b "quoted".pdf`, files[1].Filename)

		io.WriteString(w, `{"ingested":2}`)
	}))
	defer srv.Close()

	open := func(s string) func() (io.ReadCloser, error) {
		return func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(s)), nil }
	}

	c := New(Options{BaseURL: srv.URL, APIKey: "k"})
	got, err := c.Upload(context.Background(), UploadRequest{
		Files: []UploadFile{
			{Name: "a.txt", ContentType: "text/plain", Open: open("hello")},
			{Name: `b "quoted".pdf`, Open: open("%PDF")},
		},
		CollectionName: "research",
		UserID:         "test-user",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ingested":2}`, string(got))
}

func TestUpload_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, "bad collection")
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL, APIKey: "k"}).Upload(context.Background(), UploadRequest{
		Files: []UploadFile{{Name: "a.txt", Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("x")), nil
		}}},
	})
	ue, ok := AsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, ue.Status)
	assert.Equal(t, "bad collection", ue.Body)
}
