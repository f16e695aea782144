package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RichardoC/relaychat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedConversation(t *testing.T, env *testEnv, question string) string {
	t.Helper()
	req := ChatRequest{Messages: []models.ChatMessage{{Role: models.RoleUser, Content: question}}}
	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/chat", chatBody(t, req)))
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(ConversationHeader)
	require.NotEmpty(t, id)
	return id
}

func TestConversations_ListAndMessages(t *testing.T) {
	fb := newFakeBackend(t, ndjson(`{"message":{"content":"Paris"}}`, `{"done":true}`))
	env := newTestEnv(t, fb.URL, true)

	id := seedConversation(t, env, "capital of France?")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var convs []models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, id, convs[0].ID)
	assert.Equal(t, "capital of France?", convs[0].Title)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/conversations/"+id+"/messages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []models.StoredMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "Paris", msgs[1].Content)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/conversations/missing/messages", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Conversation not found"}`, rec.Body.String())
}

func TestConversations_Search(t *testing.T) {
	fb := newFakeBackend(t, ndjson(`{"message":{"content":"Paris"}}`, `{"done":true}`))
	env := newTestEnv(t, fb.URL, true)
	seedConversation(t, env, "capital of France?")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/conversations/search?q=paris", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var hits []models.StoredMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, models.RoleAssistant, hits[0].Role)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/conversations/search?q=+", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversations_RenameAndDelete(t *testing.T) {
	fb := newFakeBackend(t, ndjson(`{"message":{"content":"ok"}}`))
	env := newTestEnv(t, fb.URL, true)
	id := seedConversation(t, env, "hello")

	rec := env.do(httptest.NewRequest(http.MethodPut, "/api/conversations/"+id, strings.NewReader(`{"title":"Greetings"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	conv, err := env.db.GetConversation(id)
	require.NoError(t, err)
	assert.Equal(t, "Greetings", conv.Title)

	rec = env.do(httptest.NewRequest(http.MethodPut, "/api/conversations/"+id, strings.NewReader(`{"title":"  "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodPut, "/api/conversations/missing", strings.NewReader(`{"title":"x"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/conversations/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/conversations/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/conversations/"+id+"/messages", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversations_HistoryDisabled(t *testing.T) {
	env := newTestEnv(t, "http://backend.invalid", false)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/conversations", nil),
		httptest.NewRequest(http.MethodGet, "/api/conversations/search?q=x", nil),
		httptest.NewRequest(http.MethodGet, "/api/conversations/abc/messages", nil),
		httptest.NewRequest(http.MethodDelete, "/api/conversations/abc", nil),
	} {
		rec := env.do(req)
		assert.Equal(t, http.StatusNotFound, rec.Code, req.URL.Path)
		assert.JSONEq(t, `{"error":"Conversation history is disabled"}`, rec.Body.String())
	}
}
