package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/RichardoC/relaychat/internal/backend"
	"github.com/RichardoC/relaychat/internal/db"
	"github.com/RichardoC/relaychat/internal/llm"
	"github.com/RichardoC/relaychat/internal/models"
	"github.com/RichardoC/relaychat/internal/stream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConversationHeader tells the browser which stored conversation a reply
// belongs to.
const ConversationHeader = "X-Conversation-ID"

type ChatRequest struct {
	Messages       []models.ChatMessage `json:"messages"`
	ConversationID string               `json:"conversation_id,omitempty"`
}

// HandleChat relays a conversation to the backend and streams the reply
// back as Server-Sent Events.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.countChat("bad_request")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := models.ValidateMessages(req.Messages); err != nil {
		h.countChat("bad_request")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	body, err := h.backend.Chat(r.Context(), req.Messages)
	if h.metrics != nil {
		h.metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if ue, ok := backend.AsUpstream(err); ok {
			h.countChat("upstream_error")
			status := ue.Status
			if status == 0 {
				status = http.StatusInternalServerError
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(status)
			w.Write([]byte(ue.Body))
			return
		}
		h.countChat("transport_error")
		h.logger.Error("Failed to reach backend", zap.Error(err))
		http.Error(w, "Failed to connect to backend", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	convID, isNew := h.resolveConversation(req)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream; charset=utf-8")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	if convID != "" {
		header.Set(ConversationHeader, convID)
	}
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	flush := func() error {
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	}
	_ = flush()

	h.recordUserMessage(convID, req.Messages)

	var sink stream.Sink = stream.NewWriter(w, flush)
	if h.metrics != nil {
		sink = h.metrics.CountFrames(sink)
		h.metrics.ActiveStreams.Inc()
		defer h.metrics.ActiveStreams.Dec()
	}

	sum := stream.Transcode(r.Context(), body, sink)

	fields := []zap.Field{
		zap.String("conversation_id", convID),
		zap.Int("tokens", sum.Tokens),
		zap.Int("discarded", sum.Discarded),
		zap.Int("inline_errors", len(sum.Errors)),
		zap.Bool("done", sum.Done),
		zap.Duration("duration", time.Since(start)),
	}
	if sum.Err != nil {
		h.countChat("stream_error")
		h.logger.Warn("Chat stream ended early", append(fields, zap.Error(sum.Err))...)
	} else {
		h.countChat("ok")
		h.logger.Info("Chat stream finished", fields...)
	}

	h.recordAssistantTurn(convID, sum.Content)
	if isNew {
		h.nameConversation(convID, req.Messages)
	}
}

func (h *Handler) countChat(outcome string) {
	if h.metrics != nil {
		h.metrics.ChatTotal.WithLabelValues(outcome).Inc()
	}
}

// resolveConversation returns the stored conversation req continues, creating
// one when the client did not name a known one. Failures are logged only.
func (h *Handler) resolveConversation(req ChatRequest) (convID string, isNew bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.db == nil || h.closing {
		return "", false
	}

	convID = req.ConversationID
	if convID != "" {
		if _, err := h.db.GetConversation(convID); err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				h.logger.Error("Failed to look up conversation", zap.Error(err), zap.String("conversation_id", convID))
				return "", false
			}
			convID = ""
		}
	}

	if convID == "" {
		user, _ := models.LastUserMessage(req.Messages)
		convID = uuid.NewString()
		if _, err := h.db.CreateConversation(convID, llm.FallbackTitle(user.Content)); err != nil {
			h.logger.Error("Failed to create conversation", zap.Error(err))
			return "", false
		}
		isNew = true
	}
	return convID, isNew
}

func (h *Handler) recordUserMessage(convID string, messages []models.ChatMessage) {
	if convID == "" {
		return
	}
	if user, ok := models.LastUserMessage(messages); ok {
		h.saveMessage(convID, models.RoleUser, user.Content)
	}
}

func (h *Handler) recordAssistantTurn(convID, content string) {
	if convID == "" || content == "" {
		return
	}
	h.saveMessage(convID, models.RoleAssistant, content)
}

func (h *Handler) saveMessage(convID string, role models.Role, content string) {
	msg := &models.StoredMessage{
		ConvID:  convID,
		Role:    role,
		Content: content,
	}
	if h.tokens != nil {
		msg.Tokens = h.tokens.Count(content)
	}

	saved := h.persist(func(store Store) error {
		return store.SaveMessage(msg)
	}, "Failed to save message", zap.String("conversation_id", convID), zap.String("role", string(role)))

	if saved && h.tokens != nil && h.metrics != nil {
		h.metrics.TokenUsage.WithLabelValues(string(role)).Observe(float64(msg.Tokens))
	}
}

// persist runs fn against the store unless history is off or the handler is
// shutting down. Errors are logged with msg and fields.
func (h *Handler) persist(fn func(Store) error, msg string, fields ...zap.Field) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.db == nil || h.closing {
		return false
	}
	if err := fn(h.db); err != nil {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		return false
	}
	return true
}

// nameConversation replaces the provisional title in the background.
func (h *Handler) nameConversation(convID string, messages []models.ChatMessage) {
	if h.titles == nil || !h.titles.UsesModel() {
		return
	}
	user, ok := models.LastUserMessage(messages)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closing {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		title := h.titles.Title(h.background, user.Content)
		h.persist(func(store Store) error {
			return store.UpdateConversationTitle(convID, title)
		}, "Failed to update conversation title", zap.String("conversation_id", convID))
	}()
}
