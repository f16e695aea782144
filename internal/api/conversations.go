package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/RichardoC/relaychat/internal/db"
	"go.uber.org/zap"
)

const searchLimit = 20

type UpdateConversationRequest struct {
	Title string `json:"title"`
}

// historyEnabled writes a 404 and returns false when no store is configured.
func (h *Handler) historyEnabled(w http.ResponseWriter) bool {
	if h.db == nil {
		writeError(w, http.StatusNotFound, "Conversation history is disabled")
		return false
	}
	return true
}

func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}

	conversations, err := h.db.GetConversations()
	if err != nil {
		h.logger.Error("Failed to get conversations",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.logger.Debug("Retrieved conversations",
		zap.Int("count", len(conversations)),
		zap.String("path", r.URL.Path))
	writeJSON(w, http.StatusOK, conversations)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}

	convID := r.PathValue("id")
	if _, err := h.db.GetConversation(convID); err != nil {
		h.conversationError(w, err, "Failed to get conversation")
		return
	}

	messages, err := h.db.GetConversationHistory(convID, h.historyLimit)
	if err != nil {
		h.logger.Error("Failed to get messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	results, err := h.db.SearchMessages(query, searchLimit)
	if err != nil {
		h.logger.Error("Failed to search messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}

	if err := h.db.DeleteConversation(r.PathValue("id")); err != nil {
		h.conversationError(w, err, "Failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}

	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.db.UpdateConversationTitle(r.PathValue("id"), strings.TrimSpace(req.Title)); err != nil {
		h.conversationError(w, err, "Failed to update conversation")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) conversationError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	h.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
