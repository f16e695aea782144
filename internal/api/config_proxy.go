package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/RichardoC/relaychat/internal/backend"
	"github.com/RichardoC/relaychat/internal/prompts"
	"go.uber.org/zap"
)

// configProxy forwards one configuration route to the backend.
type configProxy struct {
	method   string
	route    string
	upstream string
	failure  string
}

var configProxies = []configProxy{
	{http.MethodGet, "/api/config", "/v1/config", "Failed to fetch config"},
	{http.MethodGet, "/api/config/rag", "/v1/config/rag", "Failed to fetch RAG config"},
	{http.MethodPatch, "/api/config/rag", "/v1/config/rag", "Failed to update RAG config"},
	{http.MethodPatch, "/api/config/rag/query_extraction", "/v1/config/rag/query_extraction", "Failed to update query extraction config"},
	{http.MethodGet, "/api/config/academic_search", "/v1/config/academic_search", "Failed to fetch academic search config"},
	{http.MethodPatch, "/api/config/academic_search", "/v1/config/academic_search", "Failed to update academic search config"},
	{http.MethodGet, "/api/config/document_processing", "/v1/config/document_processing", "Failed to fetch document processing config"},
	{http.MethodPatch, "/api/config/document_processing", "/v1/config/document_processing/chunking", "Failed to update document processing config"},
	{http.MethodGet, "/api/config/prompts", "/v1/config/prompts", "Failed to fetch prompts"},
	{http.MethodPatch, "/api/config/prompts", "/v1/config/prompts", "Failed to update prompts"},
}

func (h *Handler) proxy(p configProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		if p.method != http.MethodGet {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid request body")
				return
			}
		}

		if !h.backend.Configured() {
			writeError(w, http.StatusInternalServerError, "Backend configuration missing")
			return
		}

		var (
			data json.RawMessage
			err  error
		)
		if p.method == http.MethodGet {
			data, err = h.backend.GetJSON(r.Context(), p.upstream)
		} else {
			data, err = h.backend.SendJSON(r.Context(), p.method, p.upstream, body)
		}
		h.relayConfig(w, data, err, p.failure)
	}
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// toggle switches a backend feature on or off via ?enabled=.
func (h *Handler) toggle(upstream, failure string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req toggleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if !h.backend.Configured() {
			writeError(w, http.StatusInternalServerError, "Backend configuration missing")
			return
		}

		path := upstream + "?enabled=" + strconv.FormatBool(*req.Enabled)
		data, err := h.backend.SendJSON(r.Context(), http.MethodPost, path, nil)
		h.relayConfig(w, data, err, failure)
	}
}

func (h *Handler) relayConfig(w http.ResponseWriter, data json.RawMessage, err error, failure string) {
	if err != nil {
		if ue, ok := backend.AsUpstream(err); ok {
			writeError(w, ue.Status, failure)
			return
		}
		h.logger.Error("Config proxy failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to connect to backend")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// GetSystemPrompts lists the built-in system prompt presets.
func (h *Handler) GetSystemPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, prompts.All())
}
