package api

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"sync"

	"github.com/RichardoC/relaychat/internal/backend"
	"github.com/RichardoC/relaychat/internal/config"
	"github.com/RichardoC/relaychat/internal/llm"
	"github.com/RichardoC/relaychat/internal/metrics"
	"github.com/RichardoC/relaychat/internal/models"
	"go.uber.org/zap"
)

// Store is the conversation history the relay writes to. *db.Database
// implements it.
type Store interface {
	CreateConversation(id, title string) (*models.Conversation, error)
	GetConversation(id string) (*models.Conversation, error)
	SaveMessage(msg *models.StoredMessage) error
	GetConversationHistory(conversationID string, limit int) ([]models.StoredMessage, error)
	GetConversations() ([]models.Conversation, error)
	SearchMessages(query string, limit int) ([]models.StoredMessage, error)
	DeleteConversation(id string) error
	UpdateConversationTitle(id string, title string) error
}

// Deps are the collaborators of a Handler. Store, Titles, Tokens, Metrics
// and Assets may be nil; the matching features are then switched off.
type Deps struct {
	Backend      *backend.Client
	Store        Store
	Titles       *llm.Service
	Tokens       *llm.TokenCounter
	Metrics      *metrics.Metrics
	Upload       config.UploadConfig
	HistoryLimit int
	Assets       fs.FS
	Logger       *zap.Logger
}

type Handler struct {
	backend      *backend.Client
	db           Store
	titles       *llm.Service
	tokens       *llm.TokenCounter
	metrics      *metrics.Metrics
	upload       config.UploadConfig
	historyLimit int
	assets       fs.FS
	logger       *zap.Logger

	// closing stops history writes; background title work runs under
	// background and is tracked by wg.
	mu         sync.RWMutex
	closing    bool
	background context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewHandler(deps Deps) *Handler {
	h := &Handler{
		backend:      deps.Backend,
		db:           deps.Store,
		titles:       deps.Titles,
		tokens:       deps.Tokens,
		metrics:      deps.Metrics,
		upload:       deps.Upload,
		historyLimit: deps.HistoryLimit,
		assets:       deps.Assets,
		logger:       deps.Logger,
	}
	h.background, h.cancel = context.WithCancel(context.Background())
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.backend == nil {
		h.backend = backend.New(backend.Options{Logger: h.logger})
	}
	if h.historyLimit <= 0 {
		h.historyLimit = config.DefaultHistoryLimit
	}
	if h.upload.MaxFileSize <= 0 {
		h.upload.MaxFileSize = config.DefaultMaxFileSize
	}
	if h.upload.UserID == "" {
		h.upload.UserID = config.DefaultUploadUserID
	}
	if h.upload.DefaultCollection == "" {
		h.upload.DefaultCollection = config.DefaultCollection
	}
	return h
}

// Routes returns the relay's route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", h.HandleChat)
	mux.HandleFunc("POST /api/upload", h.HandleUpload)

	for _, p := range configProxies {
		mux.HandleFunc(p.method+" "+p.route, h.proxy(p))
	}
	mux.HandleFunc("POST /api/config/rag/toggle", h.toggle("/v1/config/rag/toggle", "Failed to toggle RAG"))
	mux.HandleFunc("POST /api/config/academic_search/toggle", h.toggle("/v1/config/academic_search/toggle", "Failed to toggle academic search"))
	mux.HandleFunc("GET /api/config/system-prompts", h.GetSystemPrompts)

	mux.HandleFunc("GET /api/conversations", h.GetConversations)
	mux.HandleFunc("GET /api/conversations/search", h.SearchMessages)
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.GetMessages)
	mux.HandleFunc("PUT /api/conversations/{id}", h.UpdateConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", h.DeleteConversation)

	mux.HandleFunc("GET /health", h.Health)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
	if h.assets != nil {
		mux.Handle("GET /", http.FileServerFS(h.assets))
	}
	return mux
}

// Close stops history writes, including those of streams still running,
// and waits for background work started by requests.
func (h *Handler) Close() error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
	return nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"backend_configured": h.backend.Configured(),
		"history":            h.db != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
