package chat

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Karanpal97/constructure-ai/internal/assistant"
)

type conversation interface {
	HandleMessage(ctx context.Context, userID, userName, message string) *assistant.Response
}

// HTTPHandler exposes the chat dialogue over HTTP.
type HTTPHandler struct {
	conv conversation
	log  *zap.SugaredLogger
	mux  *http.ServeMux
}

// NewHTTPHandler creates the chat HTTP handler.
func NewHTTPHandler(conv conversation, log *zap.SugaredLogger) *HTTPHandler {
	h := &HTTPHandler{conv: conv, log: log, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /chat/message", h.handleMessage)
	h.mux.HandleFunc("GET /chat/welcome", h.handleWelcome)
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type messageRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Message  string `json:"message"`
}

func (h *HTTPHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	resp := h.conv.HandleMessage(r.Context(), req.UserID, req.UserName, req.Message)
	h.writeJSON(w, resp)
}

func (h *HTTPHandler) handleWelcome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("user") == "" {
		http.Error(w, "user query parameter required", http.StatusBadRequest)
		return
	}

	h.writeJSON(w, assistant.Welcome(r.URL.Query().Get("name")))
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Errorw("response encoding failed", "error", err)
	}
}
