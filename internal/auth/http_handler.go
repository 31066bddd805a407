package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Karanpal97/constructure-ai/internal/mail"
)

type tokenStore interface {
	AuthorizeCode(ctx context.Context, code, state string) (string, error)
	Token(userID string) (*oauth2.Token, error)
	RedirectURL(userID string) (string, error)
	Revoke(userID string) bool
}

// HTTPHandler drives the OAuth2 consent flow over HTTP.
type HTTPHandler struct {
	store tokenStore
	log   *zap.SugaredLogger
}

// NewHTTPHandler creates an HTTP handler for the OAuth2 flow.
func NewHTTPHandler(store tokenStore, log *zap.SugaredLogger) *HTTPHandler {
	return &HTTPHandler{store: store, log: log}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if userID := r.URL.Query().Get("user"); userID != "" && r.URL.Query().Get("revoke") != "" {
		if !h.store.Revoke(userID) {
			http.Error(w, "Token not found", http.StatusNotFound)
			return
		}
		h.log.Infow("revoked oauth token", "user_id", userID)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Revoked token for user %s", userID)
		return
	}

	if userID := r.URL.Query().Get("user"); userID != "" && r.URL.Query().Get("redirect") != "" {
		url, err := h.store.RedirectURL(userID)
		if err != nil {
			h.log.Errorw("store.RedirectURL failed", "error", err)
			http.Error(w, "Unable to start authorization", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, url, http.StatusMovedPermanently)
		return
	}

	if code := r.URL.Query().Get("code"); code != "" {
		state := r.URL.Query().Get("state")
		userID, err := h.store.AuthorizeCode(r.Context(), code, state)
		if err != nil {
			h.log.Errorw("store.AuthorizeCode failed", "error", err)
			http.Error(w, "Unable to authorize provided code", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Authorized user %s, you can close this window", userID)
		return
	}

	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user query parameter required", http.StatusBadRequest)
		return
	}

	t, err := h.store.Token(userID)
	if errors.Is(err, mail.ErrNoToken) {
		http.Error(w, "Token not found", http.StatusUnauthorized)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Token: %s, expires: %s", maskLeft(t.AccessToken), t.Expiry.Format(time.RFC3339))
}

func maskLeft(s string) string {
	rs := []rune(s)
	for i := 0; i < len(rs)-4; i++ {
		rs[i] = 'X'
	}
	return string(rs)
}
