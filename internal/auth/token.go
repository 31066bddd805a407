// Package auth manages per-user OAuth2 tokens and the browser consent flow.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Karanpal97/constructure-ai/internal/mail"
)

const stateTTL = 5 * time.Minute

type stateEntry struct {
	userID string
	expiry time.Time
}

// Store keeps OAuth2 tokens keyed by user id, with thread-safe operations
// and optional JSON persistence.
type Store struct {
	mu          sync.RWMutex
	cfg         *oauth2.Config
	tokens      map[string]*oauth2.Token
	persistPath string
	stateStore  map[string]stateEntry
	log         *zap.SugaredLogger
}

// NewStore creates a token store, loading persisted tokens if path provided.
func NewStore(cfg *oauth2.Config, persistPath string, log *zap.SugaredLogger) (*Store, error) {
	s := &Store{
		cfg:         cfg,
		tokens:      make(map[string]*oauth2.Token),
		persistPath: persistPath,
		stateStore:  make(map[string]stateEntry),
		log:         log,
	}
	if persistPath == "" {
		return s, nil
	}

	f, err := os.Open(persistPath)
	defer func() { _ = f.Close() }()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Infow("token file does not exist yet, will be created on persist", "path", persistPath)

			return s, nil
		}

		return nil, fmt.Errorf("os.Open failed: %w", err)
	}

	if err := json.NewDecoder(f).Decode(&s.tokens); err != nil {
		return nil, fmt.Errorf("json.NewDecoder.Decode failed: %w", err)
	}

	return s, nil
}

// RedirectURL generates the OAuth2 authorization URL for a user, binding a
// secure random state to that user id for the round trip.
func (s *Store) RedirectURL(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id must not be empty")
	}

	state, err := s.generateState(userID)
	if err != nil {
		return "", fmt.Errorf("generateState failed: %w", err)
	}

	return s.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

func (s *Store) generateState(userID string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read failed: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.stateStore[state] = stateEntry{userID: userID, expiry: now.Add(stateTTL)}

	for st, entry := range s.stateStore {
		if entry.expiry.Before(now) {
			delete(s.stateStore, st)
		}
	}

	return state, nil
}

func (s *Store) consumeState(state string) (string, bool) {
	if state == "" {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.stateStore[state]
	if !exists {
		return "", false
	}

	delete(s.stateStore, state)

	if time.Now().After(entry.expiry) {
		return "", false
	}

	return entry.userID, true
}

// AuthorizeCode exchanges an authorization code for a token and stores it
// for the user bound to the state parameter. Returns that user id.
func (s *Store) AuthorizeCode(ctx context.Context, code, state string) (string, error) {
	userID, ok := s.consumeState(state)
	if !ok {
		return "", errors.New("invalid or expired state parameter")
	}

	tok, err := s.cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("cfg.Exchange failed: %w", err)
	}

	s.mu.Lock()
	s.tokens[userID] = tok
	s.mu.Unlock()

	s.log.Infow("stored oauth token", "user_id", userID, "expiry", tok.Expiry)

	return userID, nil
}

// Token returns the stored token for a user, or mail.ErrNoToken.
func (s *Store) Token(userID string) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[userID]
	if !ok {
		return nil, mail.ErrNoToken
	}

	return tok, nil
}

// HasCredentials reports whether a token is stored for the user. It does
// not check validity; an expired token still counts and fails later at
// refresh time.
func (s *Store) HasCredentials(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tokens[userID]
	return ok
}

// Update replaces a user's token, e.g. after a refresh.
func (s *Store) Update(userID string, tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[userID] = tok
}

// Revoke drops a user's stored token. Reports whether one existed.
func (s *Store) Revoke(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.tokens[userID]
	delete(s.tokens, userID)

	return ok
}

// Persist saves all tokens to disk.
func (s *Store) Persist() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.persistPath == "" || len(s.tokens) == 0 {
		return nil
	}

	f, err := os.OpenFile(s.persistPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	defer func() { _ = f.Close() }()
	if err != nil {
		return fmt.Errorf("os.OpenFile failed: %w", err)
	}

	if err := json.NewEncoder(f).Encode(s.tokens); err != nil {
		return fmt.Errorf("json.NewEncoder.Encode failed: %w", err)
	}

	return nil
}
