// Package gservice implements the mailbox client on top of the Gmail API.
package gservice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Karanpal97/constructure-ai/internal/mail"
)

const gmailUserID = "me"

// Gmail API quota units per call type, see
// https://developers.google.com/gmail/api/reference/quota
const (
	quotaUnitsPerList  = 5
	quotaUnitsPerGet   = 5
	quotaUnitsPerSend  = 100
	quotaUnitsPerTrash = 5

	quotaUnitsPerSecond = 250
	rateLimitPerSecond  = quotaUnitsPerSecond * 0.8
	rateLimitBurst      = quotaUnitsPerSecond
)

const maxAttempts = 3

type tokenStore interface {
	Token(userID string) (*oauth2.Token, error)
	Update(userID string, tok *oauth2.Token)
}

type htmlConverter interface {
	HTMLToText(raw []byte) (string, error)
}

// Service provides per-user mailbox operations backed by the Gmail API.
type Service struct {
	cfg     *oauth2.Config
	tokens  tokenStore
	conv    htmlConverter
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// New creates a mailbox service.
func New(cfg *oauth2.Config, tokens tokenStore, conv htmlConverter, log *zap.SugaredLogger) *Service {
	return &Service{
		cfg:     cfg,
		tokens:  tokens,
		conv:    conv,
		limiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
		log:     log,
	}
}

// Fetch lists up to maxResults inbox messages matching query and loads each
// in full. The returned slice preserves the provider's ordering.
func (s *Service) Fetch(ctx context.Context, userID string, maxResults int64, query string) ([]mail.Message, error) {
	svc, err := s.newSvc(ctx, userID)
	if err != nil {
		return nil, err
	}

	if query == "" {
		query = "in:inbox"
	}

	var listed *gmail.ListMessagesResponse
	err = s.withRetry(ctx, "messages.list", quotaUnitsPerList, func() error {
		listed, err = svc.Users.Messages.List(gmailUserID).
			Q(query).
			MaxResults(maxResults).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	messages := make([]mail.Message, 0, len(listed.Messages))
	for _, m := range listed.Messages {
		msg, err := s.getFull(ctx, svc, m.Id)
		if err != nil {
			return nil, fmt.Errorf("get message %s failed: %w", m.Id, err)
		}
		messages = append(messages, s.parseMessage(msg))
	}

	s.log.Infow("fetched messages", "user_id", userID, "count", len(messages), "query", query)

	return messages, nil
}

// Get loads a single message by id. Returns mail.ErrNotFound when the
// provider does not know the id.
func (s *Service) Get(ctx context.Context, userID, id string) (mail.Message, error) {
	svc, err := s.newSvc(ctx, userID)
	if err != nil {
		return mail.Message{}, err
	}

	msg, err := s.getFull(ctx, svc, id)
	if err != nil {
		return mail.Message{}, err
	}

	return s.parseMessage(msg), nil
}

// Send delivers a plain-text message, threading it when threadID is set.
func (s *Service) Send(ctx context.Context, userID, to, subject, body, threadID string) (mail.SendResult, error) {
	svc, err := s.newSvc(ctx, userID)
	if err != nil {
		return mail.SendResult{}, err
	}

	var profile *gmail.Profile
	err = s.withRetry(ctx, "users.getProfile", quotaUnitsPerGet, func() error {
		profile, err = svc.Users.GetProfile(gmailUserID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return mail.SendResult{}, err
	}

	raw := buildRawMessage(profile.EmailAddress, to, subject, body)

	payload := &gmail.Message{Raw: raw}
	if threadID != "" {
		payload.ThreadId = threadID
	}

	var sent *gmail.Message
	err = s.withRetry(ctx, "messages.send", quotaUnitsPerSend, func() error {
		sent, err = svc.Users.Messages.Send(gmailUserID, payload).Context(ctx).Do()
		return err
	})
	if err != nil {
		return mail.SendResult{}, err
	}

	s.log.Infow("sent message", "user_id", userID, "message_id", sent.Id, "to", to)

	return mail.SendResult{
		Success:   true,
		MessageID: sent.Id,
		ThreadID:  sent.ThreadId,
	}, nil
}

// Delete moves a message to trash. Trashing is idempotent on the provider
// side, so retrying after an ambiguous failure is safe.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	svc, err := s.newSvc(ctx, userID)
	if err != nil {
		return err
	}

	err = s.withRetry(ctx, "messages.trash", quotaUnitsPerTrash, func() error {
		_, err := svc.Users.Messages.Trash(gmailUserID, id).Context(ctx).Do()
		return err
	})
	if err != nil {
		return err
	}

	s.log.Infow("trashed message", "user_id", userID, "message_id", id)

	return nil
}

func (s *Service) getFull(ctx context.Context, svc *gmail.Service, id string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := s.withRetry(ctx, "messages.get", quotaUnitsPerGet, func() error {
		var err error
		msg, err = svc.Users.Messages.Get(gmailUserID, id).Format("full").Context(ctx).Do()
		return err
	})
	return msg, err
}

func (s *Service) withRetry(ctx context.Context, op string, quotaUnits int, call func() error) error {
	if err := s.limiter.WaitN(ctx, quotaUnits); err != nil {
		return fmt.Errorf("limiter.WaitN failed: %w", err)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), maxAttempts-1), ctx)

	return backoff.Retry(func() error {
		err := call()
		if err == nil {
			return nil
		}

		mapped := mapError(op, err)
		if mail.IsTransient(mapped) {
			s.log.Warnw("transient gmail error, will retry", "op", op, "error", err)
			return mapped
		}

		return backoff.Permanent(mapped)
	}, bo)
}

func newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 10 * time.Second
	return bo
}

// mapError translates provider failures into the domain error taxonomy.
func mapError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return fmt.Errorf("gmail %s: %w", op, mail.ErrUnauthorized)
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("gmail %s: %w", op, mail.ErrNotFound)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return &mail.ProviderError{Op: op, Status: gerr.Code, Err: err}
		default:
			return fmt.Errorf("gmail %s failed: %w", op, err)
		}
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		// Refresh token rejected: the stored grant is gone.
		return fmt.Errorf("token refresh: %w", mail.ErrUnauthorized)
	}

	// Network-level failures are worth one more try.
	return &mail.ProviderError{Op: op, Err: err}
}

func (s *Service) newSvc(ctx context.Context, userID string) (*gmail.Service, error) {
	t, err := s.tokens.Token(userID)
	if err != nil {
		return nil, fmt.Errorf("tokens.Token failed: %w", err)
	}

	src := &persistingSource{
		userID: userID,
		src:    s.cfg.TokenSource(ctx, t),
		store:  s.tokens,
		last:   t,
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, src)))
	if err != nil {
		return nil, fmt.Errorf("gmail.NewService failed: %w", err)
	}

	return svc, nil
}

// persistingSource writes refreshed tokens back to the store so a refresh
// survives process restarts.
type persistingSource struct {
	userID string
	src    oauth2.TokenSource
	store  tokenStore
	last   *oauth2.Token
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	t, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	if p.last == nil || t.AccessToken != p.last.AccessToken {
		p.store.Update(p.userID, t)
		p.last = t
	}

	return t, nil
}

func buildRawMessage(from, to, subject, body string) string {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s",
		from, to, subject, body)

	return base64.URLEncoding.EncodeToString([]byte(msg))
}
