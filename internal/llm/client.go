// Package llm abstracts the text-generation backend behind a small
// capability interface with provider adapters selected at configuration
// time.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Generator produces text from a system instruction and a user instruction.
type Generator interface {
	Generate(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// GenerationError wraps a backend failure.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Providers understood by New.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config selects and parameterizes the generation backend.
type Config struct {
	Provider     string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
}

// New creates the configured provider adapter.
func New(cfg Config, log *zap.SugaredLogger) (Generator, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		log.Infow("using Gemini generation backend", "model", cfg.GeminiModel)
		return NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
	case ProviderOpenAI:
		log.Infow("using OpenAI generation backend", "model", cfg.OpenAIModel)
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

// Retry wraps a Generator with bounded-attempt exponential backoff.
type Retry struct {
	gen      Generator
	attempts uint64
	initial  time.Duration
	maxWait  time.Duration
	log      *zap.SugaredLogger
}

// NewRetry creates a retrying Generator. attempts is the total number of
// tries, including the first.
func NewRetry(gen Generator, attempts int, log *zap.SugaredLogger) *Retry {
	if attempts < 1 {
		attempts = 1
	}
	return &Retry{
		gen:      gen,
		attempts: uint64(attempts),
		initial:  time.Second,
		maxWait:  10 * time.Second,
		log:      log,
	}
}

// Generate calls the wrapped backend, retrying failures with exponential
// backoff until the attempt budget runs out.
func (r *Retry) Generate(ctx context.Context, system, user string, maxTokens int) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.initial
	bo.MaxInterval = r.maxWait

	var out string
	err := backoff.Retry(func() error {
		var err error
		out, err = r.gen.Generate(ctx, system, user, maxTokens)
		if err != nil {
			r.log.Warnw("generation attempt failed", "error", err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, r.attempts-1), ctx))
	if err != nil {
		return "", err
	}

	return out, nil
}
