package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type generatorMock struct {
	GenerateFunc func(ctx context.Context, system, user string, maxTokens int) (string, error)
	calls        int
}

func (m *generatorMock) Generate(ctx context.Context, system, user string, maxTokens int) (string, error) {
	m.calls++
	return m.GenerateFunc(ctx, system, user, maxTokens)
}

func newFastRetry(gen Generator, attempts int) *Retry {
	r := NewRetry(gen, attempts, zap.NewNop().Sugar())
	r.initial = time.Millisecond
	r.maxWait = time.Millisecond
	return r
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	gen := &generatorMock{}
	gen.GenerateFunc = func(_ context.Context, _, _ string, _ int) (string, error) {
		if gen.calls < 3 {
			return "", &GenerationError{Provider: "test", Err: errors.New("boom")}
		}
		return "recovered", nil
	}

	out, err := newFastRetry(gen, 3).Generate(context.Background(), "sys", "user", 100)
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 3, gen.calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	gen := &generatorMock{
		GenerateFunc: func(_ context.Context, _, _ string, _ int) (string, error) {
			return "", &GenerationError{Provider: "test", Err: errors.New("boom")}
		},
	}

	_, err := newFastRetry(gen, 2).Generate(context.Background(), "sys", "user", 100)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 2, gen.calls)
}

func TestRetryDoesNotRetryOnSuccess(t *testing.T) {
	gen := &generatorMock{
		GenerateFunc: func(_ context.Context, _, _ string, _ int) (string, error) {
			return "first try", nil
		},
	}

	out, err := newFastRetry(gen, 3).Generate(context.Background(), "sys", "user", 100)
	require.NoError(t, err)
	assert.Equal(t, "first try", out)
	assert.Equal(t, 1, gen.calls)
}
