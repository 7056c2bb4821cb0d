package gemini

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/shelfscribe/engine/internal/config"
	"github.com/shelfscribe/engine/internal/generation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func TestNewGenerator_ValidatesConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("nil logger rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewGenerator(ctx, nil, config.LLMConfig{
			GeminiAPIKey: "key", ModelName: "gemini-2.0-flash",
		})
		require.Error(t, err)
	})

	t.Run("missing api key rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewGenerator(ctx, testLogger(), config.LLMConfig{
			ModelName: "gemini-2.0-flash",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, generation.ErrInvalidConfig))
	})

	t.Run("missing model name rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewGenerator(ctx, testLogger(), config.LLMConfig{
			GeminiAPIKey: "key",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, generation.ErrInvalidConfig))
	})
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		_, err := extractText(nil)
		assert.True(t, errors.Is(err, generation.ErrInvalidResponse))
	})

	t.Run("no candidates", func(t *testing.T) {
		t.Parallel()
		_, err := extractText(&genai.GenerateContentResponse{})
		assert.True(t, errors.Is(err, generation.ErrInvalidResponse))
	})

	t.Run("safety finish reason blocks", func(t *testing.T) {
		t.Parallel()
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{FinishReason: genai.FinishReasonSafety},
			},
		}
		_, err := extractText(resp)
		assert.True(t, errors.Is(err, generation.ErrContentBlocked))
	})

	t.Run("empty text rejected", func(t *testing.T) {
		t.Parallel()
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{
					FinishReason: genai.FinishReasonStop,
					Content: &genai.Content{
						Parts: []*genai.Part{{Text: "   "}},
					},
				},
			},
		}
		_, err := extractText(resp)
		assert.True(t, errors.Is(err, generation.ErrInvalidResponse))
	})

	t.Run("text extracted", func(t *testing.T) {
		t.Parallel()
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{
					FinishReason: genai.FinishReasonStop,
					Content: &genai.Content{
						Parts: []*genai.Part{{Text: "A sturdy oak bookshelf with five shelves."}},
					},
				},
			},
		}
		text, err := extractText(resp)
		require.NoError(t, err)
		assert.Equal(t, "A sturdy oak bookshelf with five shelves.", text)
	})
}

func TestClassifyAPIError(t *testing.T) {
	t.Parallel()
	g := &Generator{logger: testLogger()}
	ctx := context.Background()

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{
			name:   "rate limit is transient",
			err:    &genai.APIError{Code: 429, Message: "resource exhausted"},
			target: generation.ErrTransientFailure,
		},
		{
			name:   "server error is transient",
			err:    &genai.APIError{Code: 503, Message: "unavailable"},
			target: generation.ErrTransientFailure,
		},
		{
			name:   "blocked prompt is permanent",
			err:    &genai.APIError{Code: 400, Message: "prompt was blocked"},
			target: generation.ErrContentBlocked,
		},
		{
			name:   "other client error is permanent",
			err:    &genai.APIError{Code: 400, Message: "invalid argument"},
			target: generation.ErrGenerationFailed,
		},
		{
			name:   "unknown error defaults to transient",
			err:    errors.New("connection reset by peer"),
			target: generation.ErrTransientFailure,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			classified := g.classifyAPIError(ctx, tc.err)
			assert.True(t, errors.Is(classified, tc.target), "got %v", classified)
		})
	}

	t.Run("context cancellation passes through", func(t *testing.T) {
		t.Parallel()
		classified := g.classifyAPIError(ctx, context.Canceled)
		assert.True(t, errors.Is(classified, context.Canceled))
	})
}
