package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/shelfscribe/engine/internal/config"
	"github.com/shelfscribe/engine/internal/generation"
)

// Generator implements the generation.Generator interface using Google's
// Gemini API. It performs exactly one API call per Generate; retry policy
// belongs to the caller, so failures are classified with the generation
// package's sentinel errors instead of being retried here.
type Generator struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// NewGenerator creates a Generator from LLM configuration.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &Generator{
		logger: logger.With("component", "gemini_generator"),
		client: client,
		model:  cfg.ModelName,
	}, nil
}

var _ generation.Generator = (*Generator)(nil)

// Generate produces content for the given request with a single API call.
func (g *Generator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt cannot be empty", generation.ErrGenerationFailed)
	}

	g.logger.DebugContext(ctx, "calling gemini",
		"sku", req.SKU,
		"field", req.Field,
		"model", g.model,
		"prompt_length", len(req.Prompt))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), nil)
	if err != nil {
		return nil, g.classifyAPIError(ctx, err)
	}

	text, err := extractText(resp)
	if err != nil {
		g.logger.WarnContext(ctx, "gemini response rejected",
			"sku", req.SKU,
			"field", req.Field,
			"error", err)
		return nil, err
	}

	return &generation.Result{
		Text:  text,
		Model: g.model,
	}, nil
}

// extractText validates the response shape and pulls out the generated text.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: response contains no candidates", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: candidate finished with safety filter", generation.ErrContentBlocked)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: response contains no text", generation.ErrInvalidResponse)
	}

	return text, nil
}

// classifyAPIError maps a Gemini API failure onto the generation error
// taxonomy so the retry layer can tell transient faults from permanent ones.
func (g *Generator) classifyAPIError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
		case apiErr.Code == 400 && strings.Contains(strings.ToLower(apiErr.Message), "blocked"):
			return fmt.Errorf("%w: %v", generation.ErrContentBlocked, err)
		default:
			return fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
		}
	}

	g.logger.WarnContext(ctx, "unclassified gemini error treated as transient", "error", err)
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}
