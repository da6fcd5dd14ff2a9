// Package generate sends composed prompts to an external language model and
// returns the generated text.
package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/anser-ai/anser/internal/config"
	"github.com/anser-ai/anser/internal/log"
)

// ErrProvider indicates the generation call failed, timed out, or returned
// no usable text.
var ErrProvider = errors.New("generation provider error")

// Gemini generates text through the Gemini API.
//
// Gemini is safe for concurrent use.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  log.Logger
}

// NewGemini creates a Gemini generator from provider configuration.
func NewGemini(ctx context.Context, cfg config.Generation, logger log.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: generation API key is required", config.ErrMissingAPIKey)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %w", ErrProvider, err)
	}

	return &Gemini{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Generate returns the model's completion for prompt. The call is bounded by
// the configured timeout; on expiry it fails like any other provider error.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(callCtx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProvider, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrProvider)
	}

	g.logger.Debug("generation call",
		"model", g.model,
		"duration", time.Since(start),
		"prompt_chars", len(prompt),
		"completion_chars", len(text))

	return text, nil
}
