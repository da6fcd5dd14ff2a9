// Package embedding turns text into fixed-length vectors via an external
// feature-extraction service.
//
// The provider may answer with a single pooled vector, a per-token matrix
// [seq_len, D], or a batched per-token tensor [1, seq_len, D]. The client
// detects the shape and mean-pools token matrices down to one D-length
// vector, so callers always see the same contract regardless of what the
// provider chose to return.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/anser-ai/anser/internal/config"
	"github.com/anser-ai/anser/internal/log"
)

// ErrProvider indicates the embedding provider call failed, timed out, or
// returned a malformed result. Anything wrapped around it is fatal for the
// requesting operation; callers never receive partial vectors.
var ErrProvider = errors.New("embedding provider error")

// maxErrorBody bounds how much of a provider error response is kept for the
// error message.
const maxErrorBody = 512

// Client calls a feature-extraction endpoint and normalizes its output.
//
// Client is safe for concurrent use.
type Client struct {
	endpoint  string
	apiKey    string
	model     string
	dimension int

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     log.Logger
}

// New creates a Client from provider configuration.
func New(cfg config.Embedding, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger,
	}
}

// Dimension returns the configured output vector length.
func (c *Client) Dimension() int {
	return c.dimension
}

// Model returns the model identifier sent to the provider. Persisted next to
// each vector so a later re-embedding migration can tell generations apart.
func (c *Client) Model() string {
	return c.model
}

// Embed returns the vector for a single text.
//
// Empty text maps to the zero vector without touching the provider: there is
// nothing to pool, and the zero vector is the defined representation of "no
// content".
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, c.dimension), nil
	}

	// Line breaks are layout, not meaning; the original corpus is embedded
	// the same way.
	text = strings.ReplaceAll(text, "\n", " ")

	raw, err := c.call(ctx, text)
	if err != nil {
		return nil, err
	}

	vec, err := poolResponse(raw, c.dimension)
	if err != nil {
		return nil, err
	}

	return vec, nil
}

// EmbedBatch returns one vector per input text, order-preserving and the
// same length as texts. A failure on any element fails the whole batch:
// a shorter or reordered result would silently misalign chunk indices.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("batch element %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// call performs the HTTP request and returns the decoded JSON body.
func (c *Client) call(ctx context.Context, text string) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", ErrProvider, err)
		}
	}

	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrProvider, err)
	}

	url := c.endpoint + "/" + c.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrProvider, err)
	}

	c.logger.Debug("embedding call",
		"model", c.model,
		"duration", time.Since(start),
		"response_bytes", len(raw))

	return raw, nil
}

// poolResponse normalizes a provider response of any supported shape into a
// single vector of length dimension.
func poolResponse(raw json.RawMessage, dimension int) ([]float32, error) {
	// Shape (a): already pooled, [D].
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		return validate(flat, dimension)
	}

	// Shape (b): per-token matrix, [seq_len, D].
	var matrix [][]float32
	if err := json.Unmarshal(raw, &matrix); err == nil {
		return validate(meanPool(matrix), dimension)
	}

	// Shape (c): batched per-token tensor, [1, seq_len, D].
	var tensor [][][]float32
	if err := json.Unmarshal(raw, &tensor); err == nil {
		if len(tensor) == 0 {
			return nil, fmt.Errorf("%w: empty tensor response", ErrProvider)
		}
		return validate(meanPool(tensor[0]), dimension)
	}

	return nil, fmt.Errorf("%w: unrecognized response shape", ErrProvider)
}

// meanPool averages token vectors elementwise. The arithmetic mean over the
// token axis is the only pooling strategy; it is applied the same way for
// any token count.
func meanPool(matrix [][]float32) []float32 {
	if len(matrix) == 0 {
		return nil
	}

	dim := len(matrix[0])
	sums := make([]float64, dim)
	for _, tokenVec := range matrix {
		if len(tokenVec) != dim {
			return nil
		}
		for i, v := range tokenVec {
			sums[i] += float64(v)
		}
	}

	n := float64(len(matrix))
	pooled := make([]float32, dim)
	for i, s := range sums {
		pooled[i] = float32(s / n)
	}
	return pooled
}

// validate checks length and finiteness. NaN or Inf must never reach the
// vector store; their appearance is a provider fault, not a data point.
func validate(vec []float32, dimension int) ([]float32, error) {
	if vec == nil {
		return nil, fmt.Errorf("%w: ragged or empty token matrix", ErrProvider)
	}
	if len(vec) != dimension {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrProvider, len(vec), dimension)
	}
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: non-finite value at dimension %d", ErrProvider, i)
		}
	}
	return vec, nil
}
