package testutil

import (
	"context"
	"fmt"
)

// StubEmbedder returns deterministic fixed-dimension vectors without touching
// a provider. The n-th text embedded over the stub's lifetime gets the vector
// [n, n, ..., n], so tests can trace vectors back to input order.
type StubEmbedder struct {
	Dim  int
	Err  error
	seen int
}

func (s *StubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.seen++
	vec := make([]float32, s.Dim)
	for i := range vec {
		vec[i] = float32(s.seen)
	}
	return vec, nil
}

func (s *StubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := s.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *StubEmbedder) Model() string  { return "stub-embedder" }
func (s *StubEmbedder) Dimension() int { return s.Dim }

// StubGenerator echoes the prompt or returns a canned answer.
type StubGenerator struct {
	Answer string
	Err    error
	Calls  int
}

func (s *StubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.Calls++
	if s.Err != nil {
		return "", s.Err
	}
	if s.Answer != "" {
		return s.Answer, nil
	}
	return fmt.Sprintf("echo: %s", prompt), nil
}
