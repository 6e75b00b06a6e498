package domain

import "context"

// LLMResponse is the normalized result of a generation call.
type LLMResponse struct {
	Text       string
	Done       bool
	TokensUsed int
}

// LLMClient abstracts the generation service.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (*LLMResponse, error)
	Version() string
}

// VectorEncoder abstracts the embedding service.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Version() string
}

// RerankCandidate is one passage submitted for cross-encoder scoring.
type RerankCandidate struct {
	ID      string
	Content string
	Score   float64
}

// RerankResult carries the cross-encoder score for a candidate.
type RerankResult struct {
	ID    string
	Score float64
}

// Reranker scores candidates against a query with a secondary relevance
// signal. Implementations must be deterministic for a fixed input.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankResult, error)
	ModelName() string
}
