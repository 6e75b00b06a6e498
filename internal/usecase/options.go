package usecase

import (
	"fmt"
	"sort"
	"time"
)

// RAGOptions enumerates every per-call feature toggle the pipeline
// honors. The zero value is not usable; start from DefaultRAGOptions or
// FastRAGOptions and override fields. Flags are resolved once at
// pipeline entry and never passed as an open-ended map through stages.
type RAGOptions struct {
	// Limit caps the number of documents returned as sources.
	Limit int
	// SimilarityThreshold drops vector hits below this cosine similarity.
	SimilarityThreshold float64

	UseRouting               bool
	UseHybridSearch          bool
	UseHyDE                  bool
	UseQueryDecomposition    bool
	UseAdvancedReranking     bool
	UseConversationMemory    bool
	UseSelfRAG               bool
	UseContextualCompression bool
	UseAttributedAnswers     bool
	UseConfidenceScoring     bool
	UseSuggestedQuestions    bool
	UseRelatedArticles       bool
	UseCaching               bool
	UseTracing               bool

	// ConversationID selects the session consulted and updated when
	// UseConversationMemory is set.
	ConversationID string
}

// DefaultRAGOptions mirrors the production defaults: everything on
// except the two expensive stages (HyDE, Self-RAG).
func DefaultRAGOptions() RAGOptions {
	return RAGOptions{
		Limit:                    10,
		SimilarityThreshold:      0.5,
		UseRouting:               true,
		UseHybridSearch:          true,
		UseHyDE:                  false,
		UseQueryDecomposition:    true,
		UseAdvancedReranking:     true,
		UseConversationMemory:    true,
		UseSelfRAG:               false,
		UseContextualCompression: true,
		UseAttributedAnswers:     true,
		UseConfidenceScoring:     true,
		UseSuggestedQuestions:    true,
		UseRelatedArticles:       true,
		UseCaching:               true,
		UseTracing:               true,
	}
}

// FastRAGOptions is the speed-biased profile used by AskFast and batch
// callers: retrieval plus plain synthesis, caching kept on.
func FastRAGOptions() RAGOptions {
	return RAGOptions{
		Limit:               10,
		SimilarityThreshold: 0.5,
		UseHybridSearch:     true,
		UseCaching:          true,
	}
}

func (o *RAGOptions) normalize() {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = 0.5
	}
	if o.ConversationID == "" {
		o.UseConversationMemory = false
	}
}

// activeFlags returns the sorted names of every enabled boolean flag.
// The list feeds cache key derivation, so two requests with different
// flag sets can never collide.
func (o RAGOptions) activeFlags() []string {
	set := map[string]bool{
		"routing":    o.UseRouting,
		"hybrid":     o.UseHybridSearch,
		"hyde":       o.UseHyDE,
		"decompose":  o.UseQueryDecomposition,
		"rerank":     o.UseAdvancedReranking,
		"memory":     o.UseConversationMemory,
		"selfrag":    o.UseSelfRAG,
		"compress":   o.UseContextualCompression,
		"attributed": o.UseAttributedAnswers,
		"confidence": o.UseConfidenceScoring,
		"suggest":    o.UseSuggestedQuestions,
		"related":    o.UseRelatedArticles,
		"cache":      o.UseCaching,
		"trace":      o.UseTracing,
	}
	flags := make([]string, 0, len(set))
	for name, on := range set {
		if on {
			flags = append(flags, name)
		}
	}
	sort.Strings(flags)
	return flags
}

// RetrievalTuning holds the tunable fusion and rerank parameters.
// Defaults follow the standard RRF constant and a slightly
// lexical-light weighting.
type RetrievalTuning struct {
	// SearchLimit is the per-index candidate pool fetched before fusion.
	SearchLimit int
	// RRFK is the reciprocal-rank fusion constant.
	RRFK float64
	// Alpha weights the lexical contribution in [0,1]; vector gets 1-Alpha.
	Alpha float64
	// MaxRerankCandidates caps the cross-encoder batch.
	MaxRerankCandidates int
	// RerankTimeout bounds a single rerank call.
	RerankTimeout time.Duration
}

// DefaultRetrievalTuning returns the tuning used in production.
func DefaultRetrievalTuning() RetrievalTuning {
	return RetrievalTuning{
		SearchLimit:         50,
		RRFK:                60.0,
		Alpha:               0.3,
		MaxRerankCandidates: 30,
		RerankTimeout:       30 * time.Second,
	}
}

// Validate checks tuning ranges.
func (t RetrievalTuning) Validate() error {
	if t.SearchLimit <= 0 {
		return fmt.Errorf("searchLimit must be positive, got %d", t.SearchLimit)
	}
	if t.RRFK <= 0 {
		return fmt.Errorf("rrfK must be positive, got %f", t.RRFK)
	}
	if t.Alpha < 0 || t.Alpha > 1 {
		return fmt.Errorf("alpha must be in [0,1], got %f", t.Alpha)
	}
	if t.MaxRerankCandidates <= 0 {
		return fmt.Errorf("maxRerankCandidates must be positive, got %d", t.MaxRerankCandidates)
	}
	return nil
}

// PipelineConfig holds construction-time settings for the pipeline.
type PipelineConfig struct {
	Tuning RetrievalTuning

	// MaxExtraRounds bounds the Self-RAG loop; clamped to [0,2].
	MaxExtraRounds int
	// CompressorMaxChars is the per-passage budget after compression.
	CompressorMaxChars int
	// SynthesisMaxTokens bounds answer generation.
	SynthesisMaxTokens int
	// RequestTimeout wraps the whole pipeline run.
	RequestTimeout time.Duration
	// MemoryTurns bounds each conversation session.
	MemoryTurns int
	// CacheSize and CacheTTL size the response cache tier.
	CacheSize int
	CacheTTL  time.Duration
	// TraceBufferSize bounds the trace ring buffer.
	TraceBufferSize int
}

// DefaultPipelineConfig returns production defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Tuning:             DefaultRetrievalTuning(),
		MaxExtraRounds:     1,
		CompressorMaxChars: 600,
		SynthesisMaxTokens: 768,
		RequestTimeout:     60 * time.Second,
		MemoryTurns:        10,
		CacheSize:          512,
		CacheTTL:           15 * time.Minute,
		TraceBufferSize:    256,
	}
}

// Validate checks the configuration and clamps the Self-RAG bound.
func (c *PipelineConfig) Validate() error {
	if err := c.Tuning.Validate(); err != nil {
		return fmt.Errorf("tuning invalid: %w", err)
	}
	if c.MaxExtraRounds < 0 {
		c.MaxExtraRounds = 0
	}
	if c.MaxExtraRounds > 2 {
		c.MaxExtraRounds = 2
	}
	if c.CompressorMaxChars <= 0 {
		return fmt.Errorf("compressorMaxChars must be positive, got %d", c.CompressorMaxChars)
	}
	if c.SynthesisMaxTokens <= 0 {
		return fmt.Errorf("synthesisMaxTokens must be positive, got %d", c.SynthesisMaxTokens)
	}
	if c.MemoryTurns <= 0 {
		return fmt.Errorf("memoryTurns must be positive, got %d", c.MemoryTurns)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cacheSize must be positive, got %d", c.CacheSize)
	}
	if c.TraceBufferSize <= 0 {
		return fmt.Errorf("traceBufferSize must be positive, got %d", c.TraceBufferSize)
	}
	return nil
}
