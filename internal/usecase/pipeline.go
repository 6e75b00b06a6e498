package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"news-rag/internal/domain"
)

const outOfScopeAnswer = "I answer questions about the news articles in this archive. Ask me about a story, a topic, or a comparison between them."

// Pipeline wires every retrieval and generation stage into the full
// query flow. Construction is explicit: every collaborator arrives
// through the constructor and the pipeline owns no I/O of its own.
//
// The flow is: cache check, routing, query expansion, hybrid retrieval,
// optional self-critique rounds, reranking, compression, synthesis,
// then decoration (confidence, suggestions, related articles). Optional
// stages degrade individually; only retrieval and synthesis failures
// fail the request.
type Pipeline struct {
	store       domain.DocumentStore
	router      *QueryRouter
	expander    *QueryExpander
	retriever   *HybridRetriever
	reranker    *RerankStage
	critic      *SelfRAGCritic
	compressor  *ContextCompressor
	synthesizer *AnswerSynthesizer
	suggestions *SuggestionBuilder
	memory      *ConversationMemory
	cache       *CacheManager
	tracer      *Tracer
	cfg         PipelineConfig
	logger      *slog.Logger
}

func NewPipeline(
	store domain.DocumentStore,
	encoder domain.VectorEncoder,
	llm domain.LLMClient,
	reranker domain.Reranker,
	cfg PipelineConfig,
	logger *slog.Logger,
) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	cache := NewCacheManager(cfg.CacheSize, cfg.CacheTTL)
	return &Pipeline{
		store:       store,
		router:      NewQueryRouter(),
		expander:    NewQueryExpander(llm, logger),
		retriever:   NewHybridRetriever(store, encoder, cache, cfg.Tuning, logger),
		reranker:    NewRerankStage(reranker, cfg.Tuning, logger),
		critic:      NewSelfRAGCritic(llm, logger),
		compressor:  NewContextCompressor(llm, cfg.CompressorMaxChars, logger),
		synthesizer: NewAnswerSynthesizer(llm, logger),
		suggestions: NewSuggestionBuilder(llm, logger),
		memory:      NewConversationMemory(cfg.MemoryTurns),
		cache:       cache,
		tracer:      NewTracer(cfg.TraceBufferSize),
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Cache exposes the cache manager for stats and admin endpoints.
func (p *Pipeline) Cache() *CacheManager { return p.cache }

// Tracer exposes the trace ring for the traces endpoint.
func (p *Pipeline) Tracer() *Tracer { return p.tracer }

// Memory exposes the conversation store for session admin.
func (p *Pipeline) Memory() *ConversationMemory { return p.memory }

// AskFast runs the speed-biased profile: retrieval and synthesis only.
func (p *Pipeline) AskFast(ctx context.Context, query string) (*RAGResponse, error) {
	return p.Ask(ctx, query, FastRAGOptions())
}

// Ask runs the full pipeline for one query.
func (p *Pipeline) Ask(ctx context.Context, query string, opts RAGOptions) (*RAGResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	opts.normalize()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	started := time.Now()

	var cacheKey string
	if opts.UseCaching {
		cacheKey = ResponseKey(query, opts.ConversationID, opts)
		if resp, ok := p.cache.GetResponse(cacheKey); ok {
			resp.CacheHit = true
			resp.ProcessingTime = time.Since(started)
			// A cached answer is still a completed turn; follow-ups must
			// see it in the session history.
			if opts.UseConversationMemory {
				p.memory.Append(opts.ConversationID, Turn{
					Query:     query,
					Answer:    resp.Answer,
					SourceIDs: sourceIDs(resp.Sources),
					AskedAt:   time.Now(),
				})
			}
			p.logger.Info("rag_cache_hit", slog.String("cache_key", cacheKey[:12]))
			return resp, nil
		}
	}

	var trace *QueryTrace
	if opts.UseTracing {
		trace = p.tracer.Start(query)
	}

	resp, err := p.run(ctx, query, opts, trace)
	if err != nil {
		trace.Fail(err.Error())
		p.tracer.Finish(trace)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", domain.ErrTimeout, time.Since(started).Round(time.Millisecond))
		}
		return nil, err
	}

	resp.ProcessingTime = time.Since(started)
	if trace != nil {
		resp.TraceID = trace.ID
	}
	confidence := 0.0
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}
	trace.Complete(resp.Metadata.DocumentsUsed, confidence)
	p.tracer.Finish(trace)

	if opts.UseCaching && resp.Metadata.Strategy != string(StrategyOutOfScope) {
		p.cache.PutResponse(cacheKey, resp)
	}

	p.logger.Info("rag_query_completed",
		slog.String("strategy", resp.Metadata.Strategy),
		slog.Int("documents_used", resp.Metadata.DocumentsUsed),
		slog.Int("degradation_count", len(resp.Degradations)),
		slog.Bool("insufficient", resp.Insufficient),
		slog.Int64("duration_ms", resp.ProcessingTime.Milliseconds()))

	return resp, nil
}

func (p *Pipeline) run(ctx context.Context, query string, opts RAGOptions, trace *QueryTrace) (*RAGResponse, error) {
	resp := &RAGResponse{Metadata: ResponseMetadata{ConversationID: opts.ConversationID}}

	var history []Turn
	if opts.UseConversationMemory {
		history = p.memory.History(opts.ConversationID)
	}

	retrievalQuery := query
	strategy := StrategyFactual
	if opts.UseRouting {
		stageStart := time.Now()
		decision := p.router.Route(query, history)
		trace.Span("routing", stageStart)

		strategy = decision.Strategy
		resp.Metadata.IsFollowUp = decision.IsFollowUp
		if decision.SuggestedFlags["decompose"] {
			opts.UseQueryDecomposition = true
		}
		if decision.SuggestedFlags["compress"] {
			opts.UseContextualCompression = true
		}
		if decision.IsFollowUp {
			retrievalQuery = ContextualizeFollowUp(query, history)
		}
		if decision.Strategy == StrategyOutOfScope {
			resp.Answer = outOfScopeAnswer
			resp.Sources = []Source{}
			resp.Metadata.Strategy = string(StrategyOutOfScope)
			return resp, nil
		}
	}
	resp.Metadata.Strategy = string(strategy)

	// Expansion.
	stageStart := time.Now()
	expanded := p.expander.Expand(ctx, retrievalQuery, opts.UseHyDE, opts.UseQueryDecomposition)
	trace.Span("expansion", stageStart)
	resp.Degradations = append(resp.Degradations, expanded.Degradations...)
	for _, d := range expanded.Degradations {
		trace.Degrade("expansion", string(d.Stage)+": "+d.Reason)
	}

	// Retrieval, with bounded self-critique on top.
	stageStart = time.Now()
	retrieval, err := p.retrieve(ctx, expanded, opts)
	trace.Span("retrieval", stageStart)
	if err != nil {
		return nil, err
	}
	resp.Degradations = append(resp.Degradations, retrieval.Degradations...)

	rounds := 1
	if opts.UseSelfRAG && p.cfg.MaxExtraRounds > 0 {
		stageStart = time.Now()
		var criticDegradations []Degradation
		retrieval, rounds, criticDegradations = p.critic.Refine(ctx, retrievalQuery, retrieval, p.cfg.MaxExtraRounds,
			func(ctx context.Context, q string) (*RetrievalResult, error) {
				return p.retrieve(ctx, ExpandedQuery{Original: q}, opts)
			})
		trace.Span("self_rag", stageStart)
		resp.Degradations = append(resp.Degradations, criticDegradations...)
	}
	resp.Metadata.SelfRAGRounds = rounds
	resp.Metadata.DocumentsSearched = retrieval.Searched
	resp.Metadata.SearchMethod = searchMethod(opts)

	if len(retrieval.Candidates) == 0 {
		if empty, err := p.storeIsEmpty(ctx); err == nil && empty {
			return nil, domain.ErrStoreEmpty
		}
	}

	candidates := retrieval.Candidates

	// Reranking.
	if opts.UseAdvancedReranking && len(candidates) > 1 {
		stageStart = time.Now()
		var deg *Degradation
		candidates, deg = p.reranker.Rerank(ctx, retrievalQuery, candidates)
		trace.Span("reranking", stageStart)
		if deg != nil {
			resp.Degradations = append(resp.Degradations, *deg)
			trace.Degrade("reranking", deg.Reason)
		} else {
			resp.Metadata.Reranked = true
		}
	} else {
		trace.Skip("reranking", "disabled or too few candidates")
	}

	// Compression.
	if opts.UseContextualCompression && len(candidates) > 0 {
		stageStart = time.Now()
		var deg *Degradation
		candidates, deg = p.compressor.Compress(ctx, retrievalQuery, candidates)
		trace.Span("compression", stageStart)
		if deg != nil {
			resp.Degradations = append(resp.Degradations, *deg)
			trace.Degrade("compression", deg.Reason)
		}
		resp.Metadata.Compressed = true
	} else {
		trace.Skip("compression", "disabled")
	}

	// Synthesis.
	stageStart = time.Now()
	synthesis, err := p.synthesizer.Synthesize(ctx, SynthesisInput{
		Query:      query,
		Strategy:   strategy,
		History:    history,
		Candidates: candidates,
		Attributed: opts.UseAttributedAnswers,
		MaxTokens:  p.cfg.SynthesisMaxTokens,
	})
	trace.Span("synthesis", stageStart)
	if err != nil {
		return nil, err
	}

	resp.Answer = synthesis.Answer
	resp.Insufficient = synthesis.Insufficient
	resp.Citations = synthesis.Citations
	resp.Sources = buildSources(candidates, retrieval.Similarity)
	resp.Metadata.DocumentsUsed = len(candidates)

	if opts.UseConfidenceScoring {
		sims := make([]float64, len(candidates))
		for i, c := range candidates {
			sims[i] = retrieval.Similarity[c.Document.ID]
		}
		confidence := ScoreConfidence(ConfidenceInput{
			Similarities:  sims,
			DocumentsUsed: len(candidates),
			Limit:         opts.Limit,
			Rounds:        rounds,
			Insufficient:  synthesis.Insufficient,
		})
		resp.Confidence = &confidence
	}

	if opts.UseSuggestedQuestions && !synthesis.Insufficient {
		stageStart = time.Now()
		questions, deg := p.suggestions.SuggestQuestions(ctx, query, synthesis.Answer, candidates)
		trace.Span("suggestions", stageStart)
		if deg != nil {
			resp.Degradations = append(resp.Degradations, *deg)
		}
		resp.SuggestedQuestions = questions
	}

	if opts.UseRelatedArticles {
		resp.RelatedArticles = RelatedArticles(query, retrieval.Pool, candidates)
	}

	if opts.UseConversationMemory {
		p.memory.Append(opts.ConversationID, Turn{
			Query:     query,
			Answer:    synthesis.Answer,
			SourceIDs: sourceIDs(resp.Sources),
			AskedAt:   time.Now(),
		})
	}

	return resp, nil
}

// retrieve runs one hybrid round for an expanded query.
func (p *Pipeline) retrieve(ctx context.Context, expanded ExpandedQuery, opts RAGOptions) (*RetrievalResult, error) {
	return p.retriever.Retrieve(ctx, RetrieveRequest{
		Variants:            expanded.Variants(),
		EmbedTextOverride:   expanded.Hypothetical,
		Limit:               opts.Limit,
		SimilarityThreshold: opts.SimilarityThreshold,
		Hybrid:              opts.UseHybridSearch,
	})
}

func (p *Pipeline) storeIsEmpty(ctx context.Context) (bool, error) {
	stats, err := p.store.Stats(ctx)
	if err != nil {
		return false, err
	}
	return stats.TotalDocuments == 0, nil
}

func buildSources(candidates []domain.RetrievalCandidate, similarity map[string]float64) []Source {
	sources := make([]Source, 0, len(candidates))
	for _, c := range candidates {
		sources = append(sources, Source{
			ID:        c.Document.ID,
			Title:     c.Document.Title,
			Source:    c.Document.Source,
			URL:       c.Document.URL,
			VoteScore: c.Document.VoteScore,
			Score:     similarity[c.Document.ID],
		})
	}
	return sources
}

func sourceIDs(sources []Source) []string {
	ids := make([]string, len(sources))
	for i, s := range sources {
		ids[i] = s.ID
	}
	return ids
}

func searchMethod(opts RAGOptions) string {
	if opts.UseHybridSearch {
		return string(domain.MethodBoth)
	}
	return string(domain.MethodVector)
}

// IsFatal reports whether an error from Ask maps to a server-side
// failure rather than a caller mistake.
func IsFatal(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable) ||
		errors.Is(err, domain.ErrSynthesisFailed) ||
		errors.Is(err, domain.ErrStoreEmpty)
}
