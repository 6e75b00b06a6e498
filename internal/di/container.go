package di

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"news-rag/internal/adapter/llmprovider"
	"news-rag/internal/adapter/repository"
	"news-rag/internal/domain"
	"news-rag/internal/infra/config"
	"news-rag/internal/infra/httpclient"
	"news-rag/internal/usecase"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	Store    domain.DocumentStore
	Pipeline *usecase.Pipeline
	Feedback *usecase.FeedbackCollector
	Limiter  *usecase.RateLimiterStore
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) (*ApplicationComponents, error) {
	store := repository.NewDocumentRepository(pool)

	// Shared HTTP clients with connection pooling
	embedderHTTP := httpclient.NewPooledClient(time.Duration(cfg.OllamaTimeout) * time.Second)
	generatorHTTP := httpclient.NewPooledClient(2 * time.Duration(cfg.OllamaTimeout) * time.Second)
	rerankHTTP := httpclient.NewPooledClient(time.Duration(cfg.RerankerTimeout) * time.Second)

	// External clients
	embedder := llmprovider.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, cfg.OllamaTimeout, embedderHTTP)
	generator := llmprovider.NewOllamaGenerator(cfg.OllamaURL, cfg.GenerateModel, generatorHTTP)
	reranker := llmprovider.NewRerankerClient(
		cfg.RerankerURL,
		cfg.RerankerModel,
		time.Duration(cfg.RerankerTimeout)*time.Second,
		log,
		rerankHTTP,
	)

	pipelineCfg := usecase.PipelineConfig{
		Tuning: usecase.RetrievalTuning{
			SearchLimit:         cfg.SearchLimit,
			RRFK:                cfg.RRFK,
			Alpha:               cfg.HybridAlpha,
			MaxRerankCandidates: 30,
			RerankTimeout:       time.Duration(cfg.RerankerTimeout) * time.Second,
		},
		MaxExtraRounds:     cfg.MaxExtraRounds,
		CompressorMaxChars: cfg.CompressorMaxChars,
		SynthesisMaxTokens: cfg.AnswerMaxTokens,
		RequestTimeout:     time.Duration(cfg.RequestTimeout) * time.Second,
		MemoryTurns:        cfg.MemoryTurns,
		CacheSize:          cfg.CacheSize,
		CacheTTL:           time.Duration(cfg.CacheTTLMin) * time.Minute,
		TraceBufferSize:    cfg.TraceBufSize,
	}

	pipeline, err := usecase.NewPipeline(store, embedder, generator, reranker, pipelineCfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	log.Info("pipeline_wired",
		slog.String("embedding_model", cfg.EmbeddingModel),
		slog.String("generate_model", cfg.GenerateModel),
		slog.String("reranker_model", cfg.RerankerModel),
		slog.Float64("rrf_k", cfg.RRFK),
		slog.Float64("hybrid_alpha", cfg.HybridAlpha))

	return &ApplicationComponents{
		Store:    store,
		Pipeline: pipeline,
		Feedback: usecase.NewFeedbackCollector(log),
		Limiter:  usecase.NewRateLimiterStore(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}, nil
}
