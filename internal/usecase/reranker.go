package usecase

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"news-rag/internal/domain"
)

// RerankStage orders retrieval candidates by cross-encoder relevance.
// Reranking permutes and filters, it never fabricates: the output is
// always a subset of the input, and reranking an already-reranked list
// is a no-op. Any reranker failure degrades to the fused order.
type RerankStage struct {
	reranker domain.Reranker
	tuning   RetrievalTuning
	logger   *slog.Logger
}

func NewRerankStage(reranker domain.Reranker, tuning RetrievalTuning, logger *slog.Logger) *RerankStage {
	return &RerankStage{reranker: reranker, tuning: tuning, logger: logger}
}

// Rerank scores candidates against the query and reorders them. The
// returned Degradation is non-nil when the stage fell back to the
// incoming order.
func (s *RerankStage) Rerank(ctx context.Context, query string, candidates []domain.RetrievalCandidate) ([]domain.RetrievalCandidate, *Degradation) {
	if len(candidates) <= 1 {
		return candidates, nil
	}

	batch := candidates
	if len(batch) > s.tuning.MaxRerankCandidates {
		batch = batch[:s.tuning.MaxRerankCandidates]
	}

	ctx, cancel := context.WithTimeout(ctx, s.tuning.RerankTimeout)
	defer cancel()

	input := make([]domain.RerankCandidate, len(batch))
	for i, c := range batch {
		input[i] = domain.RerankCandidate{
			ID:      c.Document.ID,
			Content: c.Document.Title + "\n" + c.Document.Content,
			Score:   c.Score,
		}
	}

	start := time.Now()
	scored, err := s.reranker.Rerank(ctx, query, input)
	if err != nil {
		s.logger.Warn("rerank_failed_using_fused_order",
			slog.String("error", err.Error()),
			slog.Int("candidate_count", len(batch)))
		return candidates, &Degradation{Stage: DegradeReranking, Reason: err.Error()}
	}

	byID := make(map[string]float64, len(scored))
	for _, r := range scored {
		byID[r.ID] = r.Score
	}

	// Candidates the cross-encoder did not score keep their fused rank
	// below every scored one.
	reranked := make([]domain.RetrievalCandidate, len(candidates))
	copy(reranked, candidates)
	sort.SliceStable(reranked, func(i, j int) bool {
		si, iOK := byID[reranked[i].Document.ID]
		sj, jOK := byID[reranked[j].Document.ID]
		if iOK != jOK {
			return iOK
		}
		if !iOK {
			return false
		}
		return si > sj
	})
	for i := range reranked {
		if score, ok := byID[reranked[i].Document.ID]; ok {
			reranked[i].Score = score
		}
	}

	s.logger.Info("rerank_completed",
		slog.String("model", s.reranker.ModelName()),
		slog.Int("scored_count", len(scored)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return reranked, nil
}
