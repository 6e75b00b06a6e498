package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"news-rag/internal/domain"

	"golang.org/x/sync/errgroup"
)

// RetrieveRequest drives one hybrid retrieval round.
type RetrieveRequest struct {
	// Variants are the query formulations to search, original first.
	Variants []string
	// EmbedTextOverride replaces the first variant's text for embedding
	// only (HyDE); keyword search still uses the variant text.
	EmbedTextOverride string
	Limit             int
	// SimilarityThreshold drops vector hits below this cosine similarity
	// before fusion. Lexical hits are not subject to it.
	SimilarityThreshold float64
	// Hybrid enables the lexical leg alongside vector search.
	Hybrid bool
}

// RetrievalResult is the fused output of one retrieval round.
type RetrievalResult struct {
	// Candidates is the fused, thresholded, capped result set ordered by
	// fused score descending.
	Candidates []domain.RetrievalCandidate
	// Pool is every unique document seen before the cap, for related
	// article selection downstream.
	Pool []domain.RetrievalCandidate
	// Similarity maps document id to its best raw vector similarity.
	// Lexical-only documents are absent.
	Similarity map[string]float64
	// Searched counts unique documents considered.
	Searched     int
	Degradations []Degradation
}

// HybridRetriever issues vector and lexical searches concurrently for
// each query variant and fuses the ranked lists with reciprocal-rank
// fusion. The lexical leg is best-effort; the vector leg is not.
type HybridRetriever struct {
	store   domain.DocumentStore
	encoder domain.VectorEncoder
	cache   *CacheManager
	tuning  RetrievalTuning
	logger  *slog.Logger
}

func NewHybridRetriever(
	store domain.DocumentStore,
	encoder domain.VectorEncoder,
	cache *CacheManager,
	tuning RetrievalTuning,
	logger *slog.Logger,
) *HybridRetriever {
	return &HybridRetriever{
		store:   store,
		encoder: encoder,
		cache:   cache,
		tuning:  tuning,
		logger:  logger,
	}
}

// rankedList is one index's ordered hits plus its fusion weight.
type rankedList struct {
	hits   []domain.RetrievalCandidate
	method domain.RetrievalMethod
	weight float64
}

// Retrieve runs the full hybrid round. If the vector store is
// unavailable the error wraps domain.ErrStoreUnavailable and propagates;
// a lexical failure degrades to vector-only results.
func (r *HybridRetriever) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrievalResult, error) {
	if len(req.Variants) == 0 {
		return nil, fmt.Errorf("no query variants to retrieve")
	}

	embeddings, err := r.embedVariants(ctx, req)
	if err != nil {
		return nil, err
	}

	searchStart := time.Now()
	result := &RetrievalResult{Similarity: make(map[string]float64)}

	var mu sync.Mutex
	lists := make([]rankedList, 0, len(req.Variants)*2)
	var lexicalErr error

	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range req.Variants {
		embedding := embeddings[i]
		g.Go(func() error {
			hits, err := r.store.VectorSearch(gctx, embedding, r.tuning.SearchLimit)
			if err != nil {
				if errors.Is(err, domain.ErrStoreUnavailable) {
					return err
				}
				return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
			}
			mu.Lock()
			lists = append(lists, rankedList{hits: hits, method: domain.MethodVector, weight: 1 - r.tuning.Alpha})
			mu.Unlock()
			return nil
		})
		if req.Hybrid {
			g.Go(func() error {
				hits, err := r.store.KeywordSearch(gctx, variant, r.tuning.SearchLimit)
				if err != nil {
					// Lexical leg is non-critical.
					mu.Lock()
					lexicalErr = err
					mu.Unlock()
					return nil
				}
				mu.Lock()
				lists = append(lists, rankedList{hits: hits, method: domain.MethodLexical, weight: r.tuning.Alpha})
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if lexicalErr != nil {
		r.logger.Warn("keyword_search_failed_degrading_to_vector_only",
			slog.String("error", lexicalErr.Error()))
		result.Degradations = append(result.Degradations, Degradation{
			Stage:  DegradeLexical,
			Reason: lexicalErr.Error(),
		})
	}

	r.fuse(lists, req, result)

	r.logger.Info("hybrid_retrieval_completed",
		slog.Int("variant_count", len(req.Variants)),
		slog.Int("documents_searched", result.Searched),
		slog.Int("fused_count", len(result.Candidates)),
		slog.Int64("duration_ms", time.Since(searchStart).Milliseconds()))

	return result, nil
}

// embedVariants encodes every variant text, consulting the embedding
// cache tier first and batching the misses into one encoder call.
func (r *HybridRetriever) embedVariants(ctx context.Context, req RetrieveRequest) ([][]float32, error) {
	texts := make([]string, len(req.Variants))
	copy(texts, req.Variants)
	if req.EmbedTextOverride != "" {
		texts[0] = req.EmbedTextOverride
	}

	embeddings := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if r.cache != nil {
			if vec, ok := r.cache.GetEmbedding(text); ok {
				embeddings[i] = vec
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		encoded, err := r.encoder.Encode(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to encode queries: %w", err)
		}
		if len(encoded) != len(missing) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(missing), len(encoded))
		}
		for j, vec := range encoded {
			embeddings[missingIdx[j]] = vec
			if r.cache != nil {
				r.cache.PutEmbedding(missing[j], vec)
			}
		}
	}
	return embeddings, nil
}

type fusedEntry struct {
	candidate domain.RetrievalCandidate
	fused     float64
	methods   map[domain.RetrievalMethod]bool
}

// fuse merges the ranked lists with weighted reciprocal-rank fusion:
// each appearance contributes weight / (K + rank). A document hit by
// both methods accumulates both contributions, so fusion is monotonic.
func (r *HybridRetriever) fuse(lists []rankedList, req RetrieveRequest, result *RetrievalResult) {
	entries := make(map[string]*fusedEntry)

	for _, list := range lists {
		for rank, hit := range list.hits {
			if list.method == domain.MethodVector {
				if prev, ok := result.Similarity[hit.Document.ID]; !ok || hit.Score > prev {
					result.Similarity[hit.Document.ID] = hit.Score
				}
				if hit.Score < req.SimilarityThreshold {
					continue
				}
			}
			entry, ok := entries[hit.Document.ID]
			if !ok {
				entry = &fusedEntry{
					candidate: hit,
					methods:   make(map[domain.RetrievalMethod]bool),
				}
				entries[hit.Document.ID] = entry
			}
			entry.fused += list.weight / (r.tuning.RRFK + float64(rank+1))
			entry.methods[list.method] = true
		}
	}

	fusedList := make([]domain.RetrievalCandidate, 0, len(entries))
	for _, entry := range entries {
		c := entry.candidate
		c.Score = entry.fused
		if entry.methods[domain.MethodVector] && entry.methods[domain.MethodLexical] {
			c.Method = domain.MethodBoth
		} else if entry.methods[domain.MethodLexical] {
			c.Method = domain.MethodLexical
		} else {
			c.Method = domain.MethodVector
		}
		fusedList = append(fusedList, c)
	}

	sort.SliceStable(fusedList, func(i, j int) bool {
		if fusedList[i].Score != fusedList[j].Score {
			return fusedList[i].Score > fusedList[j].Score
		}
		return moreRecent(fusedList[i].Document.PublishedAt, fusedList[j].Document.PublishedAt)
	})

	result.Searched = len(fusedList)
	result.Pool = fusedList
	if len(fusedList) > req.Limit {
		result.Candidates = fusedList[:req.Limit]
	} else {
		result.Candidates = fusedList
	}
}

// moreRecent breaks score ties in favor of the newer document; a known
// publication date beats an unknown one.
func moreRecent(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}
