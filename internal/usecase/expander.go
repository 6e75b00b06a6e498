package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"news-rag/internal/domain"

	"golang.org/x/sync/errgroup"
)

const (
	hydeMaxTokens      = 200
	decomposeMaxTokens = 200
	maxSubQueries      = 4
)

// ExpandedQuery carries every formulation derived from the original
// query. Failed expansions surface as Degradations, never as errors:
// the pipeline always has at least the original query to work with.
type ExpandedQuery struct {
	Original string
	// Hypothetical is the HyDE passage; empty when HyDE was off or failed.
	Hypothetical string
	SubQueries   []string
	Degradations []Degradation
}

// Variants returns every query text to retrieve for, original first.
func (e ExpandedQuery) Variants() []string {
	variants := []string{e.Original}
	variants = append(variants, e.SubQueries...)
	return variants
}

// QueryExpander produces alternate query formulations via the
// generation service.
type QueryExpander struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

func NewQueryExpander(llm domain.LLMClient, logger *slog.Logger) *QueryExpander {
	return &QueryExpander{llm: llm, logger: logger}
}

// Expand runs the enabled expansions concurrently. One LLM call per
// enabled feature; each failure degrades to the original query.
func (e *QueryExpander) Expand(ctx context.Context, query string, useHyDE, useDecomposition bool) ExpandedQuery {
	out := ExpandedQuery{Original: query}
	if !useHyDE && !useDecomposition {
		return out
	}

	var hypothetical string
	var subQueries []string
	var hydeErr, decompErr error

	g, gctx := errgroup.WithContext(ctx)
	if useHyDE {
		g.Go(func() error {
			hypothetical, hydeErr = e.hypotheticalAnswer(gctx, query)
			return nil // non-fatal
		})
	}
	if useDecomposition {
		g.Go(func() error {
			subQueries, decompErr = e.decompose(gctx, query)
			return nil // non-fatal
		})
	}
	_ = g.Wait()

	if useHyDE {
		if hydeErr != nil {
			e.logger.Warn("hyde_expansion_failed", slog.String("error", hydeErr.Error()))
			out.Degradations = append(out.Degradations, Degradation{Stage: DegradeHyDE, Reason: hydeErr.Error()})
		} else {
			out.Hypothetical = hypothetical
		}
	}
	if useDecomposition {
		if decompErr != nil {
			e.logger.Warn("decomposition_failed", slog.String("error", decompErr.Error()))
			out.Degradations = append(out.Degradations, Degradation{Stage: DegradeDecomposition, Reason: decompErr.Error()})
		} else if len(subQueries) > 0 {
			out.SubQueries = subQueries
			e.logger.Info("query_decomposed",
				slog.String("original", query),
				slog.Int("sub_query_count", len(subQueries)))
		}
	}
	return out
}

// hypotheticalAnswer synthesizes a plausible answer passage whose
// embedding retrieves better than the raw question when query phrasing
// diverges from article phrasing.
func (e *QueryExpander) hypotheticalAnswer(ctx context.Context, query string) (string, error) {
	prompt := fmt.Sprintf(`Write a short, plausible news-style paragraph that would answer the question below.
Write it as if it came from a news article. Do not mention that it is hypothetical.
Output ONLY the paragraph.

Question: %s`, query)

	resp, err := e.llm.Generate(ctx, prompt, hydeMaxTokens)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("empty hypothetical passage")
	}
	return text, nil
}

func (e *QueryExpander) decompose(ctx context.Context, query string) ([]string, error) {
	prompt := fmt.Sprintf(`Split the compound question below into independent sub-questions that can be searched separately.
If it is already a single simple question, output nothing.
Output ONLY the sub-questions, one per line. No numbering, bullets, or explanations.

Question: %s`, query)

	resp, err := e.llm.Generate(ctx, prompt, decomposeMaxTokens)
	if err != nil {
		return nil, err
	}

	var subQueries []string
	for _, line := range strings.Split(resp.Text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == query {
			continue
		}
		subQueries = append(subQueries, trimmed)
		if len(subQueries) == maxSubQueries {
			break
		}
	}
	return subQueries, nil
}
