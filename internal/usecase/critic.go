package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"news-rag/internal/domain"
)

const criticMaxTokens = 200

// CriticVerdict is the critic's judgement on one retrieval round.
type CriticVerdict struct {
	Sufficient bool
	// Reformulated is the rewritten query to retry with when the round
	// was judged insufficient.
	Reformulated string
	Reason       string
}

// SelfRAGCritic reviews a retrieval round before synthesis and, when
// the context looks insufficient, reformulates the query for another
// round. The refinement loop is bounded by a hard round budget so a
// critic that never approves cannot spin the pipeline; exhausting the
// budget proceeds to synthesis with the best round seen.
type SelfRAGCritic struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

func NewSelfRAGCritic(llm domain.LLMClient, logger *slog.Logger) *SelfRAGCritic {
	return &SelfRAGCritic{llm: llm, logger: logger}
}

// Refine runs the bounded critique loop. retrieve re-runs retrieval for
// a reformulated query. The returned round count includes the initial
// round; degradations record critic failures, which are treated as
// approval.
func (c *SelfRAGCritic) Refine(
	ctx context.Context,
	query string,
	initial *RetrievalResult,
	maxExtraRounds int,
	retrieve func(ctx context.Context, query string) (*RetrievalResult, error),
) (*RetrievalResult, int, []Degradation) {
	best := initial
	rounds := 1
	currentQuery := query
	var degradations []Degradation

	for extra := 0; extra < maxExtraRounds; extra++ {
		verdict, err := c.review(ctx, currentQuery, best.Candidates)
		if err != nil {
			c.logger.Warn("critic_review_failed_accepting_round",
				slog.String("error", err.Error()),
				slog.Int("round", rounds))
			degradations = append(degradations, Degradation{Stage: DegradeCritic, Reason: err.Error()})
			break
		}
		if verdict.Sufficient {
			break
		}

		c.logger.Info("critic_requested_another_round",
			slog.Int("round", rounds),
			slog.String("reason", verdict.Reason))

		next, err := retrieve(ctx, verdict.Reformulated)
		if err != nil {
			degradations = append(degradations, Degradation{Stage: DegradeCritic, Reason: err.Error()})
			break
		}
		rounds++
		currentQuery = verdict.Reformulated
		if len(next.Candidates) > 0 {
			best = next
		}
	}

	return best, rounds, degradations
}

type criticPayload struct {
	Sufficient   bool   `json:"sufficient"`
	Reformulated string `json:"reformulatedQuery"`
	Reason       string `json:"reason"`
}

func (c *SelfRAGCritic) review(ctx context.Context, query string, candidates []domain.RetrievalCandidate) (*CriticVerdict, error) {
	if len(candidates) == 0 {
		return &CriticVerdict{
			Sufficient:   false,
			Reformulated: query,
			Reason:       "no documents retrieved",
		}, nil
	}

	var b strings.Builder
	b.WriteString("Judge whether the article snippets below are sufficient to answer the question.\n")
	b.WriteString("Respond with JSON only: ")
	b.WriteString(`{"sufficient": true|false, "reformulatedQuery": "...", "reason": "..."}`)
	b.WriteString("\nIf insufficient, reformulatedQuery must be a better search query for the missing information.\n\n")
	for _, cand := range candidates {
		fmt.Fprintf(&b, "- %s: %s\n", cand.Document.Title, truncate(cand.Document.Content, 200))
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", query)

	resp, err := c.llm.Generate(ctx, b.String(), criticMaxTokens)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var payload criticPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &payload); err != nil {
		return nil, fmt.Errorf("critic output not parseable: %w", err)
	}

	verdict := &CriticVerdict{
		Sufficient:   payload.Sufficient,
		Reformulated: strings.TrimSpace(payload.Reformulated),
		Reason:       payload.Reason,
	}
	if !verdict.Sufficient && verdict.Reformulated == "" {
		verdict.Reformulated = query
	}
	return verdict, nil
}
