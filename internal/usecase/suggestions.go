package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"news-rag/internal/domain"
)

const (
	suggestMaxTokens   = 150
	maxSuggestions     = 3
	maxRelatedArticles = 3
)

// SuggestionBuilder produces the exploratory extras attached to a
// response: follow-up questions and related articles. Both are
// best-effort decorations; neither can fail a request.
type SuggestionBuilder struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

func NewSuggestionBuilder(llm domain.LLMClient, logger *slog.Logger) *SuggestionBuilder {
	return &SuggestionBuilder{llm: llm, logger: logger}
}

// SuggestQuestions proposes follow-up questions the retrieved articles
// could answer.
func (s *SuggestionBuilder) SuggestQuestions(ctx context.Context, query, answer string, candidates []domain.RetrievalCandidate) ([]string, *Degradation) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("Suggest short follow-up questions a reader might ask next, answerable from the article titles below.\n")
	b.WriteString("Output ONLY the questions, one per line, no numbering.\n\nTitles:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s\n", c.Document.Title)
	}
	fmt.Fprintf(&b, "\nOriginal question: %s\nAnswer given: %s\n", query, truncate(answer, 300))

	resp, err := s.llm.Generate(ctx, b.String(), suggestMaxTokens)
	if err != nil {
		s.logger.Warn("suggested_questions_failed", slog.String("error", err.Error()))
		return nil, &Degradation{Stage: DegradeSuggestions, Reason: err.Error()}
	}

	var questions []string
	for _, line := range strings.Split(resp.Text, "\n") {
		q := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == maxSuggestions {
			break
		}
	}
	return questions, nil
}

// RelatedArticles picks articles from the searched pool that were not
// used as sources but share vocabulary with the query. Pure token
// overlap, no model call, deterministic.
func RelatedArticles(query string, pool, used []domain.RetrievalCandidate) []Source {
	usedIDs := make(map[string]bool, len(used))
	for _, c := range used {
		usedIDs[c.Document.ID] = true
	}
	queryTokens := tokenSet(query)
	if len(queryTokens) == 0 {
		return nil
	}

	type scored struct {
		candidate domain.RetrievalCandidate
		overlap   float64
	}
	var ranked []scored
	for _, c := range pool {
		if usedIDs[c.Document.ID] {
			continue
		}
		titleTokens := tokenSet(c.Document.Title)
		if len(titleTokens) == 0 {
			continue
		}
		shared := 0
		for t := range titleTokens {
			if queryTokens[t] {
				shared++
			}
		}
		if shared == 0 {
			continue
		}
		ranked = append(ranked, scored{candidate: c, overlap: float64(shared) / float64(len(titleTokens))})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].overlap != ranked[j].overlap {
			return ranked[i].overlap > ranked[j].overlap
		}
		return ranked[i].candidate.Score > ranked[j].candidate.Score
	})

	n := len(ranked)
	if n > maxRelatedArticles {
		n = maxRelatedArticles
	}
	out := make([]Source, 0, n)
	for _, r := range ranked[:n] {
		doc := r.candidate.Document
		out = append(out, Source{
			ID:        doc.ID,
			Title:     doc.Title,
			Source:    doc.Source,
			URL:       doc.URL,
			VoteScore: doc.VoteScore,
			Score:     r.overlap,
		})
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
	"to": true, "for": true, "and": true, "or": true, "is": true, "are": true,
	"was": true, "what": true, "which": true, "how": true, "why": true,
	"with": true, "about": true, "this": true, "that": true,
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, "?.,!:;\"'()")
		if len(f) < 3 || stopwords[f] {
			continue
		}
		set[f] = true
	}
	return set
}
