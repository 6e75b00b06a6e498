package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"news-rag/internal/domain"
)

// SynthesisInput carries everything the answer stage needs.
type SynthesisInput struct {
	Query      string
	Strategy   Strategy
	History    []Turn
	Candidates []domain.RetrievalCandidate
	// Attributed requests per-claim citations in the output.
	Attributed bool
	MaxTokens  int
}

// SynthesisResult is the generated answer plus validated citations.
type SynthesisResult struct {
	Answer       string
	Insufficient bool
	Citations    []Citation
}

// AnswerSynthesizer generates the final grounded answer. The model is
// constrained to the retrieved passages and must either answer from
// them or declare the context insufficient; it is never allowed to
// answer from its own knowledge. Citations referencing unknown document
// ids are stripped during validation, and an attributed answer left
// with no valid citation is downgraded to insufficient rather than
// served unverifiable.
type AnswerSynthesizer struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

func NewAnswerSynthesizer(llm domain.LLMClient, logger *slog.Logger) *AnswerSynthesizer {
	return &AnswerSynthesizer{llm: llm, logger: logger}
}

// synthesisPayload is the JSON shape the model is asked to emit.
type synthesisPayload struct {
	Answer       string `json:"answer"`
	Insufficient bool   `json:"insufficient"`
	Citations    []struct {
		Claim  string   `json:"claim"`
		DocIDs []string `json:"docIds"`
	} `json:"citations"`
}

// Synthesize generates and validates the answer. It returns an error
// wrapping domain.ErrSynthesisFailed only when generation itself fails;
// malformed or unverifiable model output degrades to an insufficient
// answer instead.
func (s *AnswerSynthesizer) Synthesize(ctx context.Context, in SynthesisInput) (*SynthesisResult, error) {
	if len(in.Candidates) == 0 {
		return &SynthesisResult{
			Answer:       "I could not find any relevant articles for this question.",
			Insufficient: true,
		}, nil
	}

	prompt := s.buildPrompt(in)
	start := time.Now()
	resp, err := s.llm.Generate(ctx, prompt, in.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSynthesisFailed, err)
	}

	result := s.parse(resp.Text, in)
	s.validate(result, in)

	s.logger.Info("answer_synthesized",
		slog.String("model_version", s.llm.Version()),
		slog.Bool("insufficient", result.Insufficient),
		slog.Int("citation_count", len(result.Citations)),
		slog.Int("tokens_used", resp.TokensUsed),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return result, nil
}

func (s *AnswerSynthesizer) buildPrompt(in SynthesisInput) string {
	var b strings.Builder
	b.WriteString("Answer the question using ONLY the articles below. ")
	b.WriteString("If they do not contain enough information, set \"insufficient\" to true and say so in the answer. ")
	b.WriteString("Never answer from outside the articles.\n")

	switch in.Strategy {
	case StrategyComparison:
		b.WriteString("The question asks for a comparison; cover each side explicitly.\n")
	case StrategySummary:
		b.WriteString("The question asks for a summary; synthesize across all articles.\n")
	}

	if in.Attributed {
		b.WriteString("For every factual claim in the answer, add a citation entry mapping the claim to the supporting article id(s).\n")
	}

	b.WriteString("\nRespond with JSON only, in this shape:\n")
	b.WriteString(`{"answer": "...", "insufficient": false, "citations": [{"claim": "...", "docIds": ["..."]}]}`)
	b.WriteString("\n\nArticles:\n")
	for _, c := range in.Candidates {
		fmt.Fprintf(&b, "[%s] %s\n%s\n\n", c.Document.ID, c.Document.Title, c.Document.Content)
	}

	if len(in.History) > 0 {
		b.WriteString("Previous turns:\n")
		for _, t := range in.History {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", t.Query, t.Answer)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s\n", in.Query)
	return b.String()
}

// parse decodes the model output, tolerating markdown fences. A payload
// that cannot be decoded at all falls back to treating the raw text as
// an uncited answer.
func (s *AnswerSynthesizer) parse(raw string, in SynthesisInput) *SynthesisResult {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var payload synthesisPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		s.logger.Warn("synthesis_output_not_json_using_raw_text",
			slog.String("error", err.Error()))
		return &SynthesisResult{Answer: strings.TrimSpace(raw)}
	}

	result := &SynthesisResult{
		Answer:       strings.TrimSpace(payload.Answer),
		Insufficient: payload.Insufficient,
	}
	for _, c := range payload.Citations {
		result.Citations = append(result.Citations, Citation{Claim: c.Claim, DocIDs: c.DocIDs})
	}
	if result.Answer == "" {
		result.Answer = "The retrieved articles do not contain enough information to answer this question."
		result.Insufficient = true
	}
	return result
}

// validate strips citations that reference ids outside the retrieved
// set and enforces the attribution contract.
func (s *AnswerSynthesizer) validate(result *SynthesisResult, in SynthesisInput) {
	known := make(map[string]bool, len(in.Candidates))
	for _, c := range in.Candidates {
		known[c.Document.ID] = true
	}

	valid := result.Citations[:0]
	dropped := 0
	for _, cit := range result.Citations {
		ids := cit.DocIDs[:0]
		for _, id := range cit.DocIDs {
			if known[id] {
				ids = append(ids, id)
			} else {
				dropped++
			}
		}
		cit.DocIDs = ids
		if len(cit.DocIDs) > 0 && cit.Claim != "" {
			valid = append(valid, cit)
		}
	}
	result.Citations = valid

	if dropped > 0 {
		s.logger.Warn("citations_referenced_unknown_documents",
			slog.Int("dropped_count", dropped))
	}

	if in.Attributed && !result.Insufficient && len(result.Citations) == 0 {
		s.logger.Warn("attributed_answer_without_valid_citations_downgraded")
		result.Insufficient = true
		result.Answer = "The retrieved articles do not contain enough verifiable information to answer this question."
	}
}
