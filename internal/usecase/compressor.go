package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"news-rag/internal/domain"
)

const compressMaxTokens = 300

// ContextCompressor trims each passage down to the spans relevant to
// the query before synthesis. Compression extracts, it never rewrites:
// every emitted span must be a verbatim substring of the source
// document, which keeps citations verifiable. A failed or invalid
// extraction falls back to a plain prefix truncation.
type ContextCompressor struct {
	llm      domain.LLMClient
	maxChars int
	logger   *slog.Logger
}

func NewContextCompressor(llm domain.LLMClient, maxChars int, logger *slog.Logger) *ContextCompressor {
	return &ContextCompressor{llm: llm, maxChars: maxChars, logger: logger}
}

// Compress returns candidates with Content shortened to query-relevant
// spans. The returned Degradation is non-nil if any passage fell back
// to truncation because of an extraction failure.
func (c *ContextCompressor) Compress(ctx context.Context, query string, candidates []domain.RetrievalCandidate) ([]domain.RetrievalCandidate, *Degradation) {
	out := make([]domain.RetrievalCandidate, len(candidates))
	copy(out, candidates)

	var firstErr error
	failures := 0
	for i := range out {
		if len(out[i].Document.Content) <= c.maxChars {
			continue
		}
		span, err := c.extractSpan(ctx, query, out[i].Document.Content)
		if err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
			out[i].Document.Content = truncate(out[i].Document.Content, c.maxChars)
			continue
		}
		out[i].Document.Content = span
	}

	if failures > 0 {
		c.logger.Warn("compression_partially_degraded",
			slog.Int("failed_count", failures),
			slog.String("error", firstErr.Error()))
		return out, &Degradation{
			Stage:  DegradeCompression,
			Reason: fmt.Sprintf("%d passage(s) truncated: %v", failures, firstErr),
		}
	}
	return out, nil
}

// extractSpan asks the model to quote the relevant span and verifies it
// actually occurs in the source before accepting it.
func (c *ContextCompressor) extractSpan(ctx context.Context, query, content string) (string, error) {
	prompt := fmt.Sprintf(`Quote the single passage from the article below that is most relevant to the question.
Copy it EXACTLY as written, without paraphrasing, and keep it under %d characters.
Output ONLY the quoted passage.

Question: %s

Article:
%s`, c.maxChars, query, content)

	resp, err := c.llm.Generate(ctx, prompt, compressMaxTokens)
	if err != nil {
		return "", err
	}
	span := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Text), `"`))
	if span == "" {
		return "", fmt.Errorf("empty extraction")
	}
	if !strings.Contains(content, span) {
		return "", fmt.Errorf("extracted span is not a substring of the source")
	}
	if len(span) > c.maxChars {
		span = truncate(span, c.maxChars)
	}
	return span, nil
}

// truncate cuts s at the last word boundary before max.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > max/2 {
		cut = cut[:idx]
	}
	return cut
}
