package usecase_test

import (
	"context"
	"errors"
	"testing"

	"news-rag/internal/domain"
	"news-rag/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSuggestionBuilder_ParsesOnePerLine(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything, 150).Return(&domain.LLMResponse{
		Text: "1. When does the review happen?\n- Who opposes the rules?\n\nWhat comes next?\nA fourth question?",
	}, nil)

	s := usecase.NewSuggestionBuilder(llm, testLogger())
	questions, deg := s.SuggestQuestions(context.Background(), "query", "answer", []domain.RetrievalCandidate{
		vectorHit("doc-1", 0.9),
	})

	assert.Nil(t, deg)
	assert.Equal(t, []string{
		"When does the review happen?",
		"Who opposes the rules?",
		"What comes next?",
	}, questions, "list markers stripped, capped at three")
}

func TestSuggestionBuilder_FailureDegrades(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything, 150).Return(nil, errors.New("model down"))

	s := usecase.NewSuggestionBuilder(llm, testLogger())
	questions, deg := s.SuggestQuestions(context.Background(), "query", "answer", []domain.RetrievalCandidate{
		vectorHit("doc-1", 0.9),
	})

	assert.Empty(t, questions)
	require.NotNil(t, deg)
	assert.Equal(t, usecase.DegradeSuggestions, deg.Stage)
}

func TestSuggestionBuilder_NoCandidatesNoCall(t *testing.T) {
	llm := new(mockLLMClient)

	s := usecase.NewSuggestionBuilder(llm, testLogger())
	questions, deg := s.SuggestQuestions(context.Background(), "query", "answer", nil)

	assert.Empty(t, questions)
	assert.Nil(t, deg)
	llm.AssertNotCalled(t, "Generate")
}

func titled(id, title string) domain.RetrievalCandidate {
	return domain.RetrievalCandidate{Document: domain.Document{ID: id, Title: title, Source: "test-wire"}}
}

func TestRelatedArticles_RanksByTitleOverlap(t *testing.T) {
	pool := []domain.RetrievalCandidate{
		titled("doc-1", "Chip export controls announced"),
		titled("doc-2", "Chip export review scheduled"),
		titled("doc-3", "Football season opens"),
	}
	used := []domain.RetrievalCandidate{pool[0]}

	related := usecase.RelatedArticles("chip export controls", pool, used)

	require.Len(t, related, 1, "used sources and zero-overlap titles are excluded")
	assert.Equal(t, "doc-2", related[0].ID)
	assert.Greater(t, related[0].Score, 0.0)
}

func TestRelatedArticles_IsDeterministic(t *testing.T) {
	pool := []domain.RetrievalCandidate{
		titled("doc-1", "Export rules tighten"),
		titled("doc-2", "Export rules loosen"),
	}

	first := usecase.RelatedArticles("export rules", pool, nil)
	second := usecase.RelatedArticles("export rules", pool, nil)
	assert.Equal(t, first, second)
}

func TestRelatedArticles_EmptyQueryTokens(t *testing.T) {
	pool := []domain.RetrievalCandidate{titled("doc-1", "Anything at all")}

	// Stopwords and short tokens only; nothing to overlap on.
	assert.Nil(t, usecase.RelatedArticles("is it a", pool, nil))
}
