package usecase_test

import (
	"context"
	"testing"

	"news-rag/internal/domain"
	"news-rag/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func retrievalResultWith(ids ...string) *usecase.RetrievalResult {
	result := &usecase.RetrievalResult{Similarity: map[string]float64{}}
	for _, id := range ids {
		result.Candidates = append(result.Candidates, vectorHit(id, 0.8))
	}
	result.Pool = result.Candidates
	result.Searched = len(ids)
	return result
}

func TestSelfRAGCritic_NeverApprovingCriticStillTerminates(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{
		Text: `{"sufficient": false, "reformulatedQuery": "better query", "reason": "missing detail"}`,
	}, nil)

	critic := usecase.NewSelfRAGCritic(llm, testLogger())
	retrieveCalls := 0
	const maxExtra = 2

	best, rounds, degradations := critic.Refine(context.Background(), "query", retrievalResultWith("doc-a"), maxExtra,
		func(ctx context.Context, q string) (*usecase.RetrievalResult, error) {
			retrieveCalls++
			assert.Equal(t, "better query", q)
			return retrievalResultWith("doc-b"), nil
		})

	// The round budget is a hard bound: 1 initial + maxExtra, no more.
	assert.Equal(t, 1+maxExtra, rounds)
	assert.Equal(t, maxExtra, retrieveCalls)
	assert.Empty(t, degradations)
	require.Len(t, best.Candidates, 1)
	assert.Equal(t, "doc-b", best.Candidates[0].Document.ID)
}

func TestSelfRAGCritic_SufficientVerdictStopsImmediately(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{
		Text: `{"sufficient": true, "reformulatedQuery": "", "reason": "covers the question"}`,
	}, nil).Once()

	critic := usecase.NewSelfRAGCritic(llm, testLogger())
	_, rounds, degradations := critic.Refine(context.Background(), "query", retrievalResultWith("doc-a"), 2,
		func(ctx context.Context, q string) (*usecase.RetrievalResult, error) {
			t.Fatal("retrieve must not run after a sufficient verdict")
			return nil, nil
		})

	assert.Equal(t, 1, rounds)
	assert.Empty(t, degradations)
	llm.AssertExpectations(t)
}

func TestSelfRAGCritic_MalformedVerdictDegradesAndAcceptsRound(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{
		Text: "the context looks fine to me",
	}, nil)

	critic := usecase.NewSelfRAGCritic(llm, testLogger())
	best, rounds, degradations := critic.Refine(context.Background(), "query", retrievalResultWith("doc-a"), 2,
		func(ctx context.Context, q string) (*usecase.RetrievalResult, error) {
			t.Fatal("retrieve must not run when the critic fails")
			return nil, nil
		})

	assert.Equal(t, 1, rounds)
	require.Len(t, degradations, 1)
	assert.Equal(t, usecase.DegradeCritic, degradations[0].Stage)
	assert.Equal(t, "doc-a", best.Candidates[0].Document.ID)
}

func TestSelfRAGCritic_EmptyRetryKeepsBestRound(t *testing.T) {
	llm := new(mockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{
		Text: `{"sufficient": false, "reformulatedQuery": "narrower query", "reason": "too broad"}`,
	}, nil)

	critic := usecase.NewSelfRAGCritic(llm, testLogger())
	best, rounds, _ := critic.Refine(context.Background(), "query", retrievalResultWith("doc-a"), 1,
		func(ctx context.Context, q string) (*usecase.RetrievalResult, error) {
			return retrievalResultWith(), nil
		})

	assert.Equal(t, 2, rounds)
	// The empty retry never replaces a round that found something.
	require.Len(t, best.Candidates, 1)
	assert.Equal(t, "doc-a", best.Candidates[0].Document.ID)
}
