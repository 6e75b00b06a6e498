package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"news-rag/internal/domain"
	"news-rag/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const answerJSON = `{"answer": "Export rules took effect in March.", "insufficient": false,
	"citations": [{"claim": "took effect in March", "docIds": ["doc-1"]}]}`

func testPipelineConfig() usecase.PipelineConfig {
	return usecase.PipelineConfig{
		Tuning:             testTuning(),
		MaxExtraRounds:     1,
		CompressorMaxChars: 600,
		SynthesisMaxTokens: 512,
		RequestTimeout:     5 * time.Second,
		MemoryTurns:        5,
		CacheSize:          16,
		CacheTTL:           time.Minute,
		TraceBufferSize:    16,
	}
}

func newTestPipeline(t *testing.T, store *MockDocumentStore, encoder *MockVectorEncoder, llm *mockLLMClient, reranker *MockReranker) *usecase.Pipeline {
	t.Helper()
	p, err := usecase.NewPipeline(store, encoder, llm, reranker, testPipelineConfig(), testLogger())
	require.NoError(t, err)
	return p
}

// leanOptions keeps only the stages the test exercises explicitly.
func leanOptions() usecase.RAGOptions {
	return usecase.RAGOptions{
		Limit:               10,
		SimilarityThreshold: 0.5,
	}
}

func TestPipeline_AskProducesAttributedAnswer(t *testing.T) {
	store := new(MockDocumentStore)
	encoder := new(MockVectorEncoder)
	llm := new(mockLLMClient)
	reranker := new(MockReranker)

	embedding := []float32{0.1}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{embedding}, nil)
	store.On("VectorSearch", mock.Anything, embedding, 50).Return([]domain.RetrievalCandidate{
		vectorHit("doc-1", 0.9),
		vectorHit("doc-2", 0.7),
	}, nil)
	llm.On("Generate", mock.Anything, promptContains("Articles:"), mock.Anything).Return(&domain.LLMResponse{Text: answerJSON}, nil)

	p := newTestPipeline(t, store, encoder, llm, reranker)

	opts := leanOptions()
	opts.UseAttributedAnswers = true
	opts.UseConfidenceScoring = true
	opts.UseTracing = true

	resp, err := p.Ask(context.Background(), "when did the export rules take effect?", opts)
	require.NoError(t, err)

	assert.Equal(t, "Export rules took effect in March.", resp.Answer)
	assert.False(t, resp.Insufficient)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "doc-1", resp.Sources[0].ID)
	require.Len(t, resp.Citations, 1)
	require.NotNil(t, resp.Confidence)
	assert.Greater(t, *resp.Confidence, 0.0)
	assert.NotEmpty(t, resp.TraceID)
	assert.Equal(t, 2, resp.Metadata.DocumentsUsed)
	assert.False(t, resp.CacheHit)
}

func TestPipeline_SecondAskIsServedFromCache(t *testing.T) {
	store := new(MockDocumentStore)
	encoder := new(MockVectorEncoder)
	llm := new(mockLLMClient)
	reranker := new(MockReranker)

	embedding := []float32{0.1}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{embedding}, nil)
	store.On("VectorSearch", mock.Anything, embedding, 50).Return([]domain.RetrievalCandidate{
		vectorHit("doc-1", 0.9),
	}, nil)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{Text: answerJSON}, nil)

	p := newTestPipeline(t, store, encoder, llm, reranker)

	opts := leanOptions()
	opts.UseCaching = true

	first, err := p.Ask(context.Background(), "cached question", opts)
	require.NoError(t, err)
	second, err := p.Ask(context.Background(), "cached question", opts)
	require.NoError(t, err)

	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Answer, second.Answer)
	llm.AssertNumberOfCalls(t, "Generate", 1)
	encoder.AssertNumberOfCalls(t, "Encode", 1)
}

func TestPipeline_TracedAnswerIsNotServedToUntracedRequest(t *testing.T) {
	store := new(MockDocumentStore)
	encoder := new(MockVectorEncoder)
	llm := new(mockLLMClient)
	reranker := new(MockReranker)

	embedding := []float32{0.1}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{embedding}, nil)
	store.On("VectorSearch", mock.Anything, embedding, 50).Return([]domain.RetrievalCandidate{
		vectorHit("doc-1", 0.9),
	}, nil)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{Text: answerJSON}, nil)

	p := newTestPipeline(t, store, encoder, llm, reranker)

	traced := leanOptions()
	traced.UseCaching = true
	traced.UseTracing = true
	untraced := leanOptions()
	untraced.UseCaching = true

	first, err := p.Ask(context.Background(), "same question", traced)
	require.NoError(t, err)
	require.NotEmpty(t, first.TraceID)

	second, err := p.Ask(context.Background(), "same question", untraced)
	require.NoError(t, err)

	assert.False(t, second.CacheHit, "requests with different flag sets must not share an entry")
	assert.Empty(t, second.TraceID)
}

func TestPipeline_CacheHitStillRecordsConversationTurn(t *testing.T) {
	store := new(MockDocumentStore)
	encoder := new(MockVectorEncoder)
	llm := new(mockLLMClient)
	reranker := new(MockReranker)

	embedding := []float32{0.1}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{embedding}, nil)
	store.On("VectorSearch", mock.Anything, embedding, 50).Return([]domain.RetrievalCandidate{
		vectorHit("doc-1", 0.9),
	}, nil)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{Text: answerJSON}, nil)

	p := newTestPipeline(t, store, encoder, llm, reranker)

	opts := leanOptions()
	opts.UseCaching = true
	opts.UseConversationMemory = true
	opts.ConversationID = "conv-cached"

	_, err := p.Ask(context.Background(), "cached question", opts)
	require.NoError(t, err)
	second, err := p.Ask(context.Background(), "cached question", opts)
	require.NoError(t, err)

	require.True(t, second.CacheHit)
	assert.Len(t, p.Memory().History("conv-cached"), 2,
		"a cached answer is still a turn the session must remember")
}

func TestPipeline_HyDEFailureDegradesGracefully(t *testing.T) {
	store := new(MockDocumentStore)
	encoder := new(MockVectorEncoder)
	llm := new(mockLLMClient)
	reranker := new(MockReranker)

	embedding := []float32{0.1}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{embedding}, nil)
	store.On("VectorSearch", mock.Anything, embedding, 50).Return([]domain.RetrievalCandidate{
		vectorHit("doc-1", 0.9),
	}, nil)
	llm.On("Generate", mock.Anything, promptContains("news-style paragraph"), mock.Anything).
		Return(nil, errors.New("model unavailable"))
	llm.On("Generate", mock.Anything, promptContains("Articles:"), mock.Anything).
		Return(&domain.LLMResponse{Text: answerJSON}, nil)

	p := newTestPipeline(t, store, encoder, llm, reranker)

	opts := leanOptions()
	opts.UseHyDE = true

	resp, err := p.Ask(context.Background(), "query", opts)
	require.NoError(t, err, "a failed expansion must not fail the request")

	assert.NotEmpty(t, resp.Answer)
	require.Len(t, resp.Degradations, 1)
	assert.Equal(t, usecase.DegradeHyDE, resp.Degradations[0].Stage)
}

func TestPipeline_OutOfScopeSkipsRetrieval(t *testing.T) {
	store := new(MockDocumentStore)
	encoder := new(MockVectorEncoder)
	llm := new(mockLLMClient)
	reranker := new(MockReranker)

	p := newTestPipeline(t, store, encoder, llm, reranker)

	opts := leanOptions()
	opts.UseRouting = true

	resp, err := p.Ask(context.Background(), "hello, how are you?", opts)
	require.NoError(t, err)

	assert.Equal(t, string(usecase.StrategyOutOfScope), resp.Metadata.Strategy)
	assert.NotEmpty(t, resp.Answer)
	assert.Empty(t, resp.Sources)
	store.AssertNotCalled(t, "VectorSearch")
	llm.AssertNotCalled(t, "Generate")
}

func TestPipeline_EmptyStoreIsReportedAsSuch(t *testing.T) {
	store := new(MockDocumentStore)
	encoder := new(MockVectorEncoder)
	llm := new(mockLLMClient)
	reranker := new(MockReranker)

	embedding := []float32{0.1}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{embedding}, nil)
	store.On("VectorSearch", mock.Anything, embedding, 50).Return([]domain.RetrievalCandidate{}, nil)
	store.On("Stats", mock.Anything).Return(&domain.StoreStats{TotalDocuments: 0}, nil)

	p := newTestPipeline(t, store, encoder, llm, reranker)

	_, err := p.Ask(context.Background(), "query", leanOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreEmpty)
}

func TestPipeline_ConversationMemoryRecordsTurn(t *testing.T) {
	store := new(MockDocumentStore)
	encoder := new(MockVectorEncoder)
	llm := new(mockLLMClient)
	reranker := new(MockReranker)

	embedding := []float32{0.1}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{embedding}, nil)
	store.On("VectorSearch", mock.Anything, embedding, 50).Return([]domain.RetrievalCandidate{
		vectorHit("doc-1", 0.9),
	}, nil)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{Text: answerJSON}, nil)

	p := newTestPipeline(t, store, encoder, llm, reranker)

	opts := leanOptions()
	opts.UseConversationMemory = true
	opts.ConversationID = "conv-42"

	_, err := p.Ask(context.Background(), "first question", opts)
	require.NoError(t, err)

	turns := p.Memory().History("conv-42")
	require.Len(t, turns, 1)
	assert.Equal(t, "first question", turns[0].Query)
	assert.Equal(t, []string{"doc-1"}, turns[0].SourceIDs)
}

func TestPipeline_BatchKeepsInputOrderAndIsolatesFailures(t *testing.T) {
	store := new(MockDocumentStore)
	encoder := new(MockVectorEncoder)
	llm := new(mockLLMClient)
	reranker := new(MockReranker)

	embedding := []float32{0.1}
	// The failing query is registered first so the specific matcher wins.
	encoder.On("Encode", mock.Anything, []string{"broken query"}).Return(nil, errors.New("encoder down"))
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{embedding}, nil)
	store.On("VectorSearch", mock.Anything, embedding, 50).Return([]domain.RetrievalCandidate{
		vectorHit("doc-1", 0.9),
	}, nil)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{Text: answerJSON}, nil)

	p := newTestPipeline(t, store, encoder, llm, reranker)

	result, err := p.AskBatch(context.Background(), usecase.BatchRequest{
		Queries:     []string{"first query", "second query", "broken query", "fourth query"},
		Parallelism: 2,
		Options:     leanOptions(),
	})
	require.NoError(t, err)

	require.Len(t, result.Items, 4)
	assert.Equal(t, "first query", result.Items[0].Query)
	assert.Equal(t, "second query", result.Items[1].Query)
	assert.Equal(t, "broken query", result.Items[2].Query)
	assert.Equal(t, "fourth query", result.Items[3].Query)

	assert.NotNil(t, result.Items[0].Response)
	assert.NotEmpty(t, result.Items[2].Error)
	assert.Nil(t, result.Items[2].Response)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
}

func TestPipeline_BatchRejectsOversizedInput(t *testing.T) {
	p := newTestPipeline(t, new(MockDocumentStore), new(MockVectorEncoder), new(mockLLMClient), new(MockReranker))

	queries := make([]string, 11)
	for i := range queries {
		queries[i] = "q"
	}
	_, err := p.AskBatch(context.Background(), usecase.BatchRequest{Queries: queries})
	assert.Error(t, err)

	_, err = p.AskBatch(context.Background(), usecase.BatchRequest{})
	assert.Error(t, err)
}

func TestPipeline_EvaluateBatchScoresScenarios(t *testing.T) {
	store := new(MockDocumentStore)
	encoder := new(MockVectorEncoder)
	llm := new(mockLLMClient)
	reranker := new(MockReranker)

	embedding := []float32{0.1}
	encoder.On("Encode", mock.Anything, mock.Anything).Return([][]float32{embedding}, nil)
	store.On("VectorSearch", mock.Anything, embedding, 50).Return([]domain.RetrievalCandidate{
		vectorHit("doc-1", 0.9),
	}, nil)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{Text: answerJSON}, nil)

	p := newTestPipeline(t, store, encoder, llm, reranker)

	report, err := p.EvaluateBatch(context.Background(), usecase.EvalRequest{
		Scenarios: []usecase.EvalScenario{
			{Name: "finds the right document", Query: "export rules", ExpectedDocIDs: []string{"doc-1"}, Difficulty: "easy", Tags: []string{"retrieval"}},
			{Name: "expects a document never retrieved", Query: "export rules again", ExpectedDocIDs: []string{"doc-404"}, Difficulty: "hard", Tags: []string{"retrieval"}},
		},
		PassThreshold: 0.5,
		Options:       leanOptions(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.InDelta(t, 0.5, report.PassRate, 1e-9)
	require.Len(t, report.Cases, 2)
	assert.True(t, report.Cases[0].Passed)
	assert.InDelta(t, 1.0, report.Cases[0].DocOverlap, 1e-9)
	assert.False(t, report.Cases[1].Passed)
	assert.InDelta(t, 1.0, report.PassRateByDifficulty["easy"], 1e-9)
	assert.InDelta(t, 0.0, report.PassRateByDifficulty["hard"], 1e-9)
	assert.InDelta(t, 0.5, report.PassRateByTag["retrieval"], 1e-9)
}

func TestPipeline_EvaluateBatchRejectsCriterionlessScenario(t *testing.T) {
	p := newTestPipeline(t, new(MockDocumentStore), new(MockVectorEncoder), new(mockLLMClient), new(MockReranker))

	_, err := p.EvaluateBatch(context.Background(), usecase.EvalRequest{
		Scenarios: []usecase.EvalScenario{
			{Name: "states nothing to check", Query: "export rules"},
		},
		Options: leanOptions(),
	})
	require.Error(t, err, "a scenario with no criterion can only pass vacuously")
	assert.Contains(t, err.Error(), "no pass criterion")
}
