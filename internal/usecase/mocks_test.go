package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"news-rag/internal/domain"

	"github.com/stretchr/testify/mock"
)

// MockDocumentStore
type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]domain.RetrievalCandidate, error) {
	args := m.Called(ctx, embedding, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievalCandidate), args.Error(1)
}

func (m *MockDocumentStore) KeywordSearch(ctx context.Context, query string, limit int) ([]domain.RetrievalCandidate, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RetrievalCandidate), args.Error(1)
}

func (m *MockDocumentStore) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentStore) Stats(ctx context.Context) (*domain.StoreStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StoreStats), args.Error(1)
}

// MockVectorEncoder
type MockVectorEncoder struct {
	mock.Mock
}

func (m *MockVectorEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockVectorEncoder) Version() string {
	return "mock-encoder-v1"
}

// mockLLMClient
type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) Generate(ctx context.Context, prompt string, maxTokens int) (*domain.LLMResponse, error) {
	args := m.Called(ctx, prompt, maxTokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LLMResponse), args.Error(1)
}

func (m *mockLLMClient) Version() string {
	return "mock-llm-v1"
}

// MockReranker
type MockReranker struct {
	mock.Mock
}

func (m *MockReranker) Rerank(ctx context.Context, query string, candidates []domain.RerankCandidate) ([]domain.RerankResult, error) {
	args := m.Called(ctx, query, candidates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RerankResult), args.Error(1)
}

func (m *MockReranker) ModelName() string {
	return "mock-reranker-v1"
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func promptContains(substr string) interface{} {
	return mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, substr)
	})
}

func doc(id, title, content string) domain.Document {
	return domain.Document{ID: id, Title: title, Content: content, Source: "test-wire"}
}
