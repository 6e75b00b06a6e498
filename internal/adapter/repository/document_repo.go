package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"news-rag/internal/domain"
)

type documentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository creates a DocumentStore backed by PostgreSQL
// with pgvector for the vector leg and tsvector full-text search for
// the lexical leg.
func NewDocumentRepository(pool *pgxpool.Pool) domain.DocumentStore {
	return &documentRepository{pool: pool}
}

// VectorSearch returns the nearest documents by cosine similarity,
// highest first. The reported score is 1 - cosine distance.
func (r *documentRepository) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]domain.RetrievalCandidate, error) {
	query := `
		SELECT id, title, content, source, url, published_at, vote_score,
		       1 - (embedding <=> $1) AS similarity
		FROM news_documents
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanCandidates(rows, domain.MethodVector)
}

// KeywordSearch returns documents matching the query by full-text rank,
// highest first.
func (r *documentRepository) KeywordSearch(ctx context.Context, query string, limit int) ([]domain.RetrievalCandidate, error) {
	sql := `
		SELECT id, title, content, source, url, published_at, vote_score,
		       ts_rank(search_vector, websearch_to_tsquery('english', $1)) AS rank
		FROM news_documents
		WHERE search_vector @@ websearch_to_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, sql, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows, domain.MethodLexical)
}

// GetByID fetches one document. A missing id returns (nil, nil).
func (r *documentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	query := `
		SELECT id, title, content, source, url, published_at, vote_score
		FROM news_documents
		WHERE id = $1
	`
	var doc domain.Document
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&doc.ID, &doc.Title, &doc.Content, &doc.Source, &doc.URL,
		&doc.PublishedAt, &doc.VoteScore,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// Stats reports corpus-level counts for readiness and empty-store
// detection.
func (r *documentRepository) Stats(ctx context.Context) (*domain.StoreStats, error) {
	var stats domain.StoreStats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM news_documents`).Scan(&stats.TotalDocuments)
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %v", domain.ErrStoreUnavailable, err)
	}
	return &stats, nil
}

func scanCandidates(rows pgx.Rows, method domain.RetrievalMethod) ([]domain.RetrievalCandidate, error) {
	var candidates []domain.RetrievalCandidate
	for rows.Next() {
		var c domain.RetrievalCandidate
		if err := rows.Scan(
			&c.Document.ID, &c.Document.Title, &c.Document.Content,
			&c.Document.Source, &c.Document.URL, &c.Document.PublishedAt,
			&c.Document.VoteScore, &c.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		c.Method = method
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return candidates, nil
}
