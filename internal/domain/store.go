package domain

import "context"

// StoreStats reports corpus-level counters from the document store.
type StoreStats struct {
	TotalDocuments int
}

// DocumentStore is the uniform read interface over the vector index and
// the lexical index. All cross-references in the pipeline are resolved
// by document id through this interface.
type DocumentStore interface {
	// VectorSearch returns the nearest documents to the query embedding,
	// scored by cosine similarity in [0,1].
	VectorSearch(ctx context.Context, embedding []float32, limit int) ([]RetrievalCandidate, error)

	// KeywordSearch returns documents matching the query text, scored by
	// lexical rank. Scores are method-specific and not comparable to
	// vector scores.
	KeywordSearch(ctx context.Context, query string, limit int) ([]RetrievalCandidate, error)

	// GetByID resolves a single document. Returns nil, nil if not found.
	GetByID(ctx context.Context, id string) (*Document, error)

	// Stats reports corpus size.
	Stats(ctx context.Context) (*StoreStats, error)
}
