package domain

import "errors"

// Fatal pipeline error kinds. Each maps to a distinct caller-visible
// failure; non-fatal degradations are values, not errors (see
// usecase.Degradation).
var (
	// ErrStoreUnavailable means the vector store is down. Not retried
	// internally; retry belongs to the caller.
	ErrStoreUnavailable = errors.New("document store unavailable")

	// ErrStoreEmpty means the store holds zero documents.
	ErrStoreEmpty = errors.New("document store is empty")

	// ErrUpstreamRateLimited means the embedding or generation provider
	// rejected a call.
	ErrUpstreamRateLimited = errors.New("upstream provider rate limited")

	// ErrTimeout means a stage exceeded its deadline; in-flight sub-calls
	// are cancelled.
	ErrTimeout = errors.New("request deadline exceeded")

	// ErrSynthesisFailed means the generation service could not produce
	// an answer.
	ErrSynthesisFailed = errors.New("answer synthesis failed")
)
