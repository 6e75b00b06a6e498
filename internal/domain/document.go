package domain

import (
	"time"
)

// Document represents an indexed news article as the pipeline sees it.
// Documents are created at ingestion time and are read-only here; the
// embedding stays inside the store and is never carried on copies.
type Document struct {
	ID          string
	Title       string
	Content     string
	Source      string
	URL         string
	PublishedAt *time.Time
	VoteScore   int
}

// RetrievalMethod identifies which index produced a candidate.
type RetrievalMethod string

const (
	MethodVector  RetrievalMethod = "vector"
	MethodLexical RetrievalMethod = "lexical"
	MethodBoth    RetrievalMethod = "both"
)

// RetrievalCandidate pairs a document with its per-query score.
// Candidates live for the duration of one request only.
type RetrievalCandidate struct {
	Document Document
	Score    float64
	Method   RetrievalMethod
}
