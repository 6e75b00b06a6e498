package usecase

import "time"

// Source describes one document backing an answer.
type Source struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Source    string  `json:"source"`
	URL       string  `json:"url,omitempty"`
	VoteScore int     `json:"voteScore,omitempty"`
	Score     float64 `json:"score,omitempty"`
}

// Citation maps a claim span in the answer to its supporting documents.
type Citation struct {
	Claim  string   `json:"claim"`
	DocIDs []string `json:"docIds"`
}

// DegradeStage identifies the optional stage that fell back.
type DegradeStage string

const (
	DegradeHyDE          DegradeStage = "hyde"
	DegradeDecomposition DegradeStage = "decomposition"
	DegradeReranking     DegradeStage = "reranking"
	DegradeCompression   DegradeStage = "compression"
	DegradeLexical       DegradeStage = "lexical-search"
	DegradeCritic        DegradeStage = "critic"
	DegradeSuggestions   DegradeStage = "suggestions"
)

// Degradation records a non-fatal fallback as an observable value
// rather than a swallowed exception. The request still succeeds.
type Degradation struct {
	Stage  DegradeStage `json:"stage"`
	Reason string       `json:"reason"`
}

// ResponseMetadata carries per-run diagnostics.
type ResponseMetadata struct {
	Strategy          string `json:"strategy,omitempty"`
	IsFollowUp        bool   `json:"isFollowUp,omitempty"`
	SearchMethod      string `json:"searchMethod,omitempty"`
	Reranked          bool   `json:"reranked,omitempty"`
	Compressed        bool   `json:"compressed,omitempty"`
	DocumentsSearched int    `json:"documentsSearched"`
	DocumentsUsed     int    `json:"documentsUsed"`
	SelfRAGRounds     int    `json:"selfRagRounds,omitempty"`
	ConversationID    string `json:"conversationId,omitempty"`
}

// RAGResponse is the full pipeline result returned to callers.
type RAGResponse struct {
	Answer             string           `json:"answer"`
	Insufficient       bool             `json:"insufficient,omitempty"`
	Sources            []Source         `json:"sources"`
	Citations          []Citation       `json:"citations,omitempty"`
	Confidence         *float64         `json:"confidence,omitempty"`
	SuggestedQuestions []string         `json:"suggestedQuestions,omitempty"`
	RelatedArticles    []Source         `json:"relatedArticles,omitempty"`
	Degradations       []Degradation    `json:"degradations,omitempty"`
	CacheHit           bool             `json:"cacheHit"`
	TraceID            string           `json:"traceId,omitempty"`
	Metadata           ResponseMetadata `json:"metadata"`
	ProcessingTime     time.Duration    `json:"processingTime"`
}

// clone returns a copy safe to hand to a caller after a cache hit;
// the cached value itself is never mutated.
func (r *RAGResponse) clone() *RAGResponse {
	cp := *r
	cp.Sources = append([]Source(nil), r.Sources...)
	cp.Citations = append([]Citation(nil), r.Citations...)
	cp.SuggestedQuestions = append([]string(nil), r.SuggestedQuestions...)
	cp.RelatedArticles = append([]Source(nil), r.RelatedArticles...)
	cp.Degradations = append([]Degradation(nil), r.Degradations...)
	return &cp
}
