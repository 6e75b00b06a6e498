package usecase

import (
	"strings"
)

// Strategy classifies how a query should be handled downstream.
type Strategy string

const (
	StrategyFactual    Strategy = "factual"
	StrategyComparison Strategy = "comparison"
	StrategySummary    Strategy = "summary"
	StrategyOutOfScope Strategy = "out_of_scope"
)

// RoutingDecision selects downstream feature flags for a query.
type RoutingDecision struct {
	Strategy   Strategy
	IsFollowUp bool
	// SuggestedFlags are applied on top of the caller's options.
	SuggestedFlags map[string]bool
}

// QueryRouter classifies a query into a handling strategy. Routing is a
// pure function of the query text plus, optionally, prior turns; it has
// no side effects and never fails the request. Anything it cannot
// classify is treated as an open factual query.
type QueryRouter struct{}

func NewQueryRouter() *QueryRouter {
	return &QueryRouter{}
}

var comparisonMarkers = []string{" vs ", " vs. ", "compare", "difference between", "better than", "versus"}

var summaryMarkers = []string{"summarize", "summary of", "overview", "recap", "what happened", "roundup", "this week in", "highlights"}

var smalltalkMarkers = []string{"hello", "hi there", "how are you", "thank you", "thanks", "good morning", "who are you", "what can you do"}

var followUpPronouns = []string{"it", "that", "this", "they", "them", "those", "he", "she"}

// Route classifies the query. history carries prior session turns and
// may be nil.
func (r *QueryRouter) Route(query string, history []Turn) RoutingDecision {
	q := strings.ToLower(strings.TrimSpace(query))

	decision := RoutingDecision{
		Strategy:       StrategyFactual,
		SuggestedFlags: map[string]bool{},
	}
	if q == "" {
		return decision
	}

	switch {
	case containsAny(q, smalltalkMarkers) && len(strings.Fields(q)) <= 6:
		decision.Strategy = StrategyOutOfScope
	case containsAny(q, comparisonMarkers):
		decision.Strategy = StrategyComparison
		// Compound queries retrieve better when split.
		decision.SuggestedFlags["decompose"] = true
	case containsAny(q, summaryMarkers):
		decision.Strategy = StrategySummary
		decision.SuggestedFlags["compress"] = true
	}

	decision.IsFollowUp = r.isFollowUp(q, history)
	return decision
}

// isFollowUp detects short anaphoric queries that need prior turns to
// resolve ("what about that?", "why did it drop?").
func (r *QueryRouter) isFollowUp(q string, history []Turn) bool {
	if len(history) == 0 {
		return false
	}
	words := strings.Fields(q)
	if len(words) > 8 {
		return false
	}
	for _, w := range words {
		w = strings.Trim(w, "?.,!")
		for _, p := range followUpPronouns {
			if w == p {
				return true
			}
		}
	}
	return strings.HasPrefix(q, "what about") || strings.HasPrefix(q, "and ") || strings.HasPrefix(q, "why")
}

// ContextualizeFollowUp folds the previous query's terms into a
// follow-up so retrieval sees the full topic.
func ContextualizeFollowUp(query string, history []Turn) string {
	if len(history) == 0 {
		return query
	}
	prev := history[len(history)-1].Query
	if prev == "" {
		return query
	}
	return query + " (regarding: " + prev + ")"
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
