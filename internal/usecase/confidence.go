package usecase

import (
	"sort"
)

// ConfidenceInput gathers the retrieval signals scoring depends on.
type ConfidenceInput struct {
	// Similarities are the raw vector similarities of the final sources;
	// lexical-only sources contribute zero.
	Similarities []float64
	DocumentsUsed int
	Limit         int
	// Rounds is the total Self-RAG retrieval round count (1 when off).
	Rounds       int
	Insufficient bool
}

// ScoreConfidence computes a deterministic confidence in [0,1] from the
// retrieval signals alone. No model call is involved, so the same
// inputs always score the same; an insufficient answer is pinned to a
// low band regardless of similarity.
//
// The score blends four signals: mean similarity of the top three
// sources (45%), how much of the requested limit was filled (25%), how
// tightly the top scores cluster (15%), and a penalty per extra
// Self-RAG round the critic forced (15%).
func ScoreConfidence(in ConfidenceInput) float64 {
	if in.DocumentsUsed == 0 || len(in.Similarities) == 0 {
		return 0
	}

	sims := append([]float64(nil), in.Similarities...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sims)))

	top := sims
	if len(top) > 3 {
		top = top[:3]
	}
	var sum float64
	for _, s := range top {
		sum += clamp01(s)
	}
	avgTop := sum / float64(len(top))

	coverage := 1.0
	if in.Limit > 0 {
		coverage = clamp01(float64(in.DocumentsUsed) / float64(in.Limit))
	}

	// A lone outlier score is weaker evidence than a tight cluster.
	spread := 1 - (clamp01(sims[0]) - avgTop)

	criticFactor := 1 - 0.5*float64(in.Rounds-1)
	if criticFactor < 0 {
		criticFactor = 0
	}

	score := 0.45*avgTop + 0.25*coverage + 0.15*clamp01(spread) + 0.15*criticFactor
	if in.Insufficient && score > 0.3 {
		score = 0.3
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
