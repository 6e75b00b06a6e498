package usecase_test

import (
	"fmt"
	"testing"
	"time"

	"news-rag/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracer_RecentReturnsNewestFirst(t *testing.T) {
	tracer := usecase.NewTracer(4)

	for i := 1; i <= 3; i++ {
		trace := tracer.Start(fmt.Sprintf("query %d", i))
		tracer.Finish(trace)
	}

	recent := tracer.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "query 3", recent[0].Query)
	assert.Equal(t, "query 2", recent[1].Query)
}

func TestTracer_RingOverwritesOldest(t *testing.T) {
	tracer := usecase.NewTracer(2)

	for i := 1; i <= 3; i++ {
		tracer.Finish(tracer.Start(fmt.Sprintf("query %d", i)))
	}

	recent := tracer.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "query 3", recent[0].Query)
	assert.Equal(t, "query 2", recent[1].Query)
}

func TestQueryTrace_NilIsSafe(t *testing.T) {
	var trace *usecase.QueryTrace

	// Every method must be a no-op on a nil trace.
	trace.Span("retrieval", time.Now())
	trace.Skip("reranking", "disabled")
	trace.Degrade("compression", "fallback")
}

func TestQueryTrace_StatusReflectsOutcome(t *testing.T) {
	tracer := usecase.NewTracer(4)

	good := tracer.Start("good query")
	good.Complete(3, 0.8)
	tracer.Finish(good)

	bad := tracer.Start("bad query")
	bad.Fail("store unavailable")
	tracer.Finish(bad)

	recent := tracer.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "failed", recent[0].Status)
	assert.Equal(t, "store unavailable", recent[0].Error)
	assert.Equal(t, "completed", recent[1].Status)
	assert.Equal(t, 3, recent[1].Metrics.DocumentsUsed)
	assert.InDelta(t, 0.8, recent[1].Metrics.Confidence, 1e-9)
}

func TestTracer_AggregateSummarizesStages(t *testing.T) {
	tracer := usecase.NewTracer(8)

	for i := 0; i < 3; i++ {
		trace := tracer.Start("query")
		trace.Span("retrieval", time.Now().Add(-10*time.Millisecond))
		trace.Span("synthesis", time.Now().Add(-20*time.Millisecond))
		if i == 0 {
			trace.Degrade("retrieval", "lexical fallback")
		}
		tracer.Finish(trace)
	}

	stats := tracer.Aggregate(10)
	require.Len(t, stats, 2)

	byStage := map[string]usecase.StageStats{}
	for _, s := range stats {
		byStage[s.Stage] = s
	}
	assert.Equal(t, 3, byStage["retrieval"].Count)
	assert.Equal(t, 1, byStage["retrieval"].DegradedCount)
	assert.Greater(t, byStage["synthesis"].AvgDuration, time.Duration(0))
}

func TestTracer_SkippedSpansExcludedFromAggregate(t *testing.T) {
	tracer := usecase.NewTracer(4)

	trace := tracer.Start("query")
	trace.Skip("reranking", "disabled")
	trace.Span("retrieval", time.Now())
	tracer.Finish(trace)

	stats := tracer.Aggregate(10)
	require.Len(t, stats, 1)
	assert.Equal(t, "retrieval", stats[0].Stage)
}
