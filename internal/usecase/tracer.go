package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// StageSpan records one pipeline stage's timing and outcome.
type StageSpan struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped,omitempty"`
	Degraded bool          `json:"degraded,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

// TraceMetrics summarizes the run outcome attached to a trace.
type TraceMetrics struct {
	DocumentsUsed int     `json:"documentsUsed"`
	Confidence    float64 `json:"confidence,omitempty"`
}

// QueryTrace is the per-request stage record. A nil trace is valid and
// every method on it is a no-op, so call sites never branch on whether
// tracing is enabled.
type QueryTrace struct {
	ID        string        `json:"id"`
	Query     string        `json:"query"`
	Status    string        `json:"status,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Total     time.Duration `json:"total"`
	Spans     []StageSpan   `json:"spans"`
	Metrics   TraceMetrics  `json:"metrics"`
}

// Complete marks the trace as successful and records outcome metrics.
func (t *QueryTrace) Complete(documentsUsed int, confidence float64) {
	if t == nil {
		return
	}
	t.Status = "completed"
	t.Metrics = TraceMetrics{DocumentsUsed: documentsUsed, Confidence: confidence}
}

// Fail marks the trace as failed with the terminal error.
func (t *QueryTrace) Fail(reason string) {
	if t == nil {
		return
	}
	t.Status = "failed"
	t.Error = reason
}

// Span records a completed stage measured from start.
func (t *QueryTrace) Span(stage string, start time.Time) {
	if t == nil {
		return
	}
	t.Spans = append(t.Spans, StageSpan{Stage: stage, Duration: time.Since(start)})
}

// Skip records a stage that did not run.
func (t *QueryTrace) Skip(stage, detail string) {
	if t == nil {
		return
	}
	t.Spans = append(t.Spans, StageSpan{Stage: stage, Skipped: true, Detail: detail})
}

// Degrade marks the most recent span for the stage as degraded.
func (t *QueryTrace) Degrade(stage, detail string) {
	if t == nil {
		return
	}
	for i := len(t.Spans) - 1; i >= 0; i-- {
		if t.Spans[i].Stage == stage {
			t.Spans[i].Degraded = true
			t.Spans[i].Detail = detail
			return
		}
	}
	t.Spans = append(t.Spans, StageSpan{Stage: stage, Degraded: true, Detail: detail})
}

// StageStats aggregates one stage across recent traces.
type StageStats struct {
	Stage         string        `json:"stage"`
	Count         int           `json:"count"`
	DegradedCount int           `json:"degradedCount"`
	AvgDuration   time.Duration `json:"avgDuration"`
	MaxDuration   time.Duration `json:"maxDuration"`
}

// Tracer keeps the most recent traces in a fixed-size ring buffer.
// Oldest traces are overwritten; nothing is persisted.
type Tracer struct {
	mu     sync.Mutex
	buf    []*QueryTrace
	next   int
	filled bool
}

func NewTracer(size int) *Tracer {
	return &Tracer{buf: make([]*QueryTrace, size)}
}

// Start opens a trace for a query.
func (tr *Tracer) Start(query string) *QueryTrace {
	if tr == nil {
		return nil
	}
	return &QueryTrace{
		ID:        uuid.NewString(),
		Query:     query,
		StartedAt: time.Now(),
	}
}

// Finish stamps the total and commits the trace to the ring.
func (tr *Tracer) Finish(t *QueryTrace) {
	if tr == nil || t == nil {
		return
	}
	t.Total = time.Since(t.StartedAt)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.buf[tr.next] = t
	tr.next = (tr.next + 1) % len(tr.buf)
	if tr.next == 0 {
		tr.filled = true
	}
}

// Recent returns up to n traces, newest first.
func (tr *Tracer) Recent(n int) []*QueryTrace {
	if tr == nil {
		return nil
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()

	size := tr.next
	if tr.filled {
		size = len(tr.buf)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]*QueryTrace, 0, n)
	for i := 1; i <= n; i++ {
		idx := (tr.next - i + len(tr.buf)) % len(tr.buf)
		out = append(out, tr.buf[idx])
	}
	return out
}

// Aggregate summarizes stage timings over the most recent window
// traces.
func (tr *Tracer) Aggregate(window int) []StageStats {
	traces := tr.Recent(window)
	byStage := make(map[string]*StageStats)
	var order []string
	for _, t := range traces {
		for _, span := range t.Spans {
			if span.Skipped {
				continue
			}
			st, ok := byStage[span.Stage]
			if !ok {
				st = &StageStats{Stage: span.Stage}
				byStage[span.Stage] = st
				order = append(order, span.Stage)
			}
			st.Count++
			st.AvgDuration += span.Duration
			if span.Duration > st.MaxDuration {
				st.MaxDuration = span.Duration
			}
			if span.Degraded {
				st.DegradedCount++
			}
		}
	}
	out := make([]StageStats, 0, len(order))
	for _, stage := range order {
		st := byStage[stage]
		if st.Count > 0 {
			st.AvgDuration /= time.Duration(st.Count)
		}
		out = append(out, *st)
	}
	return out
}
