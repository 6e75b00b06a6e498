package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	defaultEvalConcurrency = 3
	maxEvalScenarios       = 50
)

// EvalScenario is one golden question. A scenario may check which
// documents were retrieved, what the answer said, or both; every
// criterion it states must pass.
type EvalScenario struct {
	Name  string `json:"name"`
	Query string `json:"query"`
	// ExpectedDocIDs are document ids that should appear in the sources.
	ExpectedDocIDs []string `json:"expectedDocIds,omitempty"`
	// ExpectedAnswer is compared to the generated answer by token overlap.
	ExpectedAnswer string `json:"expectedAnswer,omitempty"`
	// Difficulty and Tags bucket the report's pass rates.
	Difficulty string   `json:"difficulty,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// EvalRequest runs a scenario suite against the live pipeline.
type EvalRequest struct {
	Scenarios []EvalScenario `json:"scenarios"`
	// PassThreshold is the minimum ratio each stated criterion must
	// reach; defaults to 0.5.
	PassThreshold float64    `json:"passThreshold,omitempty"`
	Concurrency   int        `json:"concurrency,omitempty"`
	Options       RAGOptions `json:"-"`
}

// EvalCase is one scenario's outcome.
type EvalCase struct {
	Name          string        `json:"name"`
	Passed        bool          `json:"passed"`
	DocOverlap    float64       `json:"docOverlap"`
	AnswerOverlap float64       `json:"answerOverlap"`
	Difficulty    string        `json:"difficulty,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	Error         string        `json:"error,omitempty"`
	Latency       time.Duration `json:"latency"`
}

// EvalReport summarizes a suite run.
type EvalReport struct {
	Cases                []EvalCase         `json:"cases"`
	Passed               int                `json:"passed"`
	Failed               int                `json:"failed"`
	PassRate             float64            `json:"passRate"`
	PassRateByDifficulty map[string]float64 `json:"passRateByDifficulty,omitempty"`
	PassRateByTag        map[string]float64 `json:"passRateByTag,omitempty"`
	P50Latency           time.Duration      `json:"p50Latency"`
	P95Latency           time.Duration      `json:"p95Latency"`
	Duration             time.Duration      `json:"duration"`
}

// EvaluateBatch runs every scenario with bounded concurrency and scores
// the results. A scenario whose query errors counts as failed; the
// suite itself only errors on invalid input.
func (p *Pipeline) EvaluateBatch(ctx context.Context, req EvalRequest) (*EvalReport, error) {
	if len(req.Scenarios) == 0 {
		return nil, fmt.Errorf("evaluation needs at least one scenario")
	}
	if len(req.Scenarios) > maxEvalScenarios {
		return nil, fmt.Errorf("evaluation exceeds %d scenarios, got %d", maxEvalScenarios, len(req.Scenarios))
	}
	for _, scenario := range req.Scenarios {
		if len(scenario.ExpectedDocIDs) == 0 && scenario.ExpectedAnswer == "" {
			return nil, fmt.Errorf("scenario %q states no pass criterion", scenario.Name)
		}
	}
	threshold := req.PassThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = defaultEvalConcurrency
	}

	started := time.Now()
	cases := make([]EvalCase, len(req.Scenarios))
	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup

	for i, scenario := range req.Scenarios {
		if err := sem.Acquire(ctx, 1); err != nil {
			cases[i] = EvalCase{Name: scenario.Name, Error: err.Error()}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			cases[i] = p.evaluateScenario(ctx, scenario, threshold, req.Options)
		}()
	}
	wg.Wait()

	report := &EvalReport{Cases: cases, Duration: time.Since(started)}
	latencies := make([]time.Duration, 0, len(cases))
	for _, c := range cases {
		if c.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		if c.Error == "" {
			latencies = append(latencies, c.Latency)
		}
	}
	report.PassRate = float64(report.Passed) / float64(len(cases))
	report.PassRateByDifficulty = bucketPassRates(cases, func(c EvalCase) []string {
		if c.Difficulty == "" {
			return nil
		}
		return []string{c.Difficulty}
	})
	report.PassRateByTag = bucketPassRates(cases, func(c EvalCase) []string { return c.Tags })
	report.P50Latency = percentile(latencies, 0.50)
	report.P95Latency = percentile(latencies, 0.95)

	p.logger.Info("evaluation_completed",
		slog.Int("scenario_count", len(cases)),
		slog.Int("passed", report.Passed),
		slog.Int("failed", report.Failed),
		slog.Int64("p95_latency_ms", report.P95Latency.Milliseconds()))

	return report, nil
}

func (p *Pipeline) evaluateScenario(ctx context.Context, scenario EvalScenario, threshold float64, opts RAGOptions) EvalCase {
	c := EvalCase{Name: scenario.Name, Difficulty: scenario.Difficulty, Tags: scenario.Tags}
	start := time.Now()
	resp, err := p.Ask(ctx, scenario.Query, opts)
	c.Latency = time.Since(start)
	if err != nil {
		c.Error = err.Error()
		return c
	}

	c.Passed = true
	if len(scenario.ExpectedDocIDs) > 0 {
		c.DocOverlap = docOverlap(scenario.ExpectedDocIDs, resp.Sources)
		if c.DocOverlap < threshold {
			c.Passed = false
		}
	}
	if scenario.ExpectedAnswer != "" {
		c.AnswerOverlap = jaccard(tokenSet(scenario.ExpectedAnswer), tokenSet(resp.Answer))
		if c.AnswerOverlap < threshold {
			c.Passed = false
		}
	}
	return c
}

// bucketPassRates groups cases by the keys buckets yields and computes
// a pass rate per key.
func bucketPassRates(cases []EvalCase, buckets func(EvalCase) []string) map[string]float64 {
	totals := map[string]int{}
	passed := map[string]int{}
	for _, c := range cases {
		for _, key := range buckets(c) {
			totals[key]++
			if c.Passed {
				passed[key]++
			}
		}
	}
	if len(totals) == 0 {
		return nil
	}
	rates := make(map[string]float64, len(totals))
	for key, total := range totals {
		rates[key] = float64(passed[key]) / float64(total)
	}
	return rates
}

// docOverlap is the fraction of expected ids present in the sources.
func docOverlap(expected []string, sources []Source) float64 {
	if len(expected) == 0 {
		return 0
	}
	got := make(map[string]bool, len(sources))
	for _, s := range sources {
		got[s.ID] = true
	}
	hit := 0
	for _, id := range expected {
		if got[id] {
			hit++
		}
	}
	return float64(hit) / float64(len(expected))
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func percentile(durations []time.Duration, q float64) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
