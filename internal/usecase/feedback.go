package usecase

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	feedbackWindow      = 100
	minFeedbackForAlert = 30
	warnHelpfulRate     = 0.65
	criticalHelpfulRate = 0.45
	variantAlertRate    = 0.5
	minVariantSamples   = 10
	variantWinMargin    = 0.05
	maxStoredFeedback   = 5000
	strategySpikeShare  = 0.6
	alertAckWindow      = time.Hour
	trendDays           = 7
	maxNegativeQueries  = 3
)

// FeedbackEntry is one user verdict on an answer.
type FeedbackEntry struct {
	ID         string    `json:"id,omitempty"`
	TraceID    string    `json:"traceId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	Query      string    `json:"query"`
	Answer     string    `json:"answer,omitempty"`
	Helpful    bool      `json:"helpful"`
	Comment    string    `json:"comment,omitempty"`
	Variant    string    `json:"variant,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	SourceIDs  []string  `json:"sourceIds,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DailyRate is one day of the helpful-rate trend.
type DailyRate struct {
	Date        string  `json:"date"`
	Total       int     `json:"total"`
	HelpfulRate float64 `json:"helpfulRate"`
}

// FeedbackAnalytics summarizes collected feedback.
type FeedbackAnalytics struct {
	Total              int                `json:"total"`
	HelpfulRate        float64            `json:"helpfulRate"`
	WindowRate         float64            `json:"windowRate"`
	WindowSize         int                `json:"windowSize"`
	VariantRates       map[string]float64 `json:"variantRates,omitempty"`
	StrategyRates      map[string]float64 `json:"strategyRates,omitempty"`
	DailyTrend         []DailyRate        `json:"dailyTrend,omitempty"`
	TopNegativeQueries []string           `json:"topNegativeQueries,omitempty"`
	TopComplaint       string             `json:"topComplaint,omitempty"`
}

// QualityAlert flags a sustained drop in answer quality. Kind is stable
// across recomputations so an acknowledged alert stays silenced.
type QualityAlert struct {
	Kind     string    `json:"kind"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	Rate     float64   `json:"rate"`
	RaisedAt time.Time `json:"raisedAt"`
}

// VariantVerdict is the outcome of an A/B comparison.
type VariantVerdict struct {
	Winner     string  `json:"winner,omitempty"`
	Conclusive bool    `json:"conclusive"`
	Delta      float64 `json:"delta"`
	Reason     string  `json:"reason"`
}

// TrainingExample is one exported feedback pair for offline tuning.
type TrainingExample struct {
	Query    string `json:"query"`
	Answer   string `json:"answer,omitempty"`
	Helpful  bool   `json:"helpful"`
	Strategy string `json:"strategy,omitempty"`
}

// FeedbackCollector accumulates in-memory feedback and derives
// analytics, quality alerts, and A/B verdicts from it. Alerts fire only
// after a minimum sample size, so a single bad morning cannot page
// anyone. Storage is a bounded slice; oldest entries roll off.
type FeedbackCollector struct {
	mu      sync.RWMutex
	entries []FeedbackEntry
	acked   map[string]time.Time
	nextID  int
	logger  *slog.Logger
}

func NewFeedbackCollector(logger *slog.Logger) *FeedbackCollector {
	return &FeedbackCollector{
		acked:  make(map[string]time.Time),
		logger: logger,
	}
}

// Record stores one feedback entry and assigns it an id.
func (f *FeedbackCollector) Record(entry FeedbackEntry) error {
	if strings.TrimSpace(entry.Query) == "" {
		return fmt.Errorf("feedback query must not be empty")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	f.mu.Lock()
	f.nextID++
	entry.ID = fmt.Sprintf("fb-%d-%d", f.nextID, entry.CreatedAt.Unix())
	f.entries = append(f.entries, entry)
	if len(f.entries) > maxStoredFeedback {
		f.entries = f.entries[len(f.entries)-maxStoredFeedback:]
	}
	total := len(f.entries)
	f.mu.Unlock()

	f.logger.Info("feedback_recorded",
		slog.String("feedback_id", entry.ID),
		slog.Bool("helpful", entry.Helpful),
		slog.String("variant", entry.Variant),
		slog.Int("total_feedback", total))
	return nil
}

// Analytics computes rates over all stored feedback plus the recent
// window and a per-day trend.
func (f *FeedbackCollector) Analytics() FeedbackAnalytics {
	f.mu.RLock()
	defer f.mu.RUnlock()

	a := FeedbackAnalytics{Total: len(f.entries)}
	if a.Total == 0 {
		return a
	}

	helpful := 0
	variantHelpful := map[string]int{}
	variantTotal := map[string]int{}
	strategyHelpful := map[string]int{}
	strategyTotal := map[string]int{}
	complaints := map[string]int{}
	negativeQueries := map[string]int{}
	for _, e := range f.entries {
		if e.Helpful {
			helpful++
		}
		if e.Variant != "" {
			variantTotal[e.Variant]++
			if e.Helpful {
				variantHelpful[e.Variant]++
			}
		}
		if e.Strategy != "" {
			strategyTotal[e.Strategy]++
			if e.Helpful {
				strategyHelpful[e.Strategy]++
			}
		}
		if !e.Helpful {
			negativeQueries[strings.ToLower(strings.TrimSpace(e.Query))]++
			if e.Comment != "" {
				complaints[strings.ToLower(strings.TrimSpace(e.Comment))]++
			}
		}
	}
	a.HelpfulRate = float64(helpful) / float64(a.Total)

	window := f.recentWindow()
	a.WindowSize = len(window)
	windowHelpful := 0
	for _, e := range window {
		if e.Helpful {
			windowHelpful++
		}
	}
	a.WindowRate = float64(windowHelpful) / float64(len(window))

	if len(variantTotal) > 0 {
		a.VariantRates = make(map[string]float64, len(variantTotal))
		for v, total := range variantTotal {
			a.VariantRates[v] = float64(variantHelpful[v]) / float64(total)
		}
	}
	if len(strategyTotal) > 0 {
		a.StrategyRates = make(map[string]float64, len(strategyTotal))
		for s, total := range strategyTotal {
			a.StrategyRates[s] = float64(strategyHelpful[s]) / float64(total)
		}
	}

	a.DailyTrend = dailyTrend(f.entries)
	a.TopNegativeQueries = topKeys(negativeQueries, maxNegativeQueries)
	if top := topKeys(complaints, 1); len(top) > 0 {
		a.TopComplaint = top[0]
	}
	return a
}

// Alerts derives active quality alerts from the recent window. No
// alerts fire below the minimum sample size; acknowledged kinds stay
// silent for an hour.
func (f *FeedbackCollector) Alerts() []QualityAlert {
	a := f.Analytics()
	if a.WindowSize < minFeedbackForAlert {
		return nil
	}

	now := time.Now()
	var alerts []QualityAlert
	switch {
	case a.WindowRate < criticalHelpfulRate:
		alerts = append(alerts, QualityAlert{
			Kind:     "satisfaction_drop",
			Severity: "critical",
			Message:  fmt.Sprintf("helpful rate %.2f over last %d responses is below %.2f", a.WindowRate, a.WindowSize, criticalHelpfulRate),
			Rate:     a.WindowRate,
			RaisedAt: now,
		})
	case a.WindowRate < warnHelpfulRate:
		alerts = append(alerts, QualityAlert{
			Kind:     "satisfaction_drop",
			Severity: "warning",
			Message:  fmt.Sprintf("helpful rate %.2f over last %d responses is below %.2f", a.WindowRate, a.WindowSize, warnHelpfulRate),
			Rate:     a.WindowRate,
			RaisedAt: now,
		})
	}

	for variant, rate := range a.VariantRates {
		if rate < variantAlertRate {
			alerts = append(alerts, QualityAlert{
				Kind:     "variant_drop:" + variant,
				Severity: "warning",
				Message:  fmt.Sprintf("variant %q helpful rate %.2f is below %.2f", variant, rate, variantAlertRate),
				Rate:     rate,
				RaisedAt: now,
			})
		}
	}

	if strategy, share := f.dominantNegativeStrategy(); share > strategySpikeShare {
		alerts = append(alerts, QualityAlert{
			Kind:     "strategy_spike:" + strategy,
			Severity: "warning",
			Message:  fmt.Sprintf("strategy %q accounts for %.0f%% of recent negative feedback", strategy, share*100),
			Rate:     share,
			RaisedAt: now,
		})
	}

	return f.withoutAcked(alerts, now)
}

// Acknowledge silences an alert kind for the acknowledgment window.
func (f *FeedbackCollector) Acknowledge(kind string) error {
	if strings.TrimSpace(kind) == "" {
		return fmt.Errorf("alert kind must not be empty")
	}
	f.mu.Lock()
	f.acked[kind] = time.Now()
	f.mu.Unlock()
	f.logger.Info("alert_acknowledged", slog.String("kind", kind))
	return nil
}

// CompareVariants judges an A/B pair. The verdict is conclusive only
// when both variants have enough samples and the rate gap clears the
// margin.
func (f *FeedbackCollector) CompareVariants(a, b string) VariantVerdict {
	f.mu.RLock()
	defer f.mu.RUnlock()

	counts := map[string]int{}
	helpful := map[string]int{}
	for _, e := range f.entries {
		if e.Variant == a || e.Variant == b {
			counts[e.Variant]++
			if e.Helpful {
				helpful[e.Variant]++
			}
		}
	}

	if counts[a] < minVariantSamples || counts[b] < minVariantSamples {
		return VariantVerdict{
			Conclusive: false,
			Reason:     fmt.Sprintf("need at least %d samples per variant (%s=%d, %s=%d)", minVariantSamples, a, counts[a], b, counts[b]),
		}
	}

	rateA := float64(helpful[a]) / float64(counts[a])
	rateB := float64(helpful[b]) / float64(counts[b])
	delta := rateA - rateB

	verdict := VariantVerdict{Delta: delta}
	if delta > variantWinMargin {
		verdict.Winner = a
		verdict.Conclusive = true
		verdict.Reason = fmt.Sprintf("%s leads by %.3f", a, delta)
	} else if -delta > variantWinMargin {
		verdict.Winner = b
		verdict.Conclusive = true
		verdict.Reason = fmt.Sprintf("%s leads by %.3f", b, -delta)
	} else {
		verdict.Reason = fmt.Sprintf("rate gap %.3f within noise margin %.2f", delta, variantWinMargin)
	}
	return verdict
}

// Export projects stored feedback into training examples, newest last.
// Negative verdicts are included only on request; limit <= 0 means all.
func (f *FeedbackCollector) Export(includeNegatives bool, limit int) []TrainingExample {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]TrainingExample, 0, len(f.entries))
	for _, e := range f.entries {
		if !e.Helpful && !includeNegatives {
			continue
		}
		out = append(out, TrainingExample{
			Query:    e.Query,
			Answer:   e.Answer,
			Helpful:  e.Helpful,
			Strategy: e.Strategy,
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// recentWindow must be called with at least a read lock held.
func (f *FeedbackCollector) recentWindow() []FeedbackEntry {
	window := f.entries
	if len(window) > feedbackWindow {
		window = window[len(window)-feedbackWindow:]
	}
	return window
}

// dominantNegativeStrategy reports the strategy carrying the largest
// share of negative feedback in the recent window.
func (f *FeedbackCollector) dominantNegativeStrategy() (string, float64) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	negatives := 0
	byStrategy := map[string]int{}
	for _, e := range f.recentWindow() {
		if e.Helpful {
			continue
		}
		negatives++
		if e.Strategy != "" {
			byStrategy[e.Strategy]++
		}
	}
	if negatives == 0 {
		return "", 0
	}
	best, bestCount := "", 0
	for s, count := range byStrategy {
		if count > bestCount {
			best, bestCount = s, count
		}
	}
	if best == "" {
		return "", 0
	}
	return best, float64(bestCount) / float64(negatives)
}

func (f *FeedbackCollector) withoutAcked(alerts []QualityAlert, now time.Time) []QualityAlert {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := alerts[:0]
	for _, alert := range alerts {
		if at, ok := f.acked[alert.Kind]; ok && now.Sub(at) < alertAckWindow {
			continue
		}
		out = append(out, alert)
	}
	return out
}

func dailyTrend(entries []FeedbackEntry) []DailyRate {
	cutoff := time.Now().AddDate(0, 0, -trendDays)
	totals := map[string]int{}
	helpful := map[string]int{}
	for _, e := range entries {
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		day := e.CreatedAt.Format("2006-01-02")
		totals[day]++
		if e.Helpful {
			helpful[day]++
		}
	}
	if len(totals) == 0 {
		return nil
	}

	days := make([]string, 0, len(totals))
	for day := range totals {
		days = append(days, day)
	}
	sort.Strings(days)

	trend := make([]DailyRate, 0, len(days))
	for _, day := range days {
		trend = append(trend, DailyRate{
			Date:        day,
			Total:       totals[day],
			HelpfulRate: float64(helpful[day]) / float64(totals[day]),
		})
	}
	return trend
}

func topKeys(counts map[string]int, n int) []string {
	type kv struct {
		key   string
		count int
	}
	ranked := make([]kv, 0, len(counts))
	for k, c := range counts {
		ranked = append(ranked, kv{k, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].key < ranked[j].key
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.key
	}
	return out
}
