package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	maxBatchQueries     = 10
	maxBatchParallelism = 5
	defaultParallelism  = 3
)

// BatchRequest asks several independent queries in one call.
type BatchRequest struct {
	Queries []string `json:"queries"`
	// Parallelism bounds concurrent pipeline runs; clamped to [1,5],
	// default 3.
	Parallelism int        `json:"parallelism,omitempty"`
	Options     RAGOptions `json:"-"`
}

// BatchItem is one query's outcome, in input order.
type BatchItem struct {
	Query    string       `json:"query"`
	Response *RAGResponse `json:"response,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// BatchResult aggregates the batch run. Duration is wall-clock;
// TotalProcessingTime sums the per-query pipeline times, which exceeds
// Duration when queries overlap.
type BatchResult struct {
	Items               []BatchItem   `json:"items"`
	Total               int           `json:"total"`
	Succeeded           int           `json:"succeeded"`
	Failed              int           `json:"failed"`
	Duration            time.Duration `json:"duration"`
	TotalProcessingTime time.Duration `json:"totalProcessingTime"`
	AvgProcessingTime   time.Duration `json:"avgProcessingTime"`
}

// AskBatch runs up to ten queries with bounded parallelism. One query
// failing never aborts its siblings; results keep input order.
func (p *Pipeline) AskBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if len(req.Queries) == 0 {
		return nil, fmt.Errorf("batch must contain at least one query")
	}
	if len(req.Queries) > maxBatchQueries {
		return nil, fmt.Errorf("batch exceeds %d queries, got %d", maxBatchQueries, len(req.Queries))
	}

	parallelism := req.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	if parallelism > maxBatchParallelism {
		parallelism = maxBatchParallelism
	}

	started := time.Now()
	items := make([]BatchItem, len(req.Queries))
	sem := semaphore.NewWeighted(int64(parallelism))
	var wg sync.WaitGroup

	for i, query := range req.Queries {
		if err := sem.Acquire(ctx, 1); err != nil {
			items[i] = BatchItem{Query: query, Error: err.Error()}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			resp, err := p.Ask(ctx, query, req.Options)
			if err != nil {
				items[i] = BatchItem{Query: query, Error: err.Error()}
				return
			}
			items[i] = BatchItem{Query: query, Response: resp}
		}()
	}
	wg.Wait()

	result := &BatchResult{Items: items, Total: len(items), Duration: time.Since(started)}
	for _, item := range items {
		if item.Error == "" {
			result.Succeeded++
			result.TotalProcessingTime += item.Response.ProcessingTime
		} else {
			result.Failed++
		}
	}
	if result.Succeeded > 0 {
		result.AvgProcessingTime = result.TotalProcessingTime / time.Duration(result.Succeeded)
	}

	p.logger.Info("rag_batch_completed",
		slog.Int("query_count", len(req.Queries)),
		slog.Int("parallelism", parallelism),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int64("duration_ms", result.Duration.Milliseconds()))

	return result, nil
}
