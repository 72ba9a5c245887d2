package corsac

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// BatchItem is one file to process in a batch operation.
type BatchItem struct {
	// Src is the input file path.
	Src string
	// Dst is the output file path; its extension picks the output format.
	Dst string
	// Opts are the per-item options. nil falls back to BatchOptions.DefaultOpts.
	Opts *Options
}

// BatchResult holds the outcome for a single batch item.
type BatchResult struct {
	// Item is the original batch item.
	Item BatchItem
	// Result is the processing result (nil when Err is non-nil).
	Result *Result
	// Err is any error that occurred.
	Err error
	// Index is the position in the original input slice.
	Index int
}

// BatchOptions configures batch processing.
type BatchOptions struct {
	// Workers is the number of concurrent workers. 0 = runtime.NumCPU().
	Workers int
	// DefaultOpts applies to any BatchItem whose Opts is nil.
	DefaultOpts Options
	// OnItem is called after each item completes, with the completed count
	// and the total.
	OnItem func(completed, total int)
}

// ProcessBatch processes multiple image files concurrently. Pipelines are
// single-flight, so the batch keeps one per worker in a small pool and items
// borrow whichever is free. Results come back in input order. Cancelling ctx
// stops new items from starting; in-flight items finish.
//
// Example:
//
//	items := []corsac.BatchItem{
//	    {Src: "photo1.jpg", Dst: "out1.jpg"},
//	    {Src: "photo2.png", Dst: "out2.jpg"},
//	}
//	results := corsac.ProcessBatch(ctx, corsac.DefaultConfig(), items, corsac.BatchOptions{
//	    Workers: 4,
//	    DefaultOpts: corsac.DefaultOptions(),
//	})
func ProcessBatch(ctx context.Context, cfg Config, items []BatchItem, batchOpts BatchOptions) []BatchResult {
	if len(items) == 0 {
		return nil
	}

	workers := batchOpts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(items) {
		workers = len(items)
	}

	pool := make(chan *Pipeline, workers)
	for i := 0; i < workers; i++ {
		pool <- New(cfg)
	}

	results := make([]BatchResult, len(items))
	var completed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range items {
		i := i // per-iteration copy; required under go <1.22 loop semantics
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = BatchResult{Item: items[i], Err: err, Index: i}
				return nil
			}

			p := <-pool
			defer func() { pool <- p }()

			item := items[i]
			opts := batchOpts.DefaultOpts
			if item.Opts != nil {
				opts = *item.Opts
			}

			res, err := p.ProcessFile(gctx, item.Src, item.Dst, opts)
			results[i] = BatchResult{Item: item, Result: res, Err: err, Index: i}

			if batchOpts.OnItem != nil {
				batchOpts.OnItem(int(completed.Add(1)), len(items))
			}
			return nil
		})
	}
	_ = g.Wait() // per-item errors live in results

	for i := 0; i < workers; i++ {
		(<-pool).Close()
	}
	return results
}

// BatchSummary aggregates statistics over a batch.
type BatchSummary struct {
	Total      int
	Succeeded  int
	Failed     int
	TotalSaved int64
	AvgRatio   float64
}

// Summarize computes aggregate statistics from batch results.
func Summarize(results []BatchResult) BatchSummary {
	s := BatchSummary{Total: len(results)}
	var ratioSum float64
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		if r.Result != nil {
			s.TotalSaved += r.Result.OriginalSize - r.Result.CompressedSize
			ratioSum += r.Result.Ratio
		}
	}
	if s.Succeeded > 0 {
		s.AvgRatio = ratioSum / float64(s.Succeeded)
	}
	return s
}

// String returns a human-readable batch summary.
func (s BatchSummary) String() string {
	return fmt.Sprintf(
		"Batch: %d/%d succeeded | %s saved | Avg ratio: %.2fx",
		s.Succeeded, s.Total, humanBytes(s.TotalSaved), s.AvgRatio,
	)
}
