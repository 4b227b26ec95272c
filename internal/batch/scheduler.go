package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vk/flowbatch/internal/ctxlog"
	"github.com/vk/flowbatch/internal/executor"
	"github.com/vk/flowbatch/internal/flowerr"
	"github.com/vk/flowbatch/internal/model"
)

// lineJob is one admitted unit of work for a line worker.
type lineJob struct {
	index int
	input map[string]any
}

// execLines runs every line through the executor's single-line entry point
// with at most e.workers executions in flight at any instant. Admission is
// gated strictly: a line starts only once a worker has picked its job off the
// channel, so the pool size is the concurrency ceiling. The returned slice is
// in completion order; interrupted reports whether the run context closed
// before all lines were collected.
func (e *Engine) execLines(ctx context.Context, lines []map[string]any, runID string) (collected []*model.LineResult, interrupted bool) {
	logger := ctxlog.FromContext(ctx)
	total := len(lines)
	workers := e.lineWorkerCount(total)
	logger.Debug("starting line scheduler", "total_lines", total, "workers", workers)

	jobs := make(chan lineJob)
	// Buffered to the batch size so a worker finishing after cancellation
	// can always deliver (a discarded) result without blocking forever.
	results := make(chan *model.LineResult, total)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.lineWorker(ctx, runID, workerID, jobs, results)
		}(w)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Feeder: admit lines in index order, stop admitting once the run
	// context closes.
	go func() {
		defer close(jobs)
		for i, input := range lines {
			select {
			case jobs <- lineJob{index: i, input: input}:
			case <-ctx.Done():
				return
			}
		}
	}()

	collected = make([]*model.LineResult, 0, total)
	for len(collected) < total {
		select {
		case r, ok := <-results:
			if !ok {
				// All workers exited early; only cancellation causes this.
				return collected, true
			}
			collected = append(collected, r)
			if err := e.storage.SaveLineResult(ctx, runID, r); err != nil {
				logger.Warn("failed to record line result", "line", r.Index, "error", err)
			}
			logProgress(logger, len(collected), total)
		case <-ctx.Done():
			return collected, true
		}
	}
	return collected, false
}

// lineWorker consumes admitted jobs until the job channel closes or the run
// context does. Infrastructure-level faults from the executor are folded into
// a Failed result for that line so the rest of the batch proceeds.
func (e *Engine) lineWorker(ctx context.Context, runID string, workerID int, jobs <-chan lineJob, results chan<- *model.LineResult) {
	logger := ctxlog.FromContext(ctx).With("worker", workerID)
	for job := range jobs {
		if ctx.Err() != nil {
			return
		}
		logger.Debug("worker picked up line", "line", job.index)

		r, err := e.ex.ExecLine(ctx, job.input, job.index, runID)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				// Abandoned in-flight line; the collector already stopped
				// waiting for it.
				return
			}
			logger.Error("line execution fault", "line", job.index, "error", err)
			r = faultResult(job.index, err)
		}
		results <- r
	}
}

// lineWorkerCount derives the effective worker-pool size: the configured
// ceiling, clamped by the batch size and by the executor's own declared
// concurrency limit.
func (e *Engine) lineWorkerCount(total int) int {
	workers := e.workers
	if limiter, ok := e.ex.(executor.ConcurrencyLimiter); ok {
		if limit := limiter.MaxConcurrency(); limit >= 1 && limit < workers {
			workers = limit
		}
	}
	if total < workers {
		workers = total
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// faultResult encodes an infrastructure-level fault as a Failed line result
// carrying the underlying cause.
func faultResult(index int, err error) *model.LineResult {
	target := string(flowerr.TargetExecutor)
	if classified, ok := flowerr.As(err); ok {
		target = string(classified.Target)
	}
	return &model.LineResult{
		Index:             index,
		Status:            model.StatusFailed,
		Output:            map[string]any{},
		AggregationInputs: map[string]any{},
		Error:             &model.LineError{Message: err.Error(), Target: target},
	}
}

// logProgress reports line completion at roughly every tenth of the batch,
// and always for the final line.
func logProgress(logger *slog.Logger, done, total int) {
	step := total / 10
	if step < 1 {
		step = 1
	}
	if done%step == 0 || done == total {
		logger.Info("line execution progress", "finished", done, "total", total)
	}
}
