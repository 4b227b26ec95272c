package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/flowbatch/internal/ctxlog"
	"github.com/vk/flowbatch/internal/executor"
	"github.com/vk/flowbatch/internal/flow"
	"github.com/vk/flowbatch/internal/flowerr"
	"github.com/vk/flowbatch/internal/model"
	"github.com/vk/flowbatch/internal/runstorage"
)

// DefaultConcurrency is the line concurrency ceiling used when the caller
// does not configure one.
const DefaultConcurrency = 16

// Request describes one batch run.
type Request struct {
	// Lines are the per-line input mappings, one per record, in line order.
	// Input resolution and max-line truncation happen upstream.
	Lines []map[string]any
	// OutputDir is where the run's output artifact is written. Empty skips
	// output persistence.
	OutputDir string
	// RunID identifies the run. A fresh UUID is generated when empty.
	RunID string
	// RaiseOnLineFailure makes Run return an error summarizing all failed
	// line indices instead of recording failures in the result.
	RaiseOnLineFailure bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the line concurrency ceiling. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.workers = n
		}
	}
}

// WithStorage sets the run-diagnostics store.
func WithStorage(s runstorage.Store) Option {
	return func(e *Engine) {
		if s != nil {
			e.storage = s
		}
	}
}

// Engine executes a flow in batch mode. An Engine is built for one flow and
// one executor; Run may be called once per Engine while Cancel may be called
// from any goroutine at any time, before or during the run.
type Engine struct {
	flow    *flow.Flow
	ex      executor.Executor
	workers int
	storage runstorage.Store

	mu        sync.Mutex
	canceled  bool
	cancelRun context.CancelFunc
}

// New creates a batch engine for the given flow and executor.
func New(f *flow.Flow, ex executor.Executor, opts ...Option) *Engine {
	e := &Engine{
		flow:    f,
		ex:      ex,
		workers: DefaultConcurrency,
		storage: runstorage.Noop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cancel requests cancellation of the run. It is idempotent and safe to call
// from any goroutine; calling it before Run makes the run cancel immediately
// after starting.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.canceled = true
	if e.cancelRun != nil {
		e.cancelRun()
	}
}

// armCancel publishes the run context's cancel func so Cancel can reach it,
// honoring a Cancel that arrived before the run started.
func (e *Engine) armCancel(cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelRun = cancel
	if e.canceled {
		cancel()
	}
}

// Run executes the whole batch and returns its summary. It returns an error
// only for run-level escalations: a classified domain error is propagated
// unchanged, anything else is wrapped as unexpected. Line-level failures and
// cancellation produce a normal BatchResult instead.
func (e *Engine) Run(ctx context.Context, req Request) (*model.BatchResult, error) {
	start := time.Now().UTC()
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = ctxlog.With(ctx, "run_id", runID)
	logger := ctxlog.FromContext(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.armCancel(cancel)

	// Close must run on every exit path, and must not be starved by the run
	// context being canceled.
	defer func() {
		if err := e.ex.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("executor close failed", "error", err)
		}
	}()

	logger.Info("starting batch run", "flow", e.flow.Name, "total_lines", len(req.Lines))
	if err := e.storage.StartRun(runCtx, runID, e.flow.Name, len(req.Lines)); err != nil {
		logger.Warn("run storage unavailable for this run", "error", err)
	}

	result, err := e.exec(runCtx, start, runID, req)
	if err != nil {
		logger.Error("batch run failed", "error", err)
		classified := flowerr.Unexpected(flowerr.TargetBatch, err)
		if storeErr := e.storage.FinishRun(context.WithoutCancel(ctx), runID, model.StatusFailed, classified.Error()); storeErr != nil {
			logger.Warn("failed to record run failure", "error", storeErr)
		}
		return nil, classified
	}

	if storeErr := e.storage.FinishRun(context.WithoutCancel(ctx), runID, result.Status, ""); storeErr != nil {
		logger.Warn("failed to record run completion", "error", storeErr)
	}
	logger.Info("batch run finished",
		"status", string(result.Status),
		"completed", result.Completed,
		"failed", result.Failed,
		"duration", result.EndTime.Sub(result.StartTime).String(),
	)
	return result, nil
}

// exec drives the full sequence: line execution, failure policy, aggregation,
// output persistence, result assembly.
func (e *Engine) exec(ctx context.Context, start time.Time, runID string, req Request) (*model.BatchResult, error) {
	logger := ctxlog.FromContext(ctx)

	if len(req.Lines) == 0 {
		if err := persistOutputs(ctx, nil, req.OutputDir); err != nil {
			return nil, err
		}
		return model.NewBatchResult(start, time.Now().UTC(), nil, nil, model.StatusCompleted), nil
	}

	// Defaults are applied up front so both line execution and the
	// aggregation pass observe the same per-line inputs.
	lines := make([]map[string]any, len(req.Lines))
	for i, line := range req.Lines {
		lines[i] = e.flow.ApplyInputDefaults(line)
	}

	var results []*model.LineResult
	if br, ok := e.ex.(executor.BatchRunner); ok {
		// The backend manages its own internal concurrency and persistence;
		// delegate the entire batch instead of fanning out per-line calls.
		logger.Debug("delegating batch to executor's built-in batch mode")
		batchResults, err := br.ExecBatch(ctx, lines, req.OutputDir, runID)
		if err != nil {
			if runInterrupted(ctx, err) {
				return model.NewBatchResult(start, time.Now().UTC(), nil, nil, model.StatusCanceled), nil
			}
			return nil, fmt.Errorf("batch-mode execution failed: %w", err)
		}
		results = batchResults
	} else {
		var interrupted bool
		results, interrupted = e.execLines(ctx, lines, runID)
		if interrupted {
			logger.Warn("batch run canceled", "collected_lines", len(results))
			return model.NewBatchResult(start, time.Now().UTC(), results, nil, model.StatusCanceled), nil
		}
	}

	sortByIndex(results)

	if req.RaiseOnLineFailure {
		if err := lineFailureError(results); err != nil {
			return nil, err
		}
	}

	aggr, err := e.execAggregation(ctx, lines, results, runID)
	if err != nil {
		if runInterrupted(ctx, err) {
			logger.Warn("batch run canceled during aggregation", "collected_lines", len(results))
			return model.NewBatchResult(start, time.Now().UTC(), results, nil, model.StatusCanceled), nil
		}
		return nil, err
	}
	if err := e.storage.SaveAggregation(ctx, runID, aggr); err != nil {
		logger.Warn("failed to record aggregation result", "error", err)
	}

	if err := persistOutputs(ctx, results, req.OutputDir); err != nil {
		return nil, err
	}

	return model.NewBatchResult(start, time.Now().UTC(), results, aggr, model.StatusCompleted), nil
}

// runInterrupted reports whether an error is the run context's cancellation
// surfacing, as opposed to a genuine failure.
func runInterrupted(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) && ctx.Err() != nil
}

// lineFailureError implements the fail-fast policy: a single classified error
// summarizing every failed line, produced only after all lines finished.
func lineFailureError(results []*model.LineResult) error {
	var failed []*model.LineResult
	for _, r := range results {
		if r.Status == model.StatusFailed {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return nil
	}

	var b strings.Builder
	for i, r := range failed {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "line %d", r.Index)
		if r.Error != nil {
			fmt.Fprintf(&b, ": %s", r.Error.Message)
		}
	}
	return flowerr.New(flowerr.TargetBatch, "%d out of %d lines failed: %s", len(failed), len(results), b.String())
}

func sortByIndex(results []*model.LineResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
}
