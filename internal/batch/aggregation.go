package batch

import (
	"context"

	"github.com/vk/flowbatch/internal/ctxlog"
	"github.com/vk/flowbatch/internal/flowerr"
	"github.com/vk/flowbatch/internal/model"
)

// execAggregation runs the post-pass aggregation step. It reshapes per-line
// data into per-key columns restricted to lines that completed, invokes the
// executor's aggregation entry point, and classifies its failures. The
// results slice must already be sorted by index so the columns preserve
// index-order alignment across all keys.
func (e *Engine) execAggregation(ctx context.Context, lines []map[string]any, results []*model.LineResult, runID string) (*model.AggregationResult, error) {
	if !e.flow.HasAggregation() {
		return model.EmptyAggregationResult(), nil
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("executing aggregation nodes", "count", len(e.flow.AggregationNodes()))

	var succeeded []*model.LineResult
	for _, r := range results {
		if r.Status == model.StatusCompleted {
			succeeded = append(succeeded, r)
		}
	}

	// A line can complete while still carrying raw values (e.g. stringified
	// numbers straight from CSV); re-validate against the declared input
	// types before the aggregation pass consumes them.
	coercedRows := make([]map[string]any, len(succeeded))
	for i, r := range succeeded {
		coerced, err := e.flow.CoerceInputs(lines[r.Index])
		if err != nil {
			return nil, err
		}
		coercedRows[i] = coerced
	}
	inputColumns := transpose(coercedRows, e.flow.InputNames())

	aggRows := make([]map[string]any, len(succeeded))
	for i, r := range succeeded {
		aggRows[i] = r.AggregationInputs
	}
	aggColumns := transpose(aggRows, e.flow.AggregationInputProperties())

	aggr, err := e.ex.ExecAggregation(ctx, inputColumns, aggColumns, runID)
	if err != nil {
		// A classified error already carries an actionable target; anything
		// else is the backend's own bug surfacing and gets wrapped.
		if classified, ok := flowerr.As(err); ok {
			return nil, classified
		}
		return nil, flowerr.Unexpected(flowerr.TargetExecutor, err)
	}
	if aggr == nil {
		aggr = model.EmptyAggregationResult()
	}
	logger.Info("finished executing aggregation nodes", "node_errors", len(aggr.Errors))
	return aggr, nil
}

// transpose reshapes rows into columns: for each key, the ordered sequence of
// that key's value across all rows. Zipping the columns positionally
// reconstructs the original per-row tuples.
func transpose(rows []map[string]any, keys []string) map[string][]any {
	columns := make(map[string][]any, len(keys))
	for _, key := range keys {
		column := make([]any, len(rows))
		for i, row := range rows {
			column[i] = row[key]
		}
		columns[key] = column
	}
	return columns
}
