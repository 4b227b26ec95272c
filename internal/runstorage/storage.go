// Package runstorage persists run-level diagnostics: run status transitions,
// per-line run records, and the aggregation outcome. The engine writes
// through the Store interface and treats the concrete backend as a
// collaborator; persistence failures are surfaced as errors for the caller to
// log, never as run-fatal conditions.
package runstorage

import (
	"context"

	"github.com/vk/flowbatch/internal/model"
)

// Store records the diagnostic trail of a batch run.
type Store interface {
	// StartRun records that a run began, with the flow name and the number
	// of lines it will attempt.
	StartRun(ctx context.Context, runID, flowName string, total int) error
	// SaveLineResult records the terminal state of one line.
	SaveLineResult(ctx context.Context, runID string, r *model.LineResult) error
	// SaveAggregation records the aggregation pass outcome.
	SaveAggregation(ctx context.Context, runID string, a *model.AggregationResult) error
	// FinishRun records the run's terminal status and an optional message.
	FinishRun(ctx context.Context, runID string, status model.Status, message string) error
	// Close releases the store's resources.
	Close() error
}

// Noop is a Store that records nothing. It is the default when no diagnostics
// backend is configured.
type Noop struct{}

func (Noop) StartRun(context.Context, string, string, int) error             { return nil }
func (Noop) SaveLineResult(context.Context, string, *model.LineResult) error { return nil }
func (Noop) SaveAggregation(context.Context, string, *model.AggregationResult) error {
	return nil
}
func (Noop) FinishRun(context.Context, string, model.Status, string) error { return nil }
func (Noop) Close() error                                                  { return nil }
