// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the result model for batch flow execution.
//
// Why a dedicated result model?
//
// Line execution, aggregation, and run assembly are performed by different
// components, possibly across goroutines. Modeling their outcomes as plain
// immutable-by-convention structs keeps the ownership story simple: a
// LineResult is produced exactly once by whichever component ran the line,
// handed to the engine, and never mutated afterwards. The final BatchResult
// is constructed exactly once, at the very end of a run, on every exit path.
package model

import (
	"sort"
	"time"
)

// Status is the terminal state of a line or of a whole batch run.
type Status string

const (
	// StatusCompleted indicates the work finished and produced an output.
	StatusCompleted Status = "Completed"
	// StatusFailed indicates the work ran but did not finish successfully.
	StatusFailed Status = "Failed"
	// StatusCanceled indicates the work was interrupted by a cancel request.
	StatusCanceled Status = "Canceled"
	// StatusRunning is used by run storage to mark a batch still in flight.
	// It never appears in a finished BatchResult.
	StatusRunning Status = "Running"
)

// LineError captures why a single line failed. It is diagnostic data, not a
// Go error: line-level failures are encoded in the result, never raised.
type LineError struct {
	// Message is the human-readable failure description.
	Message string `json:"message"`
	// Target names the component the failure was classified against.
	Target string `json:"target,omitempty"`
}

// LineResult is the outcome of executing one input line through the flow.
type LineResult struct {
	// Index is the 0-based position of the line in the batch. It is the
	// durable ordering key, independent of submission or completion order.
	Index int
	// Status is the terminal state of this line.
	Status Status
	// Output holds the flow outputs produced by the line. Empty unless the
	// line completed.
	Output map[string]any
	// AggregationInputs holds the values the aggregation pass needs to see
	// for this line, keyed by aggregation input property. Values computed
	// before a failure may be present even on a failed line.
	AggregationInputs map[string]any
	// Error describes the failure for a Failed line, nil otherwise.
	Error *LineError

	StartTime time.Time
	EndTime   time.Time
}

// AggregationResult holds the outputs of the aggregation pass. Aggregation
// failures are node-scoped: a node that fails lands in Errors while its
// siblings still publish outputs.
type AggregationResult struct {
	// Output maps aggregation node name to the value it produced.
	Output map[string]any
	// Metrics maps metric name to the numeric value emitted during
	// aggregation.
	Metrics map[string]float64
	// Errors maps aggregation node name to the failure message for nodes
	// that individually failed.
	Errors map[string]string
}

// EmptyAggregationResult returns an AggregationResult with all maps
// initialized and empty, used when a flow has no aggregation nodes or when a
// run ends before aggregation.
func EmptyAggregationResult() *AggregationResult {
	return &AggregationResult{
		Output:  map[string]any{},
		Metrics: map[string]float64{},
		Errors:  map[string]string{},
	}
}

// BatchResult is the immutable summary of one batch run.
type BatchResult struct {
	Status      Status
	StartTime   time.Time
	EndTime     time.Time
	Total       int
	Completed   int
	Failed      int
	Canceled    int
	Lines       []*LineResult
	Aggregation *AggregationResult
}

// NewBatchResult assembles the final summary from whatever line results were
// recorded. Lines are re-sorted ascending by index regardless of the order
// they completed in, and per-status counts are derived from them.
func NewBatchResult(start, end time.Time, lines []*LineResult, aggr *AggregationResult, status Status) *BatchResult {
	sorted := make([]*LineResult, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	if aggr == nil {
		aggr = EmptyAggregationResult()
	}

	result := &BatchResult{
		Status:      status,
		StartTime:   start,
		EndTime:     end,
		Total:       len(sorted),
		Lines:       sorted,
		Aggregation: aggr,
	}
	for _, line := range sorted {
		switch line.Status {
		case StatusCompleted:
			result.Completed++
		case StatusFailed:
			result.Failed++
		case StatusCanceled:
			result.Canceled++
		}
	}
	return result
}
