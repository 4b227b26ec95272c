// Package executor defines the contract every execution backend implements
// and the registry that creates backends from a flow's declared kind.
//
// The engine is deliberately ignorant of how a line is actually computed. A
// backend may run lines in-process, shell out, or talk to a remote service;
// all the engine sees is this contract.
package executor

import (
	"context"

	"github.com/vk/flowbatch/internal/model"
)

// Executor is the abstraction every execution backend implements.
//
// ExecLine runs one line to completion or failure. Line-level failures are
// never returned as a Go error: they are encoded in the returned LineResult's
// status. The error return is reserved for infrastructure-level faults
// (backend unreachable, protocol violation); the scheduler folds such a fault
// into a Failed result for that line and keeps the batch going.
type Executor interface {
	ExecLine(ctx context.Context, input map[string]any, index int, runID string) (*model.LineResult, error)

	// ExecAggregation runs the aggregation pass over column-shaped data drawn
	// from successful lines only. Both column sets are index-order aligned:
	// zipping them positionally reconstructs the per-line tuples.
	ExecAggregation(ctx context.Context, inputs map[string][]any, aggregationInputs map[string][]any, runID string) (*model.AggregationResult, error)

	// Close releases the backend's resources. It must be idempotent; the
	// engine invokes it exactly once per run on every exit path.
	Close(ctx context.Context) error
}

// BatchRunner is an optional capability: a backend that manages its own
// internal concurrency and persistence advertises it by implementing this
// interface, and the engine delegates the entire batch to it instead of
// fanning out per-line calls.
type BatchRunner interface {
	ExecBatch(ctx context.Context, inputs []map[string]any, outputDir string, runID string) ([]*model.LineResult, error)
}

// ConcurrencyLimiter is an optional capability: a backend that is not safe
// for unlimited concurrent ExecLine calls declares its ceiling here. The
// engine clamps its worker count to this value; a backend that requires
// serialized calls returns 1.
type ConcurrencyLimiter interface {
	MaxConcurrency() int
}
