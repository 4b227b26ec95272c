// Package jsexec is the built-in execution backend: it interprets each flow
// node's expr as JavaScript. A fresh VM is created per call, so the backend
// is safe for concurrent line execution without declaring a concurrency
// limit.
package jsexec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/vk/flowbatch/internal/executor"
	"github.com/vk/flowbatch/internal/flow"
	"github.com/vk/flowbatch/internal/model"
)

// Kind is the backend kind this package registers under.
const Kind = "javascript"

// Module wires the javascript backend into an executor registry.
type Module struct{}

// Register implements executor.Module.
func (Module) Register(r *executor.Registry) {
	r.Register(Kind, func(_ context.Context, f *flow.Flow, _ executor.Options) (executor.Executor, error) {
		return New(f), nil
	})
}

// Executor evaluates flow nodes as JavaScript expressions.
type Executor struct {
	flow *flow.Flow
}

// New creates a javascript executor for the given flow.
func New(f *flow.Flow) *Executor {
	return &Executor{flow: f}
}

// ExecLine implements executor.Executor. Per-line nodes are evaluated in
// declaration order; each node's value is bound under its name for the nodes
// after it. A node failure yields a Failed result carrying whatever
// aggregation inputs were computed before the failure.
func (e *Executor) ExecLine(ctx context.Context, input map[string]any, index int, runID string) (*model.LineResult, error) {
	start := time.Now().UTC()
	vm, stop := newVM(ctx)
	defer stop()

	if err := vm.Set("inputs", input); err != nil {
		return nil, fmt.Errorf("failed to bind inputs for line %d: %w", index, err)
	}

	values := map[string]any{}
	for _, node := range e.flow.Nodes {
		if node.Aggregation {
			continue
		}
		val, err := vm.RunString(node.Expr)
		if err != nil {
			if interrupted(err) && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return &model.LineResult{
				Index:             index,
				Status:            model.StatusFailed,
				Output:            map[string]any{},
				AggregationInputs: e.aggregationInputs(values),
				Error: &model.LineError{
					Message: fmt.Sprintf("node '%s' failed: %v", node.Name, err),
					Target:  "flow",
				},
				StartTime: start,
				EndTime:   time.Now().UTC(),
			}, nil
		}
		exported := val.Export()
		values[node.Name] = exported
		if err := vm.Set(node.Name, exported); err != nil {
			return nil, fmt.Errorf("failed to bind node '%s' value: %w", node.Name, err)
		}
	}

	return &model.LineResult{
		Index:             index,
		Status:            model.StatusCompleted,
		Output:            e.lineOutput(values),
		AggregationInputs: e.aggregationInputs(values),
		StartTime:         start,
		EndTime:           time.Now().UTC(),
	}, nil
}

// ExecAggregation implements executor.Executor. Every column is bound under
// its key; aggregation node failures are node-scoped, recorded in the
// result's Errors map while sibling nodes still run.
func (e *Executor) ExecAggregation(ctx context.Context, inputs map[string][]any, aggregationInputs map[string][]any, runID string) (*model.AggregationResult, error) {
	result := model.EmptyAggregationResult()
	vm, stop := newVM(ctx)
	defer stop()

	if err := vm.Set("inputs", inputs); err != nil {
		return nil, fmt.Errorf("failed to bind input columns: %w", err)
	}
	for key, column := range aggregationInputs {
		if err := vm.Set(key, column); err != nil {
			return nil, fmt.Errorf("failed to bind aggregation column '%s': %w", key, err)
		}
	}
	if err := vm.Set("setMetric", func(name string, value float64) {
		result.Metrics[name] = value
	}); err != nil {
		return nil, fmt.Errorf("failed to bind setMetric: %w", err)
	}

	for _, node := range e.flow.AggregationNodes() {
		val, err := vm.RunString(node.Expr)
		if err != nil {
			if interrupted(err) && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Errors[node.Name] = err.Error()
			continue
		}
		result.Output[node.Name] = val.Export()
	}
	return result, nil
}

// Close implements executor.Executor. The backend holds no external
// resources; per-call VMs are garbage collected.
func (e *Executor) Close(ctx context.Context) error {
	return nil
}

// lineOutput selects the values published as the line's output: the declared
// flow outputs, or every per-line node's value when the flow declares none.
func (e *Executor) lineOutput(values map[string]any) map[string]any {
	output := map[string]any{}
	if len(e.flow.Outputs) == 0 {
		for _, node := range e.flow.Nodes {
			if node.Aggregation {
				continue
			}
			if v, ok := values[node.Name]; ok {
				output[node.Name] = v
			}
		}
		return output
	}
	for _, out := range e.flow.Outputs {
		if v, ok := values[out.From]; ok {
			output[out.Name] = v
		}
	}
	return output
}

// aggregationInputs extracts the values the aggregation pass needs from
// whatever node values were computed so far.
func (e *Executor) aggregationInputs(values map[string]any) map[string]any {
	props := e.flow.AggregationInputProperties()
	aggInputs := make(map[string]any, len(props))
	for _, prop := range props {
		if v, ok := values[prop]; ok {
			aggInputs[prop] = v
		}
	}
	return aggInputs
}

// newVM creates a VM wired to the context: when the context closes, the VM is
// interrupted so a running expression cannot outlive the run.
func newVM(ctx context.Context) (*goja.Runtime, func()) {
	vm := goja.New()
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return vm, func() { close(done) }
}

func interrupted(err error) bool {
	var ie *goja.InterruptedError
	return errors.As(err, &ie)
}
