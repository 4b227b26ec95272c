// Package flow defines the declarative flow model: typed input declarations,
// computation nodes (a subset of which are aggregation nodes), and declared
// outputs. A Flow is loaded once per run and is read-only afterwards; every
// other component treats it as an immutable description of what to execute.
package flow

import (
	"github.com/zclconf/go-cty/cty"
)

// Flow is the immutable definition of a batch-executable flow.
type Flow struct {
	// Name is the optional human-readable flow name.
	Name string
	// Kind names the execution backend this flow targets, e.g. "javascript".
	Kind string
	// Inputs are the declared inputs in declaration order.
	Inputs []*Input
	// Nodes are the computation nodes in declaration order.
	Nodes []*Node
	// Outputs are the declared flow outputs in declaration order.
	Outputs []*Output
}

// Input is one declared flow input.
type Input struct {
	Name string
	// Type is the declared value type, used to coerce raw per-line values
	// before the aggregation pass sees them.
	Type cty.Type
	// Default is the value applied when a line does not carry this input.
	// Only meaningful when HasDefault is true.
	Default    any
	HasDefault bool
}

// Node is one computation node of the flow graph. The engine never interprets
// Source itself; it is the unit of work handed to the execution backend.
type Node struct {
	Name string
	// Expr is the backend-interpreted body of the node, e.g. a JavaScript
	// expression for the "javascript" backend.
	Expr string
	// Uses lists the names of nodes whose values this node reads.
	Uses []string
	// Aggregation marks nodes executed once per run, after all lines, over
	// column-shaped data drawn from successful lines only.
	Aggregation bool
}

// Output declares one flow output, published per line from the named node.
type Output struct {
	Name string
	// From is the name of the node whose value backs this output.
	From string
}

// Input returns the declared input with the given name, or nil.
func (f *Flow) Input(name string) *Input {
	for _, in := range f.Inputs {
		if in.Name == name {
			return in
		}
	}
	return nil
}

// Node returns the node with the given name, or nil.
func (f *Flow) Node(name string) *Node {
	for _, n := range f.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// InputNames returns the declared input names in declaration order.
func (f *Flow) InputNames() []string {
	names := make([]string, len(f.Inputs))
	for i, in := range f.Inputs {
		names[i] = in.Name
	}
	return names
}

// AggregationNodes returns the nodes tagged as aggregation nodes, in
// declaration order.
func (f *Flow) AggregationNodes() []*Node {
	var nodes []*Node
	for _, n := range f.Nodes {
		if n.Aggregation {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// HasAggregation reports whether the flow declares at least one aggregation
// node. When false, the aggregation pass is skipped entirely.
func (f *Flow) HasAggregation() bool {
	return len(f.AggregationNodes()) > 0
}

// AggregationInputProperties returns the names of non-aggregation nodes whose
// per-line values the aggregation pass needs to see, in node declaration
// order. These are the keys of LineResult.AggregationInputs.
func (f *Flow) AggregationInputProperties() []string {
	referenced := map[string]bool{}
	for _, n := range f.AggregationNodes() {
		for _, used := range n.Uses {
			referenced[used] = true
		}
	}
	var props []string
	for _, n := range f.Nodes {
		if !n.Aggregation && referenced[n.Name] {
			props = append(props, n.Name)
		}
	}
	return props
}

// ApplyInputDefaults returns a copy of the line's inputs with every declared
// default filled in for inputs the line does not carry. The input map given
// by the caller is not mutated.
func (f *Flow) ApplyInputDefaults(line map[string]any) map[string]any {
	applied := make(map[string]any, len(line))
	for k, v := range line {
		applied[k] = v
	}
	for _, in := range f.Inputs {
		if _, ok := applied[in.Name]; !ok && in.HasDefault {
			applied[in.Name] = in.Default
		}
	}
	return applied
}
