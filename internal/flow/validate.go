package flow

import (
	"github.com/vk/flowbatch/internal/flowerr"
)

// validate enforces the structural rules a flow must satisfy before it can be
// executed in batch mode.
func (f *Flow) validate() error {
	if f.Kind == "" {
		return flowerr.New(flowerr.TargetFlow, "flow must declare an execution backend kind")
	}

	inputNames := map[string]bool{}
	for _, in := range f.Inputs {
		if inputNames[in.Name] {
			return flowerr.New(flowerr.TargetFlow, "duplicate input '%s'", in.Name)
		}
		inputNames[in.Name] = true
	}

	nodesByName := map[string]*Node{}
	for _, n := range f.Nodes {
		if _, ok := nodesByName[n.Name]; ok {
			return flowerr.New(flowerr.TargetFlow, "duplicate node '%s'", n.Name)
		}
		if n.Expr == "" {
			return flowerr.New(flowerr.TargetFlow, "node '%s' has an empty expr", n.Name)
		}
		nodesByName[n.Name] = n
	}

	for _, n := range f.Nodes {
		for _, used := range n.Uses {
			dep, ok := nodesByName[used]
			if !ok {
				return flowerr.New(flowerr.TargetFlow, "node '%s' uses unknown node '%s'", n.Name, used)
			}
			// Aggregation nodes run once per batch, after all lines. A
			// per-line node therefore cannot consume their values, and an
			// aggregation node cannot consume another aggregation node.
			if dep.Aggregation {
				return flowerr.New(flowerr.TargetFlow,
					"node '%s' uses aggregation node '%s'; aggregation node values are not available to other nodes", n.Name, used)
			}
		}
	}

	outputNames := map[string]bool{}
	for _, out := range f.Outputs {
		if outputNames[out.Name] {
			return flowerr.New(flowerr.TargetFlow, "duplicate output '%s'", out.Name)
		}
		outputNames[out.Name] = true
		src, ok := nodesByName[out.From]
		if !ok {
			return flowerr.New(flowerr.TargetFlow, "output '%s' references unknown node '%s'", out.Name, out.From)
		}
		if src.Aggregation {
			return flowerr.New(flowerr.TargetFlow,
				"output '%s' references aggregation node '%s'; flow outputs are per-line", out.Name, out.From)
		}
	}
	return nil
}
