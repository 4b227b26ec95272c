package flow

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/flowbatch/internal/flowerr"
)

// fileSchema describes the top-level blocks of a flow definition file.
var fileSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "flow"},
		{Type: "input", LabelNames: []string{"name"}},
		{Type: "node", LabelNames: []string{"name"}},
		{Type: "output", LabelNames: []string{"name"}},
	},
}

var flowBlockSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "kind", Required: true},
		{Name: "name"},
	},
}

var inputBlockSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type", Required: true},
		{Name: "default"},
	},
}

var nodeBlockSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "expr", Required: true},
		{Name: "uses"},
		{Name: "aggregation"},
	},
}

var outputBlockSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "from", Required: true},
	},
}

// Load reads, parses, and validates a flow definition from an HCL file.
func Load(path string) (*Flow, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, flowerr.Wrap(flowerr.TargetFlow, diags, "failed to parse flow file %s", path)
	}
	return decode(file.Body)
}

// Parse parses and validates a flow definition from raw HCL source. The
// filename is only used in diagnostics.
func Parse(src []byte, filename string) (*Flow, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, flowerr.Wrap(flowerr.TargetFlow, diags, "failed to parse flow source %s", filename)
	}
	return decode(file.Body)
}

func decode(body hcl.Body) (*Flow, error) {
	content, diags := body.Content(fileSchema)
	if diags.HasErrors() {
		return nil, flowerr.Wrap(flowerr.TargetFlow, diags, "invalid flow definition")
	}

	f := &Flow{}
	seenHeader := false
	for _, block := range content.Blocks {
		var err error
		switch block.Type {
		case "flow":
			if seenHeader {
				return nil, flowerr.New(flowerr.TargetFlow, "duplicate 'flow' block")
			}
			seenHeader = true
			err = decodeHeader(f, block)
		case "input":
			err = decodeInput(f, block)
		case "node":
			err = decodeNode(f, block)
		case "output":
			err = decodeOutput(f, block)
		}
		if err != nil {
			return nil, err
		}
	}
	if !seenHeader {
		return nil, flowerr.New(flowerr.TargetFlow, "missing 'flow' block")
	}

	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func decodeHeader(f *Flow, block *hcl.Block) error {
	content, diags := block.Body.Content(flowBlockSchema)
	if diags.HasErrors() {
		return flowerr.Wrap(flowerr.TargetFlow, diags, "invalid 'flow' block")
	}
	var err error
	if f.Kind, err = stringAttr(content, "kind"); err != nil {
		return err
	}
	if f.Name, err = stringAttr(content, "name"); err != nil {
		return err
	}
	return nil
}

func decodeInput(f *Flow, block *hcl.Block) error {
	name := block.Labels[0]
	content, diags := block.Body.Content(inputBlockSchema)
	if diags.HasErrors() {
		return flowerr.Wrap(flowerr.TargetFlow, diags, "invalid input '%s'", name)
	}

	typeAttr := content.Attributes["type"]
	ty, diags := typeexpr.TypeConstraint(typeAttr.Expr)
	if diags.HasErrors() {
		return flowerr.Wrap(flowerr.TargetFlow, diags, "invalid type for input '%s'", name)
	}

	in := &Input{Name: name, Type: ty}
	if defAttr, ok := content.Attributes["default"]; ok {
		val, diags := defAttr.Expr.Value(nil)
		if diags.HasErrors() {
			return flowerr.Wrap(flowerr.TargetFlow, diags, "invalid default for input '%s'", name)
		}
		converted, err := convert.Convert(val, ty)
		if err != nil {
			return flowerr.Wrap(flowerr.TargetFlow, err,
				"default for input '%s' does not match declared type %s", name, ty.FriendlyName())
		}
		native, err := ctyToNative(converted)
		if err != nil {
			return flowerr.Wrap(flowerr.TargetFlow, err, "default for input '%s' cannot be decoded", name)
		}
		in.Default = native
		in.HasDefault = true
	}
	f.Inputs = append(f.Inputs, in)
	return nil
}

func decodeNode(f *Flow, block *hcl.Block) error {
	name := block.Labels[0]
	content, diags := block.Body.Content(nodeBlockSchema)
	if diags.HasErrors() {
		return flowerr.Wrap(flowerr.TargetFlow, diags, "invalid node '%s'", name)
	}

	n := &Node{Name: name}
	var err error
	if n.Expr, err = stringAttr(content, "expr"); err != nil {
		return flowerr.Wrap(flowerr.TargetFlow, err, "in node '%s'", name)
	}
	if n.Uses, err = stringListAttr(content, "uses"); err != nil {
		return flowerr.Wrap(flowerr.TargetFlow, err, "in node '%s'", name)
	}
	if aggAttr, ok := content.Attributes["aggregation"]; ok {
		val, diags := aggAttr.Expr.Value(nil)
		if diags.HasErrors() {
			return flowerr.Wrap(flowerr.TargetFlow, diags, "invalid aggregation flag on node '%s'", name)
		}
		converted, err := convert.Convert(val, cty.Bool)
		if err != nil {
			return flowerr.Wrap(flowerr.TargetFlow, err, "aggregation flag on node '%s' must be a bool", name)
		}
		n.Aggregation = converted.True()
	}
	f.Nodes = append(f.Nodes, n)
	return nil
}

func decodeOutput(f *Flow, block *hcl.Block) error {
	name := block.Labels[0]
	content, diags := block.Body.Content(outputBlockSchema)
	if diags.HasErrors() {
		return flowerr.Wrap(flowerr.TargetFlow, diags, "invalid output '%s'", name)
	}
	from, err := stringAttr(content, "from")
	if err != nil {
		return flowerr.Wrap(flowerr.TargetFlow, err, "in output '%s'", name)
	}
	f.Outputs = append(f.Outputs, &Output{Name: name, From: from})
	return nil
}

// stringAttr evaluates an optional string attribute with no variables in
// scope. Returns "" when the attribute is absent.
func stringAttr(content *hcl.BodyContent, name string) (string, error) {
	attr, ok := content.Attributes[name]
	if !ok {
		return "", nil
	}
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return "", flowerr.Wrap(flowerr.TargetFlow, diags, "invalid attribute '%s'", name)
	}
	converted, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", flowerr.Wrap(flowerr.TargetFlow, err, "attribute '%s' must be a string", name)
	}
	return converted.AsString(), nil
}

func stringListAttr(content *hcl.BodyContent, name string) ([]string, error) {
	attr, ok := content.Attributes[name]
	if !ok {
		return nil, nil
	}
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return nil, flowerr.Wrap(flowerr.TargetFlow, diags, "invalid attribute '%s'", name)
	}
	converted, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return nil, flowerr.Wrap(flowerr.TargetFlow, err, "attribute '%s' must be a list of strings", name)
	}
	var out []string
	it := converted.ElementIterator()
	for it.Next() {
		_, elem := it.Element()
		out = append(out, elem.AsString())
	}
	return out, nil
}
