package flow

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/flowbatch/internal/flowerr"
)

// ctyToNative recursively converts a cty.Value to its most natural Go
// counterpart. Numbers become float64, the common representation for values
// that round-trip through JSON.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert cty.Number to float64: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0)
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			slice = append(slice, native)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		goMap := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			goMap[key.AsString()] = native
		}
		return goMap, nil

	default:
		return nil, fmt.Errorf("unsupported cty type for native conversion: %s", ty.FriendlyName())
	}
}

// nativeToCty converts a native Go value (as produced by JSON or CSV input
// decoding) into its implied cty.Value.
func nativeToCty(v any) (cty.Value, error) {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(val))
		for i, elem := range val {
			cv, err := nativeToCty(elem)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = cv
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(val) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(val))
		for k, elem := range val {
			cv, err := nativeToCty(elem)
			if err != nil {
				return cty.NilVal, fmt.Errorf("in attribute '%s': %w", k, err)
			}
			attrs[k] = cv
		}
		return cty.ObjectVal(attrs), nil
	default:
		ty, err := gocty.ImpliedType(v)
		if err != nil {
			return cty.NilVal, fmt.Errorf("unable to infer cty.Type for %T: %w", v, err)
		}
		return gocty.ToCtyValue(v, ty)
	}
}

// CoerceInputs re-validates one line's inputs against the flow's declared
// input types, returning a copy with every declared input converted to its
// declared type. A line can execute successfully while still carrying values
// that need coercion (e.g. stringified numbers read from CSV) before the
// aggregation pass may consume them. Undeclared keys pass through untouched.
func (f *Flow) CoerceInputs(line map[string]any) (map[string]any, error) {
	coerced := make(map[string]any, len(line))
	for k, v := range line {
		coerced[k] = v
	}
	for _, in := range f.Inputs {
		raw, ok := coerced[in.Name]
		if !ok {
			return nil, flowerr.New(flowerr.TargetFlow, "input '%s' is required but missing from the line", in.Name)
		}
		ctyVal, err := nativeToCty(raw)
		if err != nil {
			return nil, flowerr.Wrap(flowerr.TargetFlow, err, "input '%s' cannot be interpreted", in.Name)
		}
		converted, err := convert.Convert(ctyVal, in.Type)
		if err != nil {
			return nil, flowerr.Wrap(flowerr.TargetFlow, err,
				"input '%s' of type %s cannot be converted to declared type %s",
				in.Name, ctyVal.Type().FriendlyName(), in.Type.FriendlyName())
		}
		native, err := ctyToNative(converted)
		if err != nil {
			return nil, flowerr.Wrap(flowerr.TargetFlow, err, "input '%s' cannot be decoded", in.Name)
		}
		coerced[in.Name] = native
	}
	return coerced, nil
}
