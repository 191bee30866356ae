package metadata

import (
	"fmt"
	"math/big"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// ToCty converts a normalized metadata value into a cty value. Maps become
// objects, sequences become tuples and sets become cty sets.
func ToCty(v any) (cty.Value, error) {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(val), nil
	case bool:
		return cty.BoolVal(val), nil
	case int64:
		return cty.NumberIntVal(val), nil
	case float64:
		return cty.NumberFloatVal(val), nil
	case Map:
		if len(val) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(val))
		for k, item := range val {
			cv, err := ToCty(item)
			if err != nil {
				return cty.NilVal, fmt.Errorf("%s: %w", k, err)
			}
			attrs[k] = cv
		}
		return cty.ObjectVal(attrs), nil
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(val))
		for i, item := range val {
			cv, err := ToCty(item)
			if err != nil {
				return cty.NilVal, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = cv
		}
		return cty.TupleVal(elems), nil
	case Set:
		if len(val) == 0 {
			return cty.SetValEmpty(cty.DynamicPseudoType), nil
		}
		elems := make([]cty.Value, 0, len(val))
		var ty cty.Type
		for _, item := range val.Values() {
			cv, err := ToCty(item)
			if err != nil {
				return cty.NilVal, err
			}
			if ty == cty.NilType {
				ty = cv.Type()
			} else if !ty.Equals(cv.Type()) {
				return cty.NilVal, fmt.Errorf("set mixes %s and %s elements", ty.FriendlyName(), cv.Type().FriendlyName())
			}
			elems = append(elems, cv)
		}
		return cty.SetVal(elems), nil
	}
	n, err := Normalize(v)
	if err != nil {
		return cty.NilVal, err
	}
	return ToCty(n)
}

// MapToCty converts a whole tree. A nil map yields an empty object.
func MapToCty(m Map) (cty.Value, error) {
	if m == nil {
		return cty.EmptyObjectVal, nil
	}
	return ToCty(m)
}

// FromCty converts a known cty value into the metadata value model.
func FromCty(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := Map{}
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			conv, err := FromCty(ev)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k.AsString(), err)
			}
			out[k.AsString()] = conv
		}
		return out, nil
	case ty.IsSetType():
		out := Set{}
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			conv, err := FromCty(ev)
			if err != nil {
				return nil, err
			}
			if !isScalar(conv) {
				return nil, fmt.Errorf("set elements must be strings, numbers or bools, got %s", ev.Type().FriendlyName())
			}
			out[conv] = struct{}{}
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			conv, err := FromCty(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, conv)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}

// MapFromCty converts an object value into a Map. Null yields an empty map.
func MapFromCty(v cty.Value) (Map, error) {
	conv, err := FromCty(v)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return Map{}, nil
	}
	m, ok := conv.(Map)
	if !ok {
		return nil, fmt.Errorf("metadata must be an object, got %s", v.Type().FriendlyName())
	}
	return m, nil
}

// encoded is the on-the-wire form of a Map: the cty type travels with the
// value so sets survive a round trip.
type encoded struct {
	Type  []byte
	Value []byte
}

// Marshal encodes m as a pair of JSON documents (type, value).
func Marshal(m Map) (typeJSON, valueJSON []byte, err error) {
	v, err := MapToCty(m)
	if err != nil {
		return nil, nil, err
	}
	enc, err := encode(v)
	if err != nil {
		return nil, nil, err
	}
	return enc.Type, enc.Value, nil
}

// Unmarshal decodes the output of Marshal.
func Unmarshal(typeJSON, valueJSON []byte) (Map, error) {
	ty, err := ctyjson.UnmarshalType(typeJSON)
	if err != nil {
		return nil, fmt.Errorf("decoding metadata type: %w", err)
	}
	v, err := ctyjson.Unmarshal(valueJSON, ty)
	if err != nil {
		return nil, fmt.Errorf("decoding metadata value: %w", err)
	}
	return MapFromCty(v)
}

func encode(v cty.Value) (encoded, error) {
	ty, err := ctyjson.MarshalType(v.Type())
	if err != nil {
		return encoded{}, fmt.Errorf("encoding metadata type: %w", err)
	}
	val, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return encoded{}, fmt.Errorf("encoding metadata value: %w", err)
	}
	return encoded{Type: ty, Value: val}, nil
}
