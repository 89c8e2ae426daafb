package spaces

import (
	"errors"
	"fmt"
	"slices"
)

// ErrValueMismatch is returned when a value does not fit the space it is converted with.
var ErrValueMismatch = errors.New("spaces: value does not match space")

// Flatten converts a structured value into the flat form of s.
//
//	Box            []float64
//	Discrete       int
//	MultiDiscrete  []int
//	Tuple          []any, one element per part
//	Dict           map[string]any, one entry per key
func Flatten(s Space, v any) ([]float64, error) {
	switch sp := s.(type) {
	case Box:
		x, ok := v.([]float64)
		if !ok || len(x) != sp.Dim() {
			return nil, mismatch(s, v)
		}
		return slices.Clone(x), nil
	case Discrete:
		x, ok := v.(int)
		if !ok {
			return nil, mismatch(s, v)
		}
		return []float64{float64(x)}, nil
	case MultiDiscrete:
		x, ok := v.([]int)
		if !ok || len(x) != sp.Dim() {
			return nil, mismatch(s, v)
		}
		out := make([]float64, len(x))
		for i, e := range x {
			out[i] = float64(e)
		}
		return out, nil
	case Tuple:
		x, ok := v.([]any)
		if !ok || len(x) != len(sp.parts) {
			return nil, mismatch(s, v)
		}
		return flattenParts(sp.parts, x)
	case Dict:
		x, ok := v.(map[string]any)
		if !ok || len(x) != len(sp.keys) {
			return nil, mismatch(s, v)
		}
		vals := make([]any, len(sp.keys))
		for i, k := range sp.keys {
			e, ok := x[k]
			if !ok {
				return nil, fmt.Errorf("%w: dict value has no key %q", ErrValueMismatch, k)
			}
			vals[i] = e
		}
		return flattenParts(sp.parts, vals)
	default:
		return nil, fmt.Errorf("%w: unsupported space %s", ErrValueMismatch, s)
	}
}

// Unflatten is the inverse of Flatten.
func Unflatten(s Space, x []float64) (any, error) {
	if len(x) != s.Dim() {
		return nil, fmt.Errorf("%w: %s needs %d values, got %d", ErrValueMismatch, s, s.Dim(), len(x))
	}
	switch sp := s.(type) {
	case Box:
		return slices.Clone(x), nil
	case Discrete:
		return int(x[0]), nil
	case MultiDiscrete:
		out := make([]int, len(x))
		for i, e := range x {
			out[i] = int(e)
		}
		return out, nil
	case Tuple:
		return unflattenParts(sp.parts, x)
	case Dict:
		vals, err := unflattenParts(sp.parts, x)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(sp.keys))
		for i, k := range sp.keys {
			out[k] = vals[i]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported space %s", ErrValueMismatch, s)
	}
}

// FlatBox returns the 1-D box with the flattened bounds of s.
func FlatBox(s Space) (Box, error) {
	low, high := s.Bounds()
	return NewBoxBounds(low, high)
}

func flattenParts(parts []Space, vals []any) ([]float64, error) {
	var out []float64
	for i, p := range parts {
		x, err := Flatten(p, vals[i])
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		out = append(out, x...)
	}
	return out, nil
}

func unflattenParts(parts []Space, x []float64) ([]any, error) {
	out := make([]any, len(parts))
	off := 0
	for i, p := range parts {
		n := p.Dim()
		v, err := Unflatten(p, x[off:off+n])
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		out[i] = v
		off += n
	}
	return out, nil
}

func mismatch(s Space, v any) error {
	return fmt.Errorf("%w: %T for %s", ErrValueMismatch, v, s)
}
