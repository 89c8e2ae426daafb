// Package spaces describes the shape and bounds of action and observation vectors.
//
// Every space has a flat representation: a []float64 of length Dim() in canonical
// order. Structured spaces (Tuple, Dict) concatenate their parts; Dict orders parts by
// key. Flatten and Unflatten convert between structured values and the flat form.
package spaces

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
)

// ErrInvalidSpace is returned when a space cannot be constructed from its arguments.
var ErrInvalidSpace = errors.New("spaces: invalid space")

// Space is the shape and bounds of a vector.
type Space interface {
	// Dim is the length of the flat representation.
	Dim() int
	// Shape is the logical shape; its product equals Dim for non-composite spaces.
	Shape() []int
	// Bounds returns the per-dimension lower and upper bounds of the flat form.
	Bounds() (low, high []float64)
	// IntegerDims reports, per flat dimension, whether values must be integers.
	IntegerDims() []bool
	// Contains reports whether x is a member of the space.
	Contains(x []float64) bool
	// Sample draws a uniformly distributed member (bounded dims) using r.
	Sample(r *rand.Rand) []float64
	String() string
}

// Box is a continuous n-dimensional interval.
type Box struct {
	low, high []float64
	shape     []int
}

// NewBox returns a box with the same bounds on every dimension.
func NewBox(low, high float64, shape ...int) (Box, error) {
	n, err := volume(shape)
	if err != nil {
		return Box{}, err
	}
	lo := make([]float64, n)
	hi := make([]float64, n)
	for i := range lo {
		lo[i], hi[i] = low, high
	}
	return NewBoxBounds(lo, hi, shape...)
}

// NewBoxBounds returns a box with per-dimension bounds. With no shape the box is 1-D.
func NewBoxBounds(low, high []float64, shape ...int) (Box, error) {
	if len(shape) == 0 {
		shape = []int{len(low)}
	}
	n, err := volume(shape)
	if err != nil {
		return Box{}, err
	}
	if len(low) != n || len(high) != n {
		return Box{}, fmt.Errorf("%w: box shape %v needs %d bounds, got %d/%d", ErrInvalidSpace, shape, n, len(low), len(high))
	}
	for i := range low {
		if math.IsNaN(low[i]) || math.IsNaN(high[i]) || low[i] > high[i] {
			return Box{}, fmt.Errorf("%w: box dim %d has bounds [%v, %v]", ErrInvalidSpace, i, low[i], high[i])
		}
	}
	return Box{low: slices.Clone(low), high: slices.Clone(high), shape: slices.Clone(shape)}, nil
}

// MustBox is NewBox that panics on error. For package-level and adapter constants.
func MustBox(low, high float64, shape ...int) Box {
	b, err := NewBox(low, high, shape...)
	if err != nil {
		panic(err)
	}
	return b
}

func (b Box) Dim() int       { return len(b.low) }
func (b Box) Shape() []int   { return slices.Clone(b.shape) }
func (b Box) String() string { return fmt.Sprintf("Box(%v)", b.shape) }

func (b Box) Bounds() ([]float64, []float64) {
	return slices.Clone(b.low), slices.Clone(b.high)
}

func (b Box) IntegerDims() []bool {
	return make([]bool, len(b.low))
}

func (b Box) Contains(x []float64) bool {
	if len(x) != len(b.low) {
		return false
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < b.low[i] || v > b.high[i] {
			return false
		}
	}
	return true
}

func (b Box) Sample(r *rand.Rand) []float64 {
	out := make([]float64, len(b.low))
	for i := range out {
		lo, hi := b.low[i], b.high[i]
		switch {
		case !math.IsInf(lo, 0) && !math.IsInf(hi, 0):
			out[i] = lo + r.Float64()*(hi-lo)
		case !math.IsInf(lo, 0):
			out[i] = lo + r.ExpFloat64()
		case !math.IsInf(hi, 0):
			out[i] = hi - r.ExpFloat64()
		default:
			out[i] = r.NormFloat64()
		}
	}
	return out
}

// Discrete is a single integer in [Start, Start+N).
type Discrete struct {
	N     int
	Start int
}

// NewDiscrete returns the space {start, ..., start+n-1}.
func NewDiscrete(n, start int) (Discrete, error) {
	if n <= 0 {
		return Discrete{}, fmt.Errorf("%w: discrete space needs n > 0, got %d", ErrInvalidSpace, n)
	}
	return Discrete{N: n, Start: start}, nil
}

func (d Discrete) Dim() int            { return 1 }
func (d Discrete) Shape() []int        { return []int{} }
func (d Discrete) IntegerDims() []bool { return []bool{true} }
func (d Discrete) String() string      { return fmt.Sprintf("Discrete(%d)", d.N) }

func (d Discrete) Bounds() ([]float64, []float64) {
	return []float64{float64(d.Start)}, []float64{float64(d.Start + d.N - 1)}
}

func (d Discrete) Contains(x []float64) bool {
	return len(x) == 1 && isInt(x[0]) && x[0] >= float64(d.Start) && x[0] < float64(d.Start+d.N)
}

func (d Discrete) Sample(r *rand.Rand) []float64 {
	return []float64{float64(d.Start + r.IntN(d.N))}
}

// MultiDiscrete is a vector of integers, dimension i in [0, Nvec[i]).
type MultiDiscrete struct {
	nvec []int
}

func NewMultiDiscrete(nvec ...int) (MultiDiscrete, error) {
	if len(nvec) == 0 {
		return MultiDiscrete{}, fmt.Errorf("%w: multi-discrete space needs at least one dimension", ErrInvalidSpace)
	}
	for i, n := range nvec {
		if n <= 0 {
			return MultiDiscrete{}, fmt.Errorf("%w: multi-discrete dim %d has n=%d", ErrInvalidSpace, i, n)
		}
	}
	return MultiDiscrete{nvec: slices.Clone(nvec)}, nil
}

// Nvec returns the number of choices per dimension.
func (m MultiDiscrete) Nvec() []int    { return slices.Clone(m.nvec) }
func (m MultiDiscrete) Dim() int       { return len(m.nvec) }
func (m MultiDiscrete) Shape() []int   { return []int{len(m.nvec)} }
func (m MultiDiscrete) String() string { return fmt.Sprintf("MultiDiscrete(%v)", m.nvec) }

func (m MultiDiscrete) Bounds() ([]float64, []float64) {
	low := make([]float64, len(m.nvec))
	high := make([]float64, len(m.nvec))
	for i, n := range m.nvec {
		high[i] = float64(n - 1)
	}
	return low, high
}

func (m MultiDiscrete) IntegerDims() []bool {
	out := make([]bool, len(m.nvec))
	for i := range out {
		out[i] = true
	}
	return out
}

func (m MultiDiscrete) Contains(x []float64) bool {
	if len(x) != len(m.nvec) {
		return false
	}
	for i, v := range x {
		if !isInt(v) || v < 0 || v >= float64(m.nvec[i]) {
			return false
		}
	}
	return true
}

func (m MultiDiscrete) Sample(r *rand.Rand) []float64 {
	out := make([]float64, len(m.nvec))
	for i, n := range m.nvec {
		out[i] = float64(r.IntN(n))
	}
	return out
}

// Tuple concatenates its parts in order.
type Tuple struct {
	parts []Space
}

func NewTuple(parts ...Space) (Tuple, error) {
	if len(parts) == 0 {
		return Tuple{}, fmt.Errorf("%w: empty tuple", ErrInvalidSpace)
	}
	return Tuple{parts: slices.Clone(parts)}, nil
}

// Parts returns the subspaces.
func (t Tuple) Parts() []Space { return slices.Clone(t.parts) }

func (t Tuple) Dim() int                       { return sumDims(t.parts) }
func (t Tuple) Shape() []int                   { return []int{t.Dim()} }
func (t Tuple) Bounds() ([]float64, []float64) { return concatBounds(t.parts) }
func (t Tuple) IntegerDims() []bool            { return concatIntegerDims(t.parts) }
func (t Tuple) Contains(x []float64) bool      { return containsParts(t.parts, x) }
func (t Tuple) Sample(r *rand.Rand) []float64  { return sampleParts(t.parts, r) }

func (t Tuple) String() string {
	names := make([]string, len(t.parts))
	for i, p := range t.parts {
		names[i] = p.String()
	}
	return "Tuple(" + strings.Join(names, ", ") + ")"
}

// Dict is a set of named subspaces, flattened in sorted key order.
type Dict struct {
	keys  []string
	parts []Space
}

func NewDict(parts map[string]Space) (Dict, error) {
	if len(parts) == 0 {
		return Dict{}, fmt.Errorf("%w: empty dict", ErrInvalidSpace)
	}
	keys := make([]string, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	ordered := make([]Space, len(keys))
	for i, k := range keys {
		ordered[i] = parts[k]
	}
	return Dict{keys: keys, parts: ordered}, nil
}

// Keys returns the subspace names in flattening order.
func (d Dict) Keys() []string { return slices.Clone(d.keys) }

func (d Dict) Dim() int                       { return sumDims(d.parts) }
func (d Dict) Shape() []int                   { return []int{d.Dim()} }
func (d Dict) Bounds() ([]float64, []float64) { return concatBounds(d.parts) }
func (d Dict) IntegerDims() []bool            { return concatIntegerDims(d.parts) }
func (d Dict) Contains(x []float64) bool      { return containsParts(d.parts, x) }
func (d Dict) Sample(r *rand.Rand) []float64  { return sampleParts(d.parts, r) }

func (d Dict) String() string {
	names := make([]string, len(d.keys))
	for i, k := range d.keys {
		names[i] = k + ": " + d.parts[i].String()
	}
	return "Dict(" + strings.Join(names, ", ") + ")"
}

func volume(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrInvalidSpace)
	}
	n := 1
	for _, s := range shape {
		if s <= 0 {
			return 0, fmt.Errorf("%w: shape %v has a non-positive dimension", ErrInvalidSpace, shape)
		}
		n *= s
	}
	return n, nil
}

func isInt(v float64) bool {
	return !math.IsInf(v, 0) && v == math.Trunc(v)
}

func sumDims(parts []Space) int {
	n := 0
	for _, p := range parts {
		n += p.Dim()
	}
	return n
}

func concatBounds(parts []Space) ([]float64, []float64) {
	var low, high []float64
	for _, p := range parts {
		lo, hi := p.Bounds()
		low = append(low, lo...)
		high = append(high, hi...)
	}
	return low, high
}

func concatIntegerDims(parts []Space) []bool {
	var out []bool
	for _, p := range parts {
		out = append(out, p.IntegerDims()...)
	}
	return out
}

func containsParts(parts []Space, x []float64) bool {
	if len(x) != sumDims(parts) {
		return false
	}
	off := 0
	for _, p := range parts {
		n := p.Dim()
		if !p.Contains(x[off : off+n]) {
			return false
		}
		off += n
	}
	return true
}

func sampleParts(parts []Space, r *rand.Rand) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p.Sample(r)...)
	}
	return out
}
