package spaces

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox(t *testing.T) {
	b, err := NewBox(0, 1000, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 12, b.Dim())
	assert.Equal(t, []int{3, 4}, b.Shape())

	in := make([]float64, 12)
	assert.True(t, b.Contains(in))
	in[5] = 1000.5
	assert.False(t, b.Contains(in))
	in[5] = math.NaN()
	assert.False(t, b.Contains(in))
	assert.False(t, b.Contains(make([]float64, 11)))

	t.Run("unbounded rejects infinities", func(t *testing.T) {
		u := MustBox(math.Inf(-1), math.Inf(1), 2)
		assert.True(t, u.Contains([]float64{-1e300, 1e300}))
		assert.False(t, u.Contains([]float64{math.Inf(1), 0}))
		assert.False(t, u.Contains([]float64{0, math.Inf(-1)}))
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := NewBox(1, 0, 2)
		assert.ErrorIs(t, err, ErrInvalidSpace)
		_, err = NewBox(0, 1)
		assert.ErrorIs(t, err, ErrInvalidSpace)
		_, err = NewBox(0, 1, 0)
		assert.ErrorIs(t, err, ErrInvalidSpace)
		_, err = NewBoxBounds([]float64{0}, []float64{1, 2})
		assert.ErrorIs(t, err, ErrInvalidSpace)
	})

	t.Run("bounds are copies", func(t *testing.T) {
		low, _ := b.Bounds()
		low[0] = -5
		again, _ := b.Bounds()
		assert.Equal(t, 0.0, again[0])
	})
}

func TestSampleStaysInSpace(t *testing.T) {
	box := MustBox(-2, 3, 5)
	unbounded, err := NewBoxBounds([]float64{math.Inf(-1), 0, math.Inf(-1)}, []float64{math.Inf(1), math.Inf(1), 1})
	require.NoError(t, err)
	disc, err := NewDiscrete(4, 1)
	require.NoError(t, err)
	multi, err := NewMultiDiscrete(2, 2, 3)
	require.NoError(t, err)
	tuple, err := NewTuple(box, disc)
	require.NoError(t, err)
	dict, err := NewDict(map[string]Space{"split": multi, "load": box})
	require.NoError(t, err)

	r := rand.New(rand.NewPCG(1, 2))
	for _, s := range []Space{box, unbounded, disc, multi, tuple, dict} {
		t.Run(s.String(), func(t *testing.T) {
			for range 200 {
				x := s.Sample(r)
				require.Len(t, x, s.Dim())
				require.True(t, s.Contains(x), "%v not in %s", x, s)
			}
		})
	}
}

func TestSampleIsDeterministicPerGenerator(t *testing.T) {
	s := MustBox(0, 1, 8)
	a := s.Sample(rand.New(rand.NewPCG(7, 7)))
	b := s.Sample(rand.New(rand.NewPCG(7, 7)))
	assert.Equal(t, a, b)
}

func TestDiscreteSpaces(t *testing.T) {
	d, err := NewDiscrete(3, 0)
	require.NoError(t, err)
	assert.True(t, d.Contains([]float64{2}))
	assert.False(t, d.Contains([]float64{3}))
	assert.False(t, d.Contains([]float64{0.5}))
	assert.Equal(t, []bool{true}, d.IntegerDims())

	_, err = NewDiscrete(0, 0)
	assert.ErrorIs(t, err, ErrInvalidSpace)

	m, err := NewMultiDiscrete(2, 2)
	require.NoError(t, err)
	assert.True(t, m.Contains([]float64{0, 1}))
	assert.False(t, m.Contains([]float64{0, 2}))
	assert.False(t, m.Contains([]float64{math.Inf(1), 0}))
	low, high := m.Bounds()
	assert.Equal(t, []float64{0, 0}, low)
	assert.Equal(t, []float64{1, 1}, high)
}

func TestCompositeBounds(t *testing.T) {
	d, err := NewDict(map[string]Space{
		"b": MustBox(0, 1, 2),
		"a": MultiDiscrete{nvec: []int{3}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, d.Keys())
	assert.Equal(t, 3, d.Dim())

	low, high := d.Bounds()
	assert.Equal(t, []float64{0, 0, 0}, low)
	assert.Equal(t, []float64{2, 1, 1}, high)
	assert.Equal(t, []bool{true, false, false}, d.IntegerDims())
}

func TestFlattenRoundTrip(t *testing.T) {
	disc, err := NewDiscrete(5, 0)
	require.NoError(t, err)
	multi, err := NewMultiDiscrete(2, 2)
	require.NoError(t, err)
	inner, err := NewTuple(disc, MustBox(-1, 1, 2))
	require.NoError(t, err)
	dict, err := NewDict(map[string]Space{"steer": multi, "pair": inner, "load": MustBox(0, 10, 3)})
	require.NoError(t, err)

	value := map[string]any{
		"steer": []int{1, 0},
		"pair":  []any{3, []float64{-0.5, 0.25}},
		"load":  []float64{1, 2, 3},
	}

	flat, err := Flatten(dict, value)
	require.NoError(t, err)
	// keys in order: load, pair, steer
	assert.Equal(t, []float64{1, 2, 3, 3, -0.5, 0.25, 1, 0}, flat)
	assert.True(t, dict.Contains(flat))

	back, err := Unflatten(dict, flat)
	require.NoError(t, err)
	assert.Equal(t, value, back)

	box, err := FlatBox(dict)
	require.NoError(t, err)
	assert.Equal(t, []int{8}, box.Shape())
}

func TestFlattenMismatch(t *testing.T) {
	dict, err := NewDict(map[string]Space{"a": MustBox(0, 1, 1)})
	require.NoError(t, err)

	_, err = Flatten(dict, map[string]any{"b": []float64{0}})
	assert.ErrorIs(t, err, ErrValueMismatch)
	_, err = Flatten(dict, []float64{0})
	assert.ErrorIs(t, err, ErrValueMismatch)
	_, err = Unflatten(dict, []float64{0, 1})
	assert.ErrorIs(t, err, ErrValueMismatch)
}
