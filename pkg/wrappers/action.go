package wrappers

import (
	"context"
	"fmt"
	"math"

	"github.com/boristopalov/networkgym/pkg/core"
	"github.com/boristopalov/networkgym/pkg/spaces"
)

// Clip clamps every action into the bounds of the wrapped action space before
// forwarding it. Integer dimensions are also rounded.
type Clip struct {
	core.Env
}

func NewClip(env core.Env) *Clip {
	return &Clip{Env: env}
}

func (c *Clip) Unwrap() core.Env { return c.Env }

func (c *Clip) Step(ctx context.Context, action []float64) (core.StepResult, error) {
	return c.Env.Step(ctx, c.clip(action))
}

func (c *Clip) clip(action []float64) []float64 {
	if len(action) == 0 {
		return action
	}
	space := c.Env.ActionSpace()
	low, high := space.Bounds()
	if len(action) != len(low) {
		// The wrapped env reports the size mismatch.
		return action
	}
	ints := space.IntegerDims()
	out := make([]float64, len(action))
	for i, v := range action {
		if ints[i] {
			v = math.Round(v)
		}
		out[i] = clamp(v, low[i], high[i])
	}
	return out
}

// Rescale exposes a [low, high] action box and maps it affinely onto the wrapped
// action bounds. The endpoints map exactly.
type Rescale struct {
	core.Env
	low, high float64
	space     spaces.Box
	innerLow  []float64
	innerHigh []float64
}

// NewRescale fails for action spaces with integer or unbounded dimensions.
func NewRescale(env core.Env, low, high float64) (*Rescale, error) {
	if !(low < high) || math.IsInf(low, 0) || math.IsInf(high, 0) {
		return nil, fmt.Errorf("%w: rescale range [%v, %v]", ErrUnsupportedSpace, low, high)
	}
	inner := env.ActionSpace()
	for i, integer := range inner.IntegerDims() {
		if integer {
			return nil, fmt.Errorf("%w: %s has integer dimension %d", ErrUnsupportedSpace, inner, i)
		}
	}
	innerLow, innerHigh := inner.Bounds()
	for i := range innerLow {
		if math.IsInf(innerLow[i], 0) || math.IsInf(innerHigh[i], 0) {
			return nil, fmt.Errorf("%w: %s is unbounded in dimension %d", ErrUnsupportedSpace, inner, i)
		}
	}
	space, err := spaces.NewBox(low, high, inner.Dim())
	if err != nil {
		return nil, err
	}
	return &Rescale{
		Env:       env,
		low:       low,
		high:      high,
		space:     space,
		innerLow:  innerLow,
		innerHigh: innerHigh,
	}, nil
}

func (r *Rescale) Unwrap() core.Env          { return r.Env }
func (r *Rescale) ActionSpace() spaces.Space { return r.space }

func (r *Rescale) Step(ctx context.Context, action []float64) (core.StepResult, error) {
	return r.Env.Step(ctx, r.Map(action))
}

// Map converts an action from the exposed range to the wrapped bounds. Values outside
// [low, high] extrapolate; a Clip below the rescale catches them.
func (r *Rescale) Map(action []float64) []float64 {
	if len(action) == 0 || len(action) != len(r.innerLow) {
		return action
	}
	out := make([]float64, len(action))
	for i, a := range action {
		t := (a - r.low) / (r.high - r.low)
		lo, hi := r.innerLow[i], r.innerHigh[i]
		v := lo*(1-t) + hi*t
		if t >= 0 && t <= 1 {
			v = clamp(v, lo, hi)
		}
		out[i] = v
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
