package wrappers

import (
	"context"
	"math"
	"slices"

	"github.com/boristopalov/networkgym/pkg/core"
	"github.com/boristopalov/networkgym/pkg/spaces"
)

const normalizeEpsilon = 1e-8

// Normalize standardizes observations with a running per-dimension mean and variance
// (Welford). The statistics survive episode resets and are cleared only by building a
// new wrapper.
type Normalize struct {
	core.Env
	count int64
	mean  []float64
	m2    []float64
}

func NewNormalize(env core.Env) *Normalize {
	n := env.ObservationSpace().Dim()
	return &Normalize{Env: env, mean: make([]float64, n), m2: make([]float64, n)}
}

func (n *Normalize) Unwrap() core.Env { return n.Env }

func (n *Normalize) ObservationSpace() spaces.Space {
	return spaces.MustBox(math.Inf(-1), math.Inf(1), n.Env.ObservationSpace().Dim())
}

func (n *Normalize) Reset(ctx context.Context, opts core.ResetOptions) ([]float64, core.Info, error) {
	obs, info, err := n.Env.Reset(ctx, opts)
	if err != nil {
		return nil, info, err
	}
	return n.normalize(obs), info, nil
}

func (n *Normalize) Step(ctx context.Context, action []float64) (core.StepResult, error) {
	res, err := n.Env.Step(ctx, action)
	if err != nil {
		return res, err
	}
	res.Observation = n.normalize(res.Observation)
	return res, nil
}

// Stats returns the sample count and the running mean and population variance.
func (n *Normalize) Stats() (int64, []float64, []float64) {
	variance := make([]float64, len(n.m2))
	if n.count > 0 {
		for i, m := range n.m2 {
			variance[i] = m / float64(n.count)
		}
	}
	return n.count, slices.Clone(n.mean), variance
}

func (n *Normalize) normalize(obs []float64) []float64 {
	n.count++
	out := make([]float64, len(obs))
	for i, x := range obs {
		delta := x - n.mean[i]
		n.mean[i] += delta / float64(n.count)
		n.m2[i] += delta * (x - n.mean[i])
		variance := n.m2[i] / float64(n.count)
		out[i] = (x - n.mean[i]) / math.Sqrt(variance+normalizeEpsilon)
	}
	return out
}

// Flatten exposes the observation space as a single 1-D box. Observations already
// travel flat; Structured recovers the structured value.
type Flatten struct {
	core.Env
	flat spaces.Box
}

func NewFlatten(env core.Env) (*Flatten, error) {
	flat, err := spaces.FlatBox(env.ObservationSpace())
	if err != nil {
		return nil, err
	}
	return &Flatten{Env: env, flat: flat}, nil
}

func (f *Flatten) Unwrap() core.Env               { return f.Env }
func (f *Flatten) ObservationSpace() spaces.Space { return f.flat }

// Structured maps a flat observation back onto the wrapped observation space.
func (f *Flatten) Structured(obs []float64) (any, error) {
	return spaces.Unflatten(f.Env.ObservationSpace(), obs)
}

// TimeAware appends the number of steps left in the episode to every observation.
type TimeAware struct {
	core.Env
	steps int
	space spaces.Box
}

func NewTimeAware(env core.Env) (*TimeAware, error) {
	steps := env.Spec().StepsPerEpisode
	low, high := env.ObservationSpace().Bounds()
	space, err := spaces.NewBoxBounds(append(low, 0), append(high, float64(steps)))
	if err != nil {
		return nil, err
	}
	return &TimeAware{Env: env, steps: steps, space: space}, nil
}

func (t *TimeAware) Unwrap() core.Env               { return t.Env }
func (t *TimeAware) ObservationSpace() spaces.Space { return t.space }

func (t *TimeAware) Reset(ctx context.Context, opts core.ResetOptions) ([]float64, core.Info, error) {
	obs, info, err := t.Env.Reset(ctx, opts)
	if err != nil {
		return nil, info, err
	}
	return t.augment(obs, info.Step), info, nil
}

func (t *TimeAware) Step(ctx context.Context, action []float64) (core.StepResult, error) {
	res, err := t.Env.Step(ctx, action)
	if err != nil {
		return res, err
	}
	res.Observation = t.augment(res.Observation, res.Info.Step)
	return res, nil
}

func (t *TimeAware) augment(obs []float64, step int) []float64 {
	remaining := max(t.steps-step, 0)
	return append(slices.Clone(obs), float64(remaining))
}
