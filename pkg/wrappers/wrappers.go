// Package wrappers composes observation and action transforms around a core.Env.
// Every wrapper implements core.Env itself, so they stack as plain decorators.
package wrappers

import (
	"errors"
	"fmt"

	"github.com/boristopalov/networkgym/pkg/core"
)

// ErrUnsupportedSpace is returned when a wrapper cannot transform the wrapped space.
var ErrUnsupportedSpace = errors.New("wrappers: unsupported space")

// Range is a closed interval of action values.
type Range struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Options selects the wrappers Apply installs.
type Options struct {
	Clip bool `yaml:"clip"`
	// Rescale exposes actions in this range instead of the native bounds.
	Rescale   *Range `yaml:"rescale"`
	Normalize bool   `yaml:"normalize"`
	Flatten   bool   `yaml:"flatten"`
	TimeAware bool   `yaml:"time_aware"`
}

// Apply wraps env in the fixed order clip, rescale, normalize, flatten, time-aware:
// clip sits next to env and time-aware is outermost.
func Apply(env core.Env, opts Options) (core.Env, error) {
	if opts.Clip {
		env = NewClip(env)
	}
	if opts.Rescale != nil {
		r, err := NewRescale(env, opts.Rescale.Low, opts.Rescale.High)
		if err != nil {
			return nil, fmt.Errorf("wrappers: rescale: %w", err)
		}
		env = r
	}
	if opts.Normalize {
		env = NewNormalize(env)
	}
	if opts.Flatten {
		f, err := NewFlatten(env)
		if err != nil {
			return nil, fmt.Errorf("wrappers: flatten: %w", err)
		}
		env = f
	}
	if opts.TimeAware {
		ta, err := NewTimeAware(env)
		if err != nil {
			return nil, fmt.Errorf("wrappers: time aware: %w", err)
		}
		env = ta
	}
	return env, nil
}

// Unwrapper is implemented by every wrapper in this package.
type Unwrapper interface {
	Unwrap() core.Env
}

// Inner returns the env at the bottom of a wrapper stack.
func Inner(env core.Env) core.Env {
	for {
		u, ok := env.(Unwrapper)
		if !ok {
			return env
		}
		env = u.Unwrap()
	}
}
