package core

import (
	"context"

	"github.com/boristopalov/networkgym/pkg/spaces"
)

// Env is the reset/step contract consumed by training loops. Reset and Step must not be
// called concurrently on the same Env.
type Env interface {
	// Reset opens a new episode and returns its first observation
	Reset(ctx context.Context, opts ResetOptions) ([]float64, Info, error)
	// Step applies one action and advances the episode by one timestep
	Step(ctx context.Context, action []float64) (StepResult, error)
	// ObservationSpace describes the vectors returned by Reset and Step
	ObservationSpace() spaces.Space
	// ActionSpace describes the vectors accepted by Step
	ActionSpace() spaces.Space
	// Spec returns the static limits the env was configured with
	Spec() Spec
	// Close releases the session; safe to call more than once
	Close() error
}

// Experiment coordinates a run of one or more environments
type Experiment interface {
	// Run executes the experiment according to configuration
	Run(ctx context.Context) error
	// Stop gracefully stops the experiment
	Stop() error
	// GetStatus returns current experiment status
	GetStatus() ExperimentStatus
}
