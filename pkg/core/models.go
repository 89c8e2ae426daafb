package core

import (
	"time"

	"github.com/boristopalov/networkgym/pkg/measurement"
)

// Spec is the static description of an environment.
type Spec struct {
	Name               string
	ClientID           string
	StepsPerEpisode    int
	EpisodesPerSession int
}

// ResetOptions configures Reset. A nil Seed leaves the remote generator alone.
type ResetOptions struct {
	Seed *uint64
}

// Info is the auxiliary data returned with every observation.
type Info struct {
	Episode  int
	Step     int
	Timestep int64
	// Table is the aggregated measurement the observation was built from.
	Table *measurement.Table
	// SeedApplied is false when a seed was requested but the remote did not apply it.
	SeedApplied       bool
	TerminationReason string
	// Extra holds values added by wrappers and adapters.
	Extra map[string]any
}

// StepResult is the outcome of one Step.
type StepResult struct {
	Observation []float64
	Reward      float64
	Terminated  bool
	Truncated   bool
	Info        Info
}

// Done reports whether the episode ended, for either reason.
func (r StepResult) Done() bool {
	return r.Terminated || r.Truncated
}

type ExperimentStatus struct {
	Running   bool
	StartTime time.Time
	EndTime   time.Time
	Episodes  int
	Steps     int
	Errors    []error
}
