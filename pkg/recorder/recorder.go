// Package recorder persists per-step and per-episode statistics of environment runs.
package recorder

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// Step is one recorded environment step.
type Step struct {
	RunID       uuid.UUID
	Client      string
	Episode     int
	Step        int
	Timestep    int64
	Action      []float64
	Observation []float64
	Reward      float64
	Terminated  bool
	Truncated   bool
}

// Episode summarizes one finished episode.
type Episode struct {
	RunID      uuid.UUID
	Client     string
	Episode    int
	Steps      int
	Return     float64
	MeanReward float64
	StdReward  float64
	MinReward  float64
	MaxReward  float64
	Terminated bool
	Truncated  bool
	Reason     string
	StartedAt  time.Time
	EndedAt    time.Time
}

// Recorder is a statistics sink. Implementations are safe for concurrent use by
// several runs.
type Recorder interface {
	RecordStep(ctx context.Context, s Step) error
	RecordEpisode(ctx context.Context, e Episode) error
	Close() error
}

// Summarize fills the reward statistics of e from the rewards of its steps.
func Summarize(e Episode, rewards []float64) Episode {
	e.Steps = len(rewards)
	if len(rewards) == 0 {
		return e
	}
	e.MinReward, e.MaxReward = math.Inf(1), math.Inf(-1)
	var total float64
	for _, r := range rewards {
		total += r
		e.MinReward = math.Min(e.MinReward, r)
		e.MaxReward = math.Max(e.MaxReward, r)
	}
	e.Return = total
	e.MeanReward = total / float64(len(rewards))

	var sumSquares float64
	for _, r := range rewards {
		diff := r - e.MeanReward
		sumSquares += diff * diff
	}
	e.StdReward = math.Sqrt(sumSquares / float64(len(rewards)))
	return e
}

// Multi fans every record out to all recorders.
type Multi []Recorder

func (m Multi) RecordStep(ctx context.Context, s Step) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordStep(ctx, s))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordEpisode(ctx context.Context, e Episode) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordEpisode(ctx, e))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}

// Discard drops everything.
type Discard struct{}

func (Discard) RecordStep(context.Context, Step) error       { return nil }
func (Discard) RecordEpisode(context.Context, Episode) error { return nil }
func (Discard) Close() error                                 { return nil }
