// Package experiment drives environments with agents and records what happens.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boristopalov/networkgym/pkg/agent"
	"github.com/boristopalov/networkgym/pkg/core"
	"github.com/boristopalov/networkgym/pkg/environment"
	"github.com/boristopalov/networkgym/pkg/memory"
	"github.com/boristopalov/networkgym/pkg/recorder"
	"github.com/boristopalov/networkgym/pkg/wrappers"
)

const defaultWindow = 10

// Runner plays every episode of one environment session with one agent.
type Runner struct {
	env     core.Env
	agent   agent.Agent
	rec     recorder.Recorder
	logger  *slog.Logger
	runID   uuid.UUID
	seed    *uint64
	returns *memory.Memory[float64]

	mu      sync.RWMutex
	status  core.ExperimentStatus
	cancel  context.CancelFunc
	stopped bool
}

type Option func(*Runner)

// WithRecorder sets the statistics sink. Records are discarded by default.
func WithRecorder(rec recorder.Recorder) Option {
	return func(r *Runner) {
		r.rec = rec
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithSeed seeds the first reset of the session.
func WithSeed(seed uint64) Option {
	return func(r *Runner) {
		r.seed = &seed
	}
}

func WithRunID(id uuid.UUID) Option {
	return func(r *Runner) {
		r.runID = id
	}
}

// WithWindow sets how many recent episode returns the logged moving average covers.
func WithWindow(n int) Option {
	return func(r *Runner) {
		r.returns = memory.NewMemory[float64](n)
	}
}

// NewRunner builds a runner for env. The run id defaults to the one of the
// innermost environment when it has one.
func NewRunner(env core.Env, a agent.Agent, opts ...Option) *Runner {
	r := &Runner{
		env:     env,
		agent:   a,
		rec:     recorder.Discard{},
		logger:  slog.Default(),
		returns: memory.NewMemory[float64](defaultWindow),
	}
	if inner, ok := wrappers.Inner(env).(interface{ RunID() uuid.UUID }); ok {
		r.runID = inner.RunID()
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == uuid.Nil {
		r.runID = uuid.New()
	}
	r.logger = r.logger.With("client", env.Spec().ClientID, "agent", a.ID())
	return r
}

// RunID identifies the run in recorded statistics.
func (r *Runner) RunID() uuid.UUID {
	return r.runID
}

// Run plays episodes until the session's episode limit is reached, ctx is done or
// Stop is called. Reaching the limit and stopping are not errors.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.status.Running {
		r.mu.Unlock()
		return errors.New("experiment: already running")
	}
	r.status.Running = true
	r.status.StartTime = time.Now()
	r.cancel = cancel
	r.stopped = false
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.status.Running = false
		r.status.EndTime = time.Now()
		r.cancel = nil
		r.mu.Unlock()
	}()

	err := r.runLoop(ctx)
	r.mu.RLock()
	stopped := r.stopped
	r.mu.RUnlock()
	switch {
	case err == nil, stopped:
		return nil
	default:
		r.mu.Lock()
		r.status.Errors = append(r.status.Errors, err)
		r.mu.Unlock()
		return err
	}
}

func (r *Runner) runLoop(ctx context.Context) error {
	opts := core.ResetOptions{Seed: r.seed}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := r.runEpisode(ctx, opts)
		if environment.IsEndOfSession(err) {
			last, _ := r.returns.Last()
			r.logger.Info("session finished",
				"episodes", r.GetStatus().Episodes,
				"last_return", last,
				"avg_return", memory.Mean(r.returns),
			)
			return nil
		}
		if err != nil {
			return err
		}
		opts = core.ResetOptions{}
	}
}

func (r *Runner) runEpisode(ctx context.Context, opts core.ResetOptions) error {
	obs, info, err := r.env.Reset(ctx, opts)
	if err != nil {
		return err
	}
	ep := recorder.Episode{
		RunID:     r.runID,
		Client:    r.env.Spec().ClientID,
		Episode:   info.Episode,
		StartedAt: time.Now(),
	}

	var (
		rewards []float64
		res     core.StepResult
	)
	for !res.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		action, err := r.agent.Act(ctx, obs, info)
		if err != nil {
			return fmt.Errorf("agent %s: %w", r.agent.ID(), err)
		}
		res, err = r.env.Step(ctx, action)
		if err != nil {
			return err
		}
		if err := r.agent.Observe(ctx, res); err != nil {
			return fmt.Errorf("agent %s: %w", r.agent.ID(), err)
		}
		if err := r.rec.RecordStep(ctx, recorder.Step{
			RunID:       r.runID,
			Client:      ep.Client,
			Episode:     res.Info.Episode,
			Step:        res.Info.Step,
			Timestep:    res.Info.Timestep,
			Action:      action,
			Observation: res.Observation,
			Reward:      res.Reward,
			Terminated:  res.Terminated,
			Truncated:   res.Truncated,
		}); err != nil {
			r.logger.Warn("record step", "error", err)
		}

		rewards = append(rewards, res.Reward)
		obs, info = res.Observation, res.Info
		r.mu.Lock()
		r.status.Steps++
		r.mu.Unlock()
	}

	ep.EndedAt = time.Now()
	ep.Terminated, ep.Truncated = res.Terminated, res.Truncated
	ep.Reason = res.Info.TerminationReason
	ep = recorder.Summarize(ep, rewards)
	if err := r.rec.RecordEpisode(ctx, ep); err != nil {
		r.logger.Warn("record episode", "error", err)
	}

	r.returns.Store(ep.Return)
	r.mu.Lock()
	r.status.Episodes++
	r.mu.Unlock()
	r.logger.Info("episode finished",
		"episode", ep.Episode,
		"steps", ep.Steps,
		"return", ep.Return,
		"mean_reward", ep.MeanReward,
		"avg_return", memory.Mean(r.returns),
		"terminated", ep.Terminated,
	)
	return nil
}

// Stop cancels a running Run, which then returns nil.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return nil
	}
	r.stopped = true
	r.cancel()
	return nil
}

func (r *Runner) GetStatus() core.ExperimentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status := r.status
	status.Errors = slices.Clone(r.status.Errors)
	return status
}

// RecentReturns returns the returns of the latest episodes, oldest first.
func (r *Runner) RecentReturns() []float64 {
	return r.returns.All()
}

var _ core.Experiment = (*Runner)(nil)
