// Package environment drives one NetworkGym session as a reset/step RL environment.
// It owns the wire session, counts episodes and steps, and turns the measurement
// reports of every timestep into observations and rewards through an adapter.
package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/boristopalov/networkgym/internal/telemetry"
	"github.com/boristopalov/networkgym/pkg/adapter"
	"github.com/boristopalov/networkgym/pkg/core"
	"github.com/boristopalov/networkgym/pkg/measurement"
	"github.com/boristopalov/networkgym/pkg/northbound"
	"github.com/boristopalov/networkgym/pkg/spaces"
)

const instrumentation = "github.com/boristopalov/networkgym/pkg/environment"

// Config is what an Env needs to open its session.
type Config struct {
	// EnvName selects the remote scenario, e.g. nqos_split.
	EnvName            string
	EpisodesPerSession int
	StepsPerEpisode    int
	// Endpoint carries the server address and the client identity.
	Endpoint northbound.Endpoint
	// EnvConfig is sent verbatim with env-start.
	EnvConfig map[string]any
	// Mergeable lists metric keys that may repeat across the reports of one timestep.
	Mergeable []string
}

func (c Config) validate() error {
	switch {
	case c.EnvName == "":
		return fmt.Errorf("%w: env name is required", ErrInvalidConfig)
	case c.Endpoint.Identity == "":
		return fmt.Errorf("%w: client identity is required", ErrInvalidConfig)
	case c.EpisodesPerSession < 1:
		return fmt.Errorf("%w: episodes per session must be at least 1, got %d", ErrInvalidConfig, c.EpisodesPerSession)
	case c.StepsPerEpisode < 1:
		return fmt.Errorf("%w: steps per episode must be at least 1, got %d", ErrInvalidConfig, c.StepsPerEpisode)
	}
	return nil
}

// Env implements core.Env over a northbound session. Reset and Step must not be
// called concurrently.
type Env struct {
	cfg       Config
	adapter   adapter.Adapter
	session   *northbound.Session
	agg       measurement.Aggregator
	logger    *slog.Logger
	rng       *rand.Rand
	runID     uuid.UUID
	tracer    trace.Tracer
	telemetry envMetrics

	mu    sync.Mutex
	state State
	// exhausted is set when the episode limit closed the session.
	exhausted bool

	episode  int
	step     int
	timestep int64
	started  bool
}

type envMetrics struct {
	steps    metric.Int64Counter
	episodes metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

type Option func(*Env)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Env) {
		e.logger = l
	}
}

// WithRand sets the generator behind SampleAction. A seeded Reset replaces it.
func WithRand(r *rand.Rand) Option {
	return func(e *Env) {
		e.rng = r
	}
}

// New checks cfg and the adapter spaces, then connects. The returned Env is in
// SessionOpen; the remote simulation starts with the first Reset.
func New(ctx context.Context, cfg Config, a adapter.Adapter, t northbound.Transport, opts ...Option) (*Env, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if a.ObservationSpace().Dim() == 0 || a.ActionSpace().Dim() == 0 {
		return nil, fmt.Errorf("%w: adapter %s declares an empty space", ErrSpaceMismatch, a.Name())
	}

	e := &Env{
		cfg:      cfg,
		adapter:  a,
		agg:      measurement.NewAggregator(cfg.Mergeable...),
		logger:   slog.Default(),
		runID:    uuid.New(),
		tracer:   telemetry.Tracer(instrumentation),
		timestep: -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	e.logger = e.logger.With("client", cfg.Endpoint.Identity, "env", cfg.EnvName, "run_id", e.runID.String())
	e.telemetry = newEnvMetrics()

	session, err := t.Connect(ctx, cfg.Endpoint)
	if err != nil {
		if !errors.Is(err, northbound.ErrConnection) {
			err = fmt.Errorf("%w: %w", northbound.ErrConnection, err)
		}
		return nil, err
	}
	e.session = session
	e.state = SessionOpen
	e.logger.Info("session open", "endpoint", cfg.Endpoint.Address(), "episodes", cfg.EpisodesPerSession, "steps", cfg.StepsPerEpisode)
	return e, nil
}

func newEnvMetrics() envMetrics {
	meter := telemetry.Meter(instrumentation)
	steps, _ := meter.Int64Counter("netgym.env.steps",
		metric.WithDescription("Completed environment steps"),
	)
	episodes, _ := meter.Int64Counter("netgym.env.episodes",
		metric.WithDescription("Opened episodes"),
	)
	failures, _ := meter.Int64Counter("netgym.env.failures",
		metric.WithDescription("Round trips that closed the session"),
	)
	latency, _ := meter.Float64Histogram("netgym.env.round_trip",
		metric.WithDescription("Time from sending a message to aggregating its measurement (ms)"),
		metric.WithUnit("ms"),
	)
	return envMetrics{steps: steps, episodes: episodes, failures: failures, latency: latency}
}

// Reset opens the next episode. The first reset starts the remote simulation; later
// ones spend one timestep under the system default policy.
func (e *Env) Reset(ctx context.Context, opts core.ResetOptions) ([]float64, core.Info, error) {
	ctx, span := e.tracer.Start(ctx, "env.reset", trace.WithAttributes(
		attribute.String("netgym.client", e.cfg.Endpoint.Identity),
		attribute.Int("netgym.episode", e.episode+1),
	))
	defer span.End()

	e.mu.Lock()
	s, exhausted := e.state, e.exhausted
	e.mu.Unlock()
	if exhausted {
		return nil, core.Info{}, fmt.Errorf("%w: all %d episodes played", ErrEpisodeLimitExceeded, e.cfg.EpisodesPerSession)
	}
	if !s.canReset() {
		return nil, core.Info{}, fmt.Errorf("%w: cannot reset in %s", ErrInvalidState, s)
	}
	if e.episode >= e.cfg.EpisodesPerSession {
		e.mu.Lock()
		e.exhausted = true
		e.mu.Unlock()
		if err := e.Close(); err != nil {
			e.logger.Warn("close session", "error", err)
		}
		return nil, core.Info{}, fmt.Errorf("%w: all %d episodes played", ErrEpisodeLimitExceeded, e.cfg.EpisodesPerSession)
	}

	var (
		frame []byte
		err   error
	)
	next := e.timestep + 1
	if !e.started {
		frame, err = northbound.EncodeStart(northbound.StartRequest{
			Identity:  e.session.Identity(),
			Env:       e.cfg.EnvName,
			Seed:      opts.Seed,
			EnvConfig: e.cfg.EnvConfig,
		})
	} else {
		frame, err = northbound.EncodePolicy(northbound.PolicyMessage{Timestep: next, Seed: opts.Seed})
	}
	if err != nil {
		return nil, core.Info{}, e.fail(ctx, span, err)
	}

	table, seeded, err := e.roundTrip(ctx, frame, next)
	if err != nil {
		return nil, core.Info{}, e.fail(ctx, span, err)
	}
	obs, err := e.observe(table)
	if err != nil {
		return nil, core.Info{}, e.fail(ctx, span, err)
	}

	e.started = true
	e.timestep = next
	e.episode++
	e.step = 0
	e.setState(EpisodeActive)

	if opts.Seed != nil {
		e.rng = rand.New(rand.NewPCG(*opts.Seed, *opts.Seed))
		if !seeded {
			e.logger.Warn("seed not applied by server", "seed", *opts.Seed)
		}
	}
	e.telemetry.episodes.Add(ctx, 1, metric.WithAttributes(attribute.String("netgym.env", e.cfg.EnvName)))
	e.logger.Info("episode started", "episode", e.episode, "timestep", e.timestep)

	return obs, core.Info{
		Episode:     e.episode,
		Step:        0,
		Timestep:    e.timestep,
		Table:       table,
		SeedApplied: opts.Seed != nil && seeded,
	}, nil
}

// Step applies action for one timestep. An empty action leaves the server on its
// system default policy.
func (e *Env) Step(ctx context.Context, action []float64) (core.StepResult, error) {
	ctx, span := e.tracer.Start(ctx, "env.step", trace.WithAttributes(
		attribute.String("netgym.client", e.cfg.Endpoint.Identity),
		attribute.Int("netgym.episode", e.episode),
		attribute.Int("netgym.step", e.step+1),
	))
	defer span.End()

	if s := e.State(); s != EpisodeActive {
		return core.StepResult{}, fmt.Errorf("%w: cannot step in %s", ErrInvalidState, s)
	}

	var actions []northbound.Record
	if len(action) > 0 {
		if !e.adapter.ActionSpace().Contains(action) {
			return core.StepResult{}, fmt.Errorf("%w: %v is not in %s", ErrInvalidAction, action, e.adapter.ActionSpace())
		}
		var err error
		if actions, err = e.adapter.Policy(action); err != nil {
			return core.StepResult{}, fmt.Errorf("%w: %w", ErrInvalidAction, err)
		}
	}

	next := e.timestep + 1
	frame, err := northbound.EncodePolicy(northbound.PolicyMessage{Timestep: next, Actions: actions})
	if err != nil {
		// Nothing was sent; the session is still in step.
		return core.StepResult{}, fmt.Errorf("%w: %w", ErrInvalidAction, err)
	}
	table, _, err := e.roundTrip(ctx, frame, next)
	if err != nil {
		return core.StepResult{}, e.fail(ctx, span, err)
	}
	obs, err := e.observe(table)
	if err != nil {
		return core.StepResult{}, e.fail(ctx, span, err)
	}
	reward, err := e.adapter.Reward(table)
	if err != nil {
		return core.StepResult{}, e.fail(ctx, span, fmt.Errorf("reward: %w", err))
	}

	e.timestep = next
	e.step++

	var (
		terminated bool
		reason     string
	)
	if !table.Valid {
		terminated, reason = true, "simulation invalid"
	} else if t, ok := e.adapter.(adapter.Terminator); ok {
		terminated, reason = t.Terminated(table)
	}
	truncated := !terminated && e.step >= e.cfg.StepsPerEpisode

	switch {
	case terminated:
		e.setState(EpisodeTerminated)
		e.logger.Info("episode terminated", "episode", e.episode, "step", e.step, "reason", reason)
	case truncated:
		e.setState(EpisodeTruncated)
		e.logger.Info("episode truncated", "episode", e.episode, "step", e.step)
	default:
		e.logger.Debug("step", "episode", e.episode, "step", e.step, "timestep", e.timestep, "reward", reward)
	}
	e.telemetry.steps.Add(ctx, 1, metric.WithAttributes(attribute.String("netgym.env", e.cfg.EnvName)))
	span.SetAttributes(attribute.Float64("netgym.reward", reward))

	return core.StepResult{
		Observation: obs,
		Reward:      reward,
		Terminated:  terminated,
		Truncated:   truncated,
		Info: core.Info{
			Episode:           e.episode,
			Step:              e.step,
			Timestep:          e.timestep,
			Table:             table,
			TerminationReason: reason,
		},
	}, nil
}

// roundTrip sends frame and collects reports for timestep until one arrives without
// the "more" flag. seeded is true when any report confirms a reseed.
func (e *Env) roundTrip(ctx context.Context, frame []byte, timestep int64) (*measurement.Table, bool, error) {
	start := time.Now()
	if err := e.session.Send(ctx, frame); err != nil {
		return nil, false, err
	}

	var (
		reports []northbound.MeasurementReport
		seeded  bool
	)
	for {
		data, err := e.session.Recv(ctx)
		if err != nil {
			return nil, false, err
		}
		report, err := northbound.DecodeReport(data)
		if err != nil {
			return nil, false, err
		}
		if report.Timestep != timestep {
			return nil, false, fmt.Errorf("%w: report for timestep %d, expected %d",
				northbound.ErrMalformedMessage, report.Timestep, timestep)
		}
		seeded = seeded || report.Seeded
		reports = append(reports, report)
		if !report.More {
			break
		}
	}

	table, err := e.agg.Aggregate(reports...)
	if err != nil {
		return nil, false, err
	}
	e.telemetry.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000)
	return table, seeded, nil
}

func (e *Env) observe(table *measurement.Table) ([]float64, error) {
	obs, err := e.adapter.Observation(table)
	if err != nil {
		return nil, fmt.Errorf("observation: %w", err)
	}
	if want := e.adapter.ObservationSpace().Dim(); len(obs) != want {
		return nil, fmt.Errorf("%w: adapter %s returned %d values, space has %d",
			ErrSpaceMismatch, e.adapter.Name(), len(obs), want)
	}
	return obs, nil
}

// fail closes the session after a broken round trip. Space mismatches keep their own
// category; everything else is reported as ErrStepFailed.
func (e *Env) fail(ctx context.Context, span trace.Span, cause error) error {
	if err := e.Close(); err != nil {
		e.logger.Warn("close session", "error", err)
	}
	e.telemetry.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("netgym.env", e.cfg.EnvName)))

	err := cause
	if !errors.Is(cause, ErrSpaceMismatch) {
		err = fmt.Errorf("%w: %w", ErrStepFailed, cause)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.logger.Error("session closed after failure", "episode", e.episode, "step", e.step, "error", err)
	return err
}

// Close ends the session. It is safe to call in any state and more than once.
func (e *Env) Close() error {
	e.mu.Lock()
	if e.state == SessionClosed {
		e.mu.Unlock()
		return nil
	}
	e.state = SessionClosed
	e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	if err := e.session.Close(); err != nil {
		return fmt.Errorf("environment: close session: %w", err)
	}
	e.logger.Info("session closed", "episodes", e.episode)
	return nil
}

// State returns the lifecycle state.
func (e *Env) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Env) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

func (e *Env) ObservationSpace() spaces.Space { return e.adapter.ObservationSpace() }
func (e *Env) ActionSpace() spaces.Space      { return e.adapter.ActionSpace() }

func (e *Env) Spec() core.Spec {
	return core.Spec{
		Name:               e.cfg.EnvName,
		ClientID:           e.cfg.Endpoint.Identity,
		StepsPerEpisode:    e.cfg.StepsPerEpisode,
		EpisodesPerSession: e.cfg.EpisodesPerSession,
	}
}

// RunID identifies this session in logs and recorded statistics.
func (e *Env) RunID() uuid.UUID {
	return e.runID
}

// SampleAction draws a uniform action from the action space.
func (e *Env) SampleAction() []float64 {
	return e.adapter.ActionSpace().Sample(e.rng)
}

var _ core.Env = (*Env)(nil)
