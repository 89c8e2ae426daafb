// Package agent provides the action sources a run can drive an environment with.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/boristopalov/networkgym/pkg/core"
	"github.com/boristopalov/networkgym/pkg/memory"
	"github.com/boristopalov/networkgym/pkg/spaces"
)

const (
	SystemDefault = "system_default"
	Random        = "random"
	Constant      = "constant"
)

// ErrInvalidParams is returned by New for an agent that cannot be built.
var ErrInvalidParams = errors.New("agent: invalid parameters")

// Agent chooses the action for every step and learns from its outcome.
type Agent interface {
	ID() string
	// Act returns the action for the observation. An empty action asks the server to
	// keep its system default policy.
	Act(ctx context.Context, obs []float64, info core.Info) ([]float64, error)
	// Observe is called with the result of every step.
	Observe(ctx context.Context, res core.StepResult) error
}

type AgentParams struct {
	AgentID string
	Space   spaces.Space
	Rand    *rand.Rand
	// Action is the fixed action of the constant agent.
	Action []float64
	// MemorySize bounds the reward history every agent keeps.
	MemorySize int
}

type AgentOption func(*AgentParams)

func WithAgentID(id string) AgentOption {
	return func(p *AgentParams) {
		p.AgentID = id
	}
}

func WithActionSpace(s spaces.Space) AgentOption {
	return func(p *AgentParams) {
		p.Space = s
	}
}

func WithRand(r *rand.Rand) AgentOption {
	return func(p *AgentParams) {
		p.Rand = r
	}
}

func WithAction(action []float64) AgentOption {
	return func(p *AgentParams) {
		p.Action = action
	}
}

func WithMemorySize(n int) AgentOption {
	return func(p *AgentParams) {
		p.MemorySize = n
	}
}

func defaultAgentParams() *AgentParams {
	return &AgentParams{
		AgentID:    "agent",
		MemorySize: 1000,
	}
}

// New builds the agent named kind.
func New(kind string, opts ...AgentOption) (Agent, error) {
	p := defaultAgentParams()
	for _, opt := range opts {
		opt(p)
	}
	b := base{id: p.AgentID, memory: memory.NewMemory[float64](p.MemorySize)}

	switch kind {
	case SystemDefault:
		return &systemDefault{base: b}, nil
	case Random:
		if p.Space == nil {
			return nil, fmt.Errorf("%w: random agent needs an action space", ErrInvalidParams)
		}
		r := p.Rand
		if r == nil {
			r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
		return &random{base: b, space: p.Space, rng: r}, nil
	case Constant:
		if len(p.Action) == 0 {
			return nil, fmt.Errorf("%w: constant agent needs an action", ErrInvalidParams)
		}
		if p.Space != nil && !p.Space.Contains(p.Action) {
			return nil, fmt.Errorf("%w: constant action %v is not in %s", ErrInvalidParams, p.Action, p.Space)
		}
		return &constant{base: b, action: slices.Clone(p.Action)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown agent %q", ErrInvalidParams, kind)
	}
}

// base keeps the reward history shared by every agent.
type base struct {
	id     string
	memory *memory.Memory[float64]
}

func (b *base) ID() string { return b.id }

func (b *base) Observe(_ context.Context, res core.StepResult) error {
	b.memory.Store(res.Reward)
	return nil
}

// Rewards returns the recent rewards, oldest first.
func (b *base) Rewards() []float64 {
	return b.memory.All()
}

// systemDefault never overrides the server's own policy.
type systemDefault struct {
	base
}

func (a *systemDefault) Act(context.Context, []float64, core.Info) ([]float64, error) {
	return nil, nil
}

// random samples the action space uniformly.
type random struct {
	base
	space spaces.Space
	rng   *rand.Rand
}

func (a *random) Act(context.Context, []float64, core.Info) ([]float64, error) {
	return a.space.Sample(a.rng), nil
}

// constant repeats one action.
type constant struct {
	base
	action []float64
}

func (a *constant) Act(context.Context, []float64, core.Info) ([]float64, error) {
	return slices.Clone(a.action), nil
}
