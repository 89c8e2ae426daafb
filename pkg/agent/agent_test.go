package agent

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/networkgym/pkg/core"
	"github.com/boristopalov/networkgym/pkg/spaces"
)

func TestAgents(t *testing.T) {
	ctx := context.Background()
	space := spaces.MustBox(0, 1, 3)

	t.Run("system default", func(t *testing.T) {
		a, err := New(SystemDefault, WithAgentID("lab-0"))
		require.NoError(t, err)
		assert.Equal(t, "lab-0", a.ID())
		action, err := a.Act(ctx, []float64{1}, core.Info{})
		require.NoError(t, err)
		assert.Empty(t, action)
	})

	t.Run("random stays in space", func(t *testing.T) {
		a, err := New(Random, WithActionSpace(space), WithRand(rand.New(rand.NewPCG(1, 1))))
		require.NoError(t, err)
		for range 20 {
			action, err := a.Act(ctx, nil, core.Info{})
			require.NoError(t, err)
			assert.True(t, space.Contains(action))
		}
	})

	t.Run("random is reproducible", func(t *testing.T) {
		a, err := New(Random, WithActionSpace(space), WithRand(rand.New(rand.NewPCG(9, 9))))
		require.NoError(t, err)
		b, err := New(Random, WithActionSpace(space), WithRand(rand.New(rand.NewPCG(9, 9))))
		require.NoError(t, err)
		x, _ := a.Act(ctx, nil, core.Info{})
		y, _ := b.Act(ctx, nil, core.Info{})
		assert.Equal(t, x, y)
	})

	t.Run("constant", func(t *testing.T) {
		want := []float64{0.1, 0.2, 0.3}
		a, err := New(Constant, WithActionSpace(space), WithAction(want))
		require.NoError(t, err)
		action, err := a.Act(ctx, nil, core.Info{})
		require.NoError(t, err)
		assert.Equal(t, want, action)

		action[0] = 9
		again, _ := a.Act(ctx, nil, core.Info{})
		assert.Equal(t, want, again, "callers cannot alter the stored action")
	})
}

func TestNewRejectsBadParams(t *testing.T) {
	space := spaces.MustBox(0, 1, 2)
	for name, build := range map[string]func() (Agent, error){
		"unknown kind":         func() (Agent, error) { return New("llm") },
		"random without space": func() (Agent, error) { return New(Random) },
		"constant empty":       func() (Agent, error) { return New(Constant) },
		"constant outside":     func() (Agent, error) { return New(Constant, WithActionSpace(space), WithAction([]float64{2, 0})) },
	} {
		t.Run(name, func(t *testing.T) {
			_, err := build()
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestObserveKeepsRewards(t *testing.T) {
	a, err := New(SystemDefault, WithMemorySize(2))
	require.NoError(t, err)
	for _, r := range []float64{1, 2, 3} {
		require.NoError(t, a.Observe(context.Background(), core.StepResult{Reward: r}))
	}
	rewards := a.(interface{ Rewards() []float64 }).Rewards()
	assert.Equal(t, []float64{2, 3}, rewards)
}
