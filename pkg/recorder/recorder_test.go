package recorder

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEpisode(runID uuid.UUID, n int) Episode {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Episode{
		RunID:     runID,
		Client:    "lab-0",
		Episode:   n,
		Truncated: true,
		StartedAt: start,
		EndedAt:   start.Add(1500 * time.Millisecond),
	}
	return Summarize(e, []float64{1, 2, 3, 6})
}

func TestSummarize(t *testing.T) {
	e := Summarize(Episode{}, []float64{1, 2, 3, 6})
	assert.Equal(t, 4, e.Steps)
	assert.Equal(t, 12.0, e.Return)
	assert.Equal(t, 3.0, e.MeanReward)
	assert.InDelta(t, math.Sqrt(3.5), e.StdReward, 1e-12)
	assert.Equal(t, 1.0, e.MinReward)
	assert.Equal(t, 6.0, e.MaxReward)

	t.Run("no steps", func(t *testing.T) {
		e := Summarize(Episode{Reason: "terminated"}, nil)
		assert.Zero(t, e.Steps)
		assert.Zero(t, e.MinReward)
		assert.Zero(t, e.MaxReward)
		assert.Equal(t, "terminated", e.Reason)
	})
}

func TestCSV(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	c, err := NewCSV(&buf)
	require.NoError(t, err)

	runID := uuid.New()
	require.NoError(t, c.RecordStep(ctx, Step{RunID: runID}))
	require.NoError(t, c.RecordEpisode(ctx, sampleEpisode(runID, 0)))
	require.NoError(t, c.Close())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2, "steps are not written")
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		runID.String(), "lab-0", "0", "4", "12.0000", "3.0000", "1.8708",
		"1.0000", "6.0000", "false", "true", "",
		"2026-03-01T12:00:00Z", "2026-03-01T12:00:01.5Z",
	}, rows[1])
}

func TestCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	c, err := NewCSVFile(path)
	require.NoError(t, err)
	require.NoError(t, c.RecordEpisode(context.Background(), sampleEpisode(uuid.New(), 1)))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "closing twice is harmless")

	_, err = NewCSVFile(filepath.Join(t.TempDir(), "missing", "stats.csv"))
	assert.Error(t, err)
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	runID := uuid.New()
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.RecordStep(ctx, Step{
			RunID:       runID,
			Client:      "lab-0",
			Episode:     0,
			Step:        i,
			Timestep:    int64(i),
			Action:      []float64{float64(i), 0.5},
			Observation: []float64{1, 2, 3},
			Reward:      float64(i),
			Truncated:   i == 3,
		}))
	}
	require.NoError(t, s.RecordEpisode(ctx, sampleEpisode(runID, 1)))
	require.NoError(t, s.RecordEpisode(ctx, sampleEpisode(runID, 0)))
	require.NoError(t, s.RecordEpisode(ctx, sampleEpisode(uuid.New(), 0)))

	t.Run("episodes", func(t *testing.T) {
		episodes, err := s.Episodes(ctx, runID)
		require.NoError(t, err)
		require.Len(t, episodes, 2)
		assert.Equal(t, 0, episodes[0].Episode)
		assert.Equal(t, sampleEpisode(runID, 1), episodes[1])
	})

	t.Run("steps", func(t *testing.T) {
		steps, err := s.Steps(ctx, runID, 0)
		require.NoError(t, err)
		require.Len(t, steps, 3)
		assert.Equal(t, []float64{3, 0.5}, steps[2].Action)
		assert.Equal(t, []float64{1, 2, 3}, steps[2].Observation)
		assert.True(t, steps[2].Truncated)
		assert.False(t, steps[0].Truncated)
	})

	t.Run("duplicate episode", func(t *testing.T) {
		assert.Error(t, s.RecordEpisode(ctx, sampleEpisode(runID, 0)))
	})

	t.Run("reopen keeps data", func(t *testing.T) {
		require.NoError(t, s.Close())
		s2, err := OpenSQLite(ctx, path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s2.Close() })
		episodes, err := s2.Episodes(ctx, runID)
		require.NoError(t, err)
		assert.Len(t, episodes, 2)
	})
}

type failing struct{ Discard }

var errSink = errors.New("sink down")

func (failing) RecordEpisode(context.Context, Episode) error { return errSink }

func TestMulti(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	c, err := NewCSV(&buf)
	require.NoError(t, err)

	m := Multi{Discard{}, failing{}, c}
	err = m.RecordEpisode(ctx, sampleEpisode(uuid.New(), 0))
	assert.ErrorIs(t, err, errSink)
	assert.Contains(t, buf.String(), "lab-0", "later sinks still receive the record")

	assert.NoError(t, m.RecordStep(ctx, Step{}))
	assert.NoError(t, m.Close())
}
