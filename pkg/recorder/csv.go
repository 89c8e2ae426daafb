package recorder

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"
)

var csvHeader = []string{
	"run_id", "client", "episode", "steps", "return", "mean_reward", "std_reward",
	"min_reward", "max_reward", "terminated", "truncated", "reason", "started_at", "ended_at",
}

// CSV writes one row per episode. Steps are not recorded.
type CSV struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
}

// NewCSVFile creates (or truncates) path and writes the header.
func NewCSVFile(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: create stats file: %w", err)
	}
	c, err := NewCSV(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

// NewCSV writes the header to w.
func NewCSV(w io.Writer) (*CSV, error) {
	c := &CSV{w: csv.NewWriter(w)}
	if err := c.w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("recorder: write header: %w", err)
	}
	c.w.Flush()
	return c, c.w.Error()
}

func (c *CSV) RecordStep(context.Context, Step) error { return nil }

func (c *CSV) RecordEpisode(_ context.Context, e Episode) error {
	row := []string{
		e.RunID.String(),
		e.Client,
		strconv.Itoa(e.Episode),
		strconv.Itoa(e.Steps),
		formatFloat(e.Return),
		formatFloat(e.MeanReward),
		formatFloat(e.StdReward),
		formatFloat(e.MinReward),
		formatFloat(e.MaxReward),
		strconv.FormatBool(e.Terminated),
		strconv.FormatBool(e.Truncated),
		e.Reason,
		e.StartedAt.UTC().Format(time.RFC3339Nano),
		e.EndedAt.UTC().Format(time.RFC3339Nano),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("recorder: write episode: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if c.closer == nil {
		return c.w.Error()
	}
	closer := c.closer
	c.closer = nil
	if err := c.w.Error(); err != nil {
		_ = closer.Close()
		return err
	}
	return closer.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
