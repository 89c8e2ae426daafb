package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS episodes (
		run_id      TEXT NOT NULL,
		client      TEXT NOT NULL,
		episode     INTEGER NOT NULL,
		steps       INTEGER NOT NULL,
		total_reward REAL NOT NULL,
		mean_reward REAL NOT NULL,
		std_reward  REAL NOT NULL,
		min_reward  REAL NOT NULL,
		max_reward  REAL NOT NULL,
		terminated  INTEGER NOT NULL,
		truncated   INTEGER NOT NULL,
		reason      TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		ended_at    TEXT NOT NULL,
		PRIMARY KEY (run_id, episode)
	)`,
	`CREATE TABLE IF NOT EXISTS steps (
		run_id      TEXT NOT NULL,
		client      TEXT NOT NULL,
		episode     INTEGER NOT NULL,
		step        INTEGER NOT NULL,
		timestep    INTEGER NOT NULL,
		action      TEXT NOT NULL,
		observation TEXT NOT NULL,
		reward      REAL NOT NULL,
		terminated  INTEGER NOT NULL,
		truncated   INTEGER NOT NULL,
		PRIMARY KEY (run_id, episode, step)
	)`,
	`CREATE INDEX IF NOT EXISTS steps_client ON steps (client, episode)`,
}

// SQLite stores steps and episodes in a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and ensures the schema exists.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY between runs.
	db.SetMaxOpenConns(1)
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("recorder: create schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) RecordStep(ctx context.Context, st Step) error {
	action, err := json.Marshal(nonNil(st.Action))
	if err != nil {
		return fmt.Errorf("recorder: encode action: %w", err)
	}
	obs, err := json.Marshal(nonNil(st.Observation))
	if err != nil {
		return fmt.Errorf("recorder: encode observation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO steps (run_id, client, episode, step, timestep, action, observation, reward, terminated, truncated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.RunID.String(), st.Client, st.Episode, st.Step, st.Timestep,
		string(action), string(obs), st.Reward, st.Terminated, st.Truncated,
	)
	if err != nil {
		return fmt.Errorf("recorder: insert step: %w", err)
	}
	return nil
}

func (s *SQLite) RecordEpisode(ctx context.Context, e Episode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes (run_id, client, episode, steps, total_reward, mean_reward, std_reward,
		 min_reward, max_reward, terminated, truncated, reason, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID.String(), e.Client, e.Episode, e.Steps, e.Return, e.MeanReward, e.StdReward,
		e.MinReward, e.MaxReward, e.Terminated, e.Truncated, e.Reason,
		e.StartedAt.UTC().Format(time.RFC3339Nano), e.EndedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recorder: insert episode: %w", err)
	}
	return nil
}

// Episodes returns the recorded episodes of a run in order.
func (s *SQLite) Episodes(ctx context.Context, runID uuid.UUID) ([]Episode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, client, episode, steps, total_reward, mean_reward, std_reward, min_reward, max_reward,
		 terminated, truncated, reason, started_at, ended_at
		 FROM episodes WHERE run_id = ? ORDER BY episode`, runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("recorder: query episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var (
			e                      Episode
			id, startedAt, endedAt string
		)
		if err := rows.Scan(&id, &e.Client, &e.Episode, &e.Steps, &e.Return, &e.MeanReward, &e.StdReward,
			&e.MinReward, &e.MaxReward, &e.Terminated, &e.Truncated, &e.Reason, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("recorder: scan episode: %w", err)
		}
		if e.RunID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("recorder: episode run id: %w", err)
		}
		if e.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("recorder: episode start: %w", err)
		}
		if e.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, fmt.Errorf("recorder: episode end: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Steps returns the recorded steps of one episode in order.
func (s *SQLite) Steps(ctx context.Context, runID uuid.UUID, episode int) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client, step, timestep, action, observation, reward, terminated, truncated
		 FROM steps WHERE run_id = ? AND episode = ? ORDER BY step`, runID.String(), episode,
	)
	if err != nil {
		return nil, fmt.Errorf("recorder: query steps: %w", err)
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		st := Step{RunID: runID, Episode: episode}
		var action, obs string
		if err := rows.Scan(&st.Client, &st.Step, &st.Timestep, &action, &obs, &st.Reward, &st.Terminated, &st.Truncated); err != nil {
			return nil, fmt.Errorf("recorder: scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(action), &st.Action); err != nil {
			return nil, fmt.Errorf("recorder: decode action: %w", err)
		}
		if err := json.Unmarshal([]byte(obs), &st.Observation); err != nil {
			return nil, fmt.Errorf("recorder: decode observation: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
