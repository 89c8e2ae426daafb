package simulator

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/boristopalov/networkgym/pkg/northbound"
)

type session struct {
	env        string
	numUsers   int
	numSlices  int
	startMs    int64
	intervalMs int64
	// endMs is env_end_time_ms; reports past it are invalid. Zero means unbounded.
	endMs    int64
	timestep int64
	rng      *rand.Rand

	lastActions []northbound.Record
}

func newSession(req northbound.StartRequest, fallbackSeed uint64) (*session, error) {
	cfg := req.EnvConfig
	sess := &session{env: req.Env}
	var err error
	countKey := "num_users"
	if req.Env == "rmcat" {
		countKey = "nada_flows"
	}
	if sess.numUsers, err = intOr(cfg, countKey, defaultNumUsers); err != nil {
		return nil, err
	}
	if sess.startMs, err = int64Or(cfg, "measurement_start_time_ms", defaultStartMs); err != nil {
		return nil, err
	}
	interval, err := int64Or(cfg, "measurement_interval_ms", defaultIntervalMs)
	if err != nil {
		return nil, err
	}
	guard, err := int64Or(cfg, "measurement_guard_interval_ms", 0)
	if err != nil {
		return nil, err
	}
	sess.intervalMs = interval + guard
	if sess.intervalMs <= 0 {
		return nil, fmt.Errorf("measurement interval must be positive, got %d ms", sess.intervalMs)
	}
	if sess.endMs, err = int64Or(cfg, "env_end_time_ms", 0); err != nil {
		return nil, err
	}
	if sliceList, ok := cfg["slice_list"].([]any); ok {
		sess.numSlices = len(sliceList)
	}
	if sess.numUsers <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %d", countKey, sess.numUsers)
	}

	seed := fallbackSeed
	if req.Seed != nil {
		seed = *req.Seed
	}
	sess.reseed(seed)
	return sess, nil
}

func (s *session) reseed(seed uint64) {
	s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// measure produces the report for the current timestep.
func (s *session) measure(seeded bool) northbound.MeasurementReport {
	start := s.startMs + s.timestep*s.intervalMs
	end := start + s.intervalMs
	var records []northbound.Record
	switch {
	case s.env == "network_slicing" && s.numSlices > 0:
		records = s.sliceRecords(start, end)
	case s.env == "rmcat":
		records = s.flowRecords(start, end)
	default:
		records = s.userRecords(start, end)
	}
	return northbound.MeasurementReport{
		Timestep: s.timestep,
		Valid:    s.endMs == 0 || end <= s.endMs,
		Seeded:   seeded,
		Records:  records,
		Workload: map[string]any{"start_ts": start, "end_ts": end},
	}
}

func (s *session) userRecords(start, end int64) []northbound.Record {
	metrics := []struct {
		name, cid, unit, group string
	}{
		{"rate", "All", "mbps", "GMA"},
		{"rate", "Wi-Fi", "mbps", "GMA"},
		{"qos_rate", "Wi-Fi", "mbps", "GMA"},
		{"rate", "LTE", "mbps", "GMA"},
		{"max_rate", "LTE", "mbps", "PHY"},
		{"max_rate", "Wi-Fi", "mbps", "PHY"},
		{"split_ratio", "Wi-Fi", "", "GMA"},
		{"owd", "All", "ms", "GMA"},
	}
	out := make([]northbound.Record, 0, len(metrics))
	for _, m := range metrics {
		users := make([]int, s.numUsers)
		values := make([]float64, s.numUsers)
		for i := range users {
			users[i] = i
			values[i] = float64(3 + s.rng.IntN(7))
		}
		out = append(out, northbound.Record{
			Name:     m.name,
			CID:      m.cid,
			Entities: users,
			Values:   values,
			Tags: map[string]any{
				"unit":      m.unit,
				"group":     m.group,
				"direction": "DL",
				"start_ts":  start,
				"end_ts":    end,
			},
		})
	}
	return out
}

func (s *session) sliceRecords(start, end int64) []northbound.Record {
	metrics := []struct {
		source, name string
		value        func() float64
	}{
		{"gma", "dl::cell::rate", func() float64 { return float64(3 + s.rng.IntN(7)) }},
		{"lte", "dl::cell::rb_usage", s.rng.Float64},
		{"gma", "dl::cell::delay_violation", s.rng.Float64},
		{"lte", "dl::cell::max_rate", func() float64 { return float64(3 + s.rng.IntN(7)) }},
	}
	out := make([]northbound.Record, 0, len(metrics))
	for _, m := range metrics {
		ids := make([]int, s.numSlices)
		values := make([]float64, s.numSlices)
		for i := range ids {
			ids[i] = i
			values[i] = m.value()
		}
		out = append(out, northbound.Record{
			Name:     m.name,
			Source:   m.source,
			Entities: ids,
			Values:   values,
			Tags:     map[string]any{"start_ts": start, "end_ts": end},
		})
	}
	return out
}

// flowRecords reports NADA congestion state per flow. A flow sent an srate in the
// last action receives at most that rate.
func (s *session) flowRecords(start, end int64) []northbound.Record {
	srate := make(map[int]float64)
	for _, a := range s.lastActions {
		if a.Source != "rmcat" || a.Name != "srate" {
			continue
		}
		for i, id := range a.Entities {
			if i < len(a.Values) {
				srate[id] = a.Values[i]
			}
		}
	}
	rate := func(flow int) float64 {
		r := float64(150_000 + s.rng.IntN(1_350_000))
		if limit, ok := srate[flow]; ok {
			r = math.Min(r, limit)
		}
		return r
	}
	metrics := []struct {
		name  string
		value func(flow int) float64
	}{
		{"rtt", func(int) float64 { return float64(20 + s.rng.IntN(180)) }},
		{"rrate", rate},
		{"xcurr", rate},
		{"ploss", func(int) float64 { return float64(s.rng.IntN(3)) }},
	}
	out := make([]northbound.Record, 0, len(metrics))
	for _, m := range metrics {
		flows := make([]int, s.numUsers)
		values := make([]float64, s.numUsers)
		for i := range flows {
			flows[i] = i
			values[i] = m.value(i)
		}
		out = append(out, northbound.Record{
			Name:     m.name,
			Source:   "rmcat",
			Entities: flows,
			Values:   values,
			Tags:     map[string]any{"start_ts": start, "end_ts": end},
		})
	}
	return out
}

func intOr(cfg map[string]any, key string, def int) (int, error) {
	v, err := int64Or(cfg, key, int64(def))
	return int(v), err
}

func int64Or(cfg map[string]any, key string, def int64) (int64, error) {
	v, ok := cfg[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%s must be an integer, got %v", key, n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}
