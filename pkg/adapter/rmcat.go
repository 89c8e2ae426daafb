package adapter

import (
	"fmt"

	"github.com/boristopalov/networkgym/pkg/measurement"
	"github.com/boristopalov/networkgym/pkg/northbound"
	"github.com/boristopalov/networkgym/pkg/spaces"
)

const (
	RMCATName = "rmcat"

	rmcatSource = "rmcat"
	// Sending rate bounds in bps.
	rmcatRateMin = 150_000
	rmcatRateMax = 1_500_000
)

// rmcatFeatures are the per-flow congestion-control measurements, one observation
// row each. rtt is in ms; rrate and xcurr are in bps.
var rmcatFeatures = []string{"rtt", "rrate", "xcurr"}

// rmcat sets the sending rate of each NADA flow.
type rmcat struct {
	flows int
	obs   spaces.Box
	act   spaces.Box
}

func newRMCAT(p Params) (Adapter, error) {
	if p.RewardType != "" && p.RewardType != RewardNone {
		return nil, fmt.Errorf("%w: reward type %q not supported", ErrInvalidParams, p.RewardType)
	}
	n, err := p.Int("nada_flows")
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: env_config.nada_flows must be positive, got %d", ErrInvalidParams, n)
	}
	obs, err := spaces.NewBox(missingValue, rmcatRateMax, len(rmcatFeatures), n)
	if err != nil {
		return nil, err
	}
	act, err := spaces.NewBox(rmcatRateMin, rmcatRateMax, n)
	if err != nil {
		return nil, err
	}
	return &rmcat{flows: n, obs: obs, act: act}, nil
}

func (a *rmcat) Name() string                   { return RMCATName }
func (a *rmcat) ObservationSpace() spaces.Space { return a.obs }
func (a *rmcat) ActionSpace() spaces.Space      { return a.act }

func (a *rmcat) Observation(table *measurement.Table) ([]float64, error) {
	out := make([]float64, 0, len(rmcatFeatures)*a.flows)
	for _, name := range rmcatFeatures {
		row, err := table.Fill(northbound.Record{Source: rmcatSource, Name: name}.Key(), a.flows, missingValue)
		if err != nil {
			return nil, err
		}
		out = append(out, row...)
	}
	return out, nil
}

// Policy sends one srate record carrying the target rate of every flow.
func (a *rmcat) Policy(action []float64) ([]northbound.Record, error) {
	if len(action) != a.flows {
		return nil, fmt.Errorf("adapter: %s expects %d actions, got %d", RMCATName, a.flows, len(action))
	}
	flows := make([]int, len(action))
	rates := make([]float64, len(action))
	for i, v := range action {
		flows[i] = i
		rates[i] = clamp(v, rmcatRateMin, rmcatRateMax)
	}
	return []northbound.Record{{Name: "srate", Source: rmcatSource, Entities: flows, Values: rates}}, nil
}

func (a *rmcat) Reward(*measurement.Table) (float64, error) { return 0, nil }
