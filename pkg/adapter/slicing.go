package adapter

import (
	"fmt"
	"math"

	"github.com/boristopalov/networkgym/pkg/measurement"
	"github.com/boristopalov/networkgym/pkg/northbound"
	"github.com/boristopalov/networkgym/pkg/spaces"
)

const NetworkSlicingName = "network_slicing"

// rbgThresholds is the PF type 0 RBG size table of 3GPP 36.213 table 7.1.6.1-1: a
// bandwidth below rbgThresholds[i] resource blocks uses groups of i+1 blocks.
var rbgThresholds = []int{10, 26, 63, 110}

// Slice measurements are reported per slice id.
const (
	sliceRateKey      = "gma::dl::cell::rate"
	sliceRBUsageKey   = "lte::dl::cell::rb_usage"
	sliceViolationKey = "gma::dl::cell::delay_violation"
)

// networkSlicing allocates LTE resource block groups between slices.
type networkSlicing struct {
	numSlices  int
	rbgNum     float64
	rewardType string
	obs        spaces.Box
	act        spaces.Box
	endTS      int64
}

func newNetworkSlicing(p Params) (Adapter, error) {
	switch p.RewardType {
	case "", RewardDelayViolation, RewardNone:
	default:
		return nil, fmt.Errorf("%w: reward type %q not supported", ErrInvalidParams, p.RewardType)
	}
	sliceList, err := p.List("slice_list")
	if err != nil {
		return nil, err
	}
	if len(sliceList) == 0 {
		return nil, fmt.Errorf("%w: env_config.slice_list is empty", ErrInvalidParams)
	}
	lte, err := p.Section("LTE")
	if err != nil {
		return nil, err
	}
	rbs, err := lte.Int("resource_block_num")
	if err != nil {
		return nil, err
	}
	size, err := rbgSize(rbs)
	if err != nil {
		return nil, err
	}
	obs, err := spaces.NewBox(0, 1000, 3, len(sliceList))
	if err != nil {
		return nil, err
	}
	act, err := spaces.NewBox(0, 1, len(sliceList))
	if err != nil {
		return nil, err
	}
	rewardType := p.RewardType
	if rewardType == "" {
		rewardType = RewardDelayViolation
	}
	return &networkSlicing{
		numSlices:  len(sliceList),
		rbgNum:     float64(rbs) / float64(size),
		rewardType: rewardType,
		obs:        obs,
		act:        act,
	}, nil
}

func rbgSize(resourceBlocks int) (int, error) {
	for i, limit := range rbgThresholds {
		if resourceBlocks < limit {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: resource_block_num %d exceeds the RBG table", ErrInvalidParams, resourceBlocks)
}

func (a *networkSlicing) Name() string                   { return NetworkSlicingName }
func (a *networkSlicing) ObservationSpace() spaces.Space { return a.obs }
func (a *networkSlicing) ActionSpace() spaces.Space      { return a.act }

// Observation stacks per-slice rate, resource block usage and delay violation rate.
func (a *networkSlicing) Observation(table *measurement.Table) ([]float64, error) {
	if ts, ok := table.Tag("end_ts"); ok {
		if f, ok := ts.(float64); ok {
			a.endTS = int64(f)
		}
	}
	out := make([]float64, 0, 3*a.numSlices)
	for _, key := range []string{sliceRateKey, sliceRBUsageKey, sliceViolationKey} {
		row, err := table.Fill(key, a.numSlices, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, row...)
	}
	return out, nil
}

// Policy maps each slice share in [0, 1] to a PRB allocation of up to rbg_num/slices
// groups, with no dedicated and full shared groups.
func (a *networkSlicing) Policy(action []float64) ([]northbound.Record, error) {
	if len(action) != a.numSlices {
		return nil, fmt.Errorf("adapter: %s expects %d actions, got %d", NetworkSlicingName, a.numSlices, len(action))
	}
	ids := make([]int, a.numSlices)
	drb := make([]float64, a.numSlices)
	prb := make([]float64, a.numSlices)
	srb := make([]float64, a.numSlices)
	perSlice := a.rbgNum / float64(a.numSlices)
	for i, v := range action {
		ids[i] = i
		prb[i] = math.Round(clamp(v, 0, 1) * perSlice)
		srb[i] = a.rbgNum
	}
	rec := func(name string, values []float64) northbound.Record {
		return northbound.Record{
			Name:     name,
			Source:   "lte",
			Entities: append([]int(nil), ids...),
			Values:   values,
			Tags:     map[string]any{"end_ts": a.endTS},
		}
	}
	return []northbound.Record{
		rec("drb_allocation", drb),
		rec("prb_allocation", prb),
		rec("srb_allocation", srb),
	}, nil
}

// Reward is the negative mean delay violation rate across slices, or zero for "none".
func (a *networkSlicing) Reward(table *measurement.Table) (float64, error) {
	if a.rewardType == RewardNone {
		return 0, nil
	}
	c, _ := table.Column(sliceViolationKey)
	mean, _ := c.Mean()
	return -mean, nil
}
