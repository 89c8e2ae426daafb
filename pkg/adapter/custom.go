package adapter

import (
	"fmt"

	"github.com/boristopalov/networkgym/pkg/measurement"
	"github.com/boristopalov/networkgym/pkg/northbound"
	"github.com/boristopalov/networkgym/pkg/spaces"
)

const CustomName = "custom"

// custom is a template variant: the multi-access observation with a free-form
// per-user action sent as custom_action records, and no reward.
type custom struct {
	multiAccess
	act spaces.Box
}

func newCustom(p Params) (Adapter, error) {
	if p.RewardType != "" && p.RewardType != RewardNone {
		return nil, fmt.Errorf("%w: reward type %q not supported", ErrInvalidParams, p.RewardType)
	}
	ma, err := newMultiAccess(p)
	if err != nil {
		return nil, err
	}
	act, err := spaces.NewBox(0, 1, ma.numUsers)
	if err != nil {
		return nil, err
	}
	return &custom{multiAccess: ma, act: act}, nil
}

func (a *custom) Name() string              { return CustomName }
func (a *custom) ActionSpace() spaces.Space { return a.act }

// Policy sends the action as the Wi-Fi share and its complement as the LTE share.
func (a *custom) Policy(action []float64) ([]northbound.Record, error) {
	if len(action) != a.numUsers {
		return nil, fmt.Errorf("adapter: %s expects %d actions, got %d", CustomName, a.numUsers, len(action))
	}
	users := make([]int, len(action))
	wifi := make([]float64, len(action))
	lte := make([]float64, len(action))
	for i, v := range action {
		users[i] = i
		wifi[i] = clamp(v, 0, 1)
		lte[i] = 1 - wifi[i]
	}
	return []northbound.Record{
		{Name: "custom_action", Entities: users, Values: wifi, Tags: map[string]any{"custom_tag": "Wi-Fi"}},
		{Name: "custom_action", Entities: append([]int(nil), users...), Values: lte, Tags: map[string]any{"custom_tag": "LTE"}},
	}, nil
}

func (a *custom) Reward(*measurement.Table) (float64, error) { return 0, nil }
