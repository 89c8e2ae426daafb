package adapter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/networkgym/pkg/measurement"
	"github.com/boristopalov/networkgym/pkg/northbound"
)

func table(t *testing.T, records ...northbound.Record) *measurement.Table {
	t.Helper()
	tbl, err := measurement.Aggregator{}.Aggregate(northbound.MeasurementReport{Valid: true, Records: records})
	require.NoError(t, err)
	return tbl
}

func users(values ...float64) ([]int, []float64) {
	ids := make([]int, len(values))
	for i := range ids {
		ids[i] = i
	}
	return ids, values
}

func metric(name, cid string, values ...float64) northbound.Record {
	ids, vals := users(values...)
	return northbound.Record{Name: name, CID: cid, Entities: ids, Values: vals, Tags: map[string]any{"end_ts": 1200.0}}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{CustomName, NetworkSlicingName, NQoSSplitName, QoSSteerName, RMCATName}, Names())

	_, err := New("mmwave", Params{})
	assert.ErrorIs(t, err, ErrUnknownAdapter)

	_, err = New(NQoSSplitName, Params{EnvConfig: map[string]any{}})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = New(NQoSSplitName, Params{EnvConfig: map[string]any{"num_users": 2}, RewardType: "wifi_qos_user_num"})
	assert.ErrorIs(t, err, ErrInvalidParams)

	assert.Panics(t, func() { Register(NQoSSplitName, newNQoSSplit) })
}

func TestNQoSSplit(t *testing.T) {
	a, err := New(NQoSSplitName, Params{EnvConfig: map[string]any{"num_users": 3.0, "downlink": false}})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, a.ObservationSpace().Shape())
	assert.Equal(t, 3, a.ActionSpace().Dim())

	tbl := table(t,
		metric("max_rate", "LTE", 10, 11, 12),
		metric("max_rate", "Wi-Fi", 20, 21),
		metric("rate", "All", 4, 4, 4),
		metric("owd", "All", 2, 2, 2),
	)

	t.Run("observation fills missing users", func(t *testing.T) {
		obs, err := a.Observation(tbl)
		require.NoError(t, err)
		assert.Equal(t, []float64{10, 11, 12, 20, 21, -1, 4, 4, 4}, obs)
		assert.Len(t, obs, a.ObservationSpace().Dim())
	})

	t.Run("utility reward", func(t *testing.T) {
		r, err := a.Reward(tbl)
		require.NoError(t, err)
		assert.InDelta(t, 0.5*math.Log(4)-0.5*math.Log(2), r, 1e-12)

		empty := table(t)
		r, err = a.Reward(empty)
		require.NoError(t, err)
		assert.Equal(t, 0.0, r, "log of missing rate and delay both floor at -10")
	})

	t.Run("policy splits 32 units", func(t *testing.T) {
		recs, err := a.Policy([]float64{0, 0.5, 1})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "split_ratio::Wi-Fi", recs[0].Key())
		assert.Equal(t, []float64{0, 16, 32}, recs[0].Values)
		assert.Equal(t, "split_ratio::LTE", recs[1].Key())
		assert.Equal(t, []float64{32, 16, 0}, recs[1].Values)
		assert.Equal(t, []int{0, 1, 2}, recs[1].Entities)
		assert.Equal(t, int64(1200), recs[0].Tags["end_ts"], "end_ts comes from the last observation")
		assert.Equal(t, false, recs[0].Tags["downlink"])

		_, err = a.Policy([]float64{0.5})
		assert.Error(t, err)
	})
}

func TestUtilityClips(t *testing.T) {
	assert.Equal(t, 10.0, utility(math.Exp(30), 0.0001, 0.5))
	assert.Equal(t, -10.0, utility(0, math.Exp(30), 0.5))
}

func TestQoSSteer(t *testing.T) {
	a, err := New(QoSSteerName, Params{EnvConfig: map[string]any{"num_users": 4}})
	require.NoError(t, err)
	assert.True(t, a.ActionSpace().Contains([]float64{0, 1, 1, 0}))
	assert.False(t, a.ActionSpace().Contains([]float64{0, 2, 1, 0}))

	recs, err := a.Policy([]float64{1, 0, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1, 1}, recs[0].Values)
	assert.Equal(t, []float64{0, 1, 0, 0}, recs[1].Values)

	_, err = a.Policy([]float64{0.5, 0, 1, 1})
	assert.Error(t, err)

	r, err := a.Reward(table(t, metric("qos_rate", "Wi-Fi", 0.05, 0.2, 3, 0.1)))
	require.NoError(t, err)
	assert.Equal(t, 2.0, r)
}

func slicingParams(reward string) Params {
	return Params{
		RewardType: reward,
		EnvConfig: map[string]any{
			"slice_list": []any{
				map[string]any{"num_users": 5},
				map[string]any{"num_users": 5},
			},
			"LTE": map[string]any{"resource_block_num": 25},
		},
	}
}

func TestNetworkSlicing(t *testing.T) {
	a, err := New(NetworkSlicingName, slicingParams(""))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, a.ObservationSpace().Shape())

	rec := func(source, name string, values ...float64) northbound.Record {
		ids, vals := users(values...)
		return northbound.Record{Name: name, Source: source, Entities: ids, Values: vals}
	}
	tbl := table(t,
		rec("gma", "dl::cell::rate", 30, 40),
		rec("lte", "dl::cell::rb_usage", 0.5, 0.25),
		rec("gma", "dl::cell::delay_violation", 0.2, 0.4),
	)

	obs, err := a.Observation(tbl)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 40, 0.5, 0.25, 0.2, 0.4}, obs)

	r, err := a.Reward(tbl)
	require.NoError(t, err)
	assert.InDelta(t, -0.3, r, 1e-12)

	// 25 RBs use groups of 2: 12.5 groups, 6.25 per slice.
	recs, err := a.Policy([]float64{1, 0.5})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "lte::prb_allocation", recs[1].Key())
	assert.Equal(t, []float64{6, 3}, recs[1].Values)
	assert.Equal(t, []float64{0, 0}, recs[0].Values)
	assert.Equal(t, []float64{12.5, 12.5}, recs[2].Values)

	none, err := New(NetworkSlicingName, slicingParams(RewardNone))
	require.NoError(t, err)
	r, err = none.Reward(tbl)
	require.NoError(t, err)
	assert.Zero(t, r)
}

func TestNetworkSlicingParams(t *testing.T) {
	p := slicingParams("")
	p.EnvConfig["LTE"] = map[string]any{"resource_block_num": 200}
	_, err := New(NetworkSlicingName, p)
	assert.ErrorIs(t, err, ErrInvalidParams)

	p = slicingParams("")
	p.EnvConfig["slice_list"] = []any{}
	_, err = New(NetworkSlicingName, p)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = New(NetworkSlicingName, slicingParams("utility"))
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestRBGSize(t *testing.T) {
	for _, tt := range []struct{ rbs, want int }{{6, 1}, {15, 2}, {50, 3}, {100, 4}} {
		got, err := rbgSize(tt.rbs)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "rbs=%d", tt.rbs)
	}
}

func TestCustom(t *testing.T) {
	a, err := New(CustomName, Params{EnvConfig: map[string]any{"num_users": 2.0}})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, a.ObservationSpace().Shape())
	assert.Equal(t, 2, a.ActionSpace().Dim())

	_, err = New(CustomName, Params{EnvConfig: map[string]any{"num_users": 2.0}, RewardType: RewardUtility})
	assert.ErrorIs(t, err, ErrInvalidParams)

	t.Run("policy sends both shares", func(t *testing.T) {
		recs, err := a.Policy([]float64{0.25, 1})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "custom_action", recs[0].Key())
		assert.Equal(t, "Wi-Fi", recs[0].Tags["custom_tag"])
		assert.Equal(t, []float64{0.25, 1}, recs[0].Values)
		assert.Equal(t, "LTE", recs[1].Tags["custom_tag"])
		assert.Equal(t, []float64{0.75, 0}, recs[1].Values)
		assert.Equal(t, []int{0, 1}, recs[1].Entities)

		_, err = a.Policy([]float64{1})
		assert.Error(t, err)
	})

	t.Run("no reward", func(t *testing.T) {
		r, err := a.Reward(table(t, metric("rate", "All", 4, 4)))
		require.NoError(t, err)
		assert.Equal(t, 0.0, r)
	})
}

func TestRMCAT(t *testing.T) {
	_, err := New(RMCATName, Params{EnvConfig: map[string]any{"num_users": 2.0}})
	assert.ErrorIs(t, err, ErrInvalidParams, "nada_flows is required")

	a, err := New(RMCATName, Params{EnvConfig: map[string]any{"nada_flows": 2.0}})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, a.ObservationSpace().Shape())
	assert.Equal(t, 2, a.ActionSpace().Dim())

	t.Run("observation reads rmcat rows", func(t *testing.T) {
		rtt := northbound.Record{Name: "rtt", Source: "rmcat", Entities: []int{0, 1}, Values: []float64{40, 60}}
		rrate := northbound.Record{Name: "rrate", Source: "rmcat", Entities: []int{1}, Values: []float64{300000}}
		obs, err := a.Observation(table(t, rtt, rrate))
		require.NoError(t, err)
		assert.Equal(t, []float64{40, 60, -1, 300000, -1, -1}, obs)
		assert.True(t, a.ObservationSpace().Contains(obs))
	})

	t.Run("policy clamps sending rates", func(t *testing.T) {
		recs, err := a.Policy([]float64{100, 800000})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "rmcat::srate", recs[0].Key())
		assert.Equal(t, []float64{150000, 800000}, recs[0].Values)
		assert.Equal(t, []int{0, 1}, recs[0].Entities)
	})

	t.Run("no reward", func(t *testing.T) {
		r, err := a.Reward(table(t))
		require.NoError(t, err)
		assert.Equal(t, 0.0, r)
	})
}
