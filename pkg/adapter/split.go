package adapter

import (
	"fmt"
	"math"

	"github.com/boristopalov/networkgym/pkg/measurement"
	"github.com/boristopalov/networkgym/pkg/northbound"
	"github.com/boristopalov/networkgym/pkg/spaces"
)

const (
	NQoSSplitName = "nqos_split"
	QoSSteerName  = "qos_steer"

	// splitRatioMax is the split ratio resolution: Wi-Fi and LTE shares sum to it.
	splitRatioMax = 32
	// missingValue replaces the measurement of a user that did not report.
	missingValue = -1
	// qosRateThreshold is the minimum Wi-Fi QoS rate (mbps) for a user to count as served.
	qosRateThreshold = 0.1

	RewardUtility        = "utility"
	RewardWiFiQoSUsers   = "wifi_qos_user_num"
	RewardDelayViolation = "delay_violation"
	RewardNone           = "none"
)

// multiAccess holds what the traffic-splitting variants share: a per-user observation
// of LTE and Wi-Fi capacity plus flow rate, and split_ratio policies tagged with the
// last measurement end time.
type multiAccess struct {
	numUsers int
	downlink bool
	obs      spaces.Box
	endTS    int64
}

func newMultiAccess(p Params) (multiAccess, error) {
	n, err := p.Int("num_users")
	if err != nil {
		return multiAccess{}, err
	}
	if n <= 0 {
		return multiAccess{}, fmt.Errorf("%w: env_config.num_users must be positive, got %d", ErrInvalidParams, n)
	}
	downlink, err := p.BoolOr("downlink", true)
	if err != nil {
		return multiAccess{}, err
	}
	obs, err := spaces.NewBox(missingValue, 1000, 3, n)
	if err != nil {
		return multiAccess{}, err
	}
	return multiAccess{numUsers: n, downlink: downlink, obs: obs}, nil
}

func (m *multiAccess) ObservationSpace() spaces.Space { return m.obs }

// Observation stacks LTE max rate, Wi-Fi max rate and flow rate, one row per feature.
func (m *multiAccess) Observation(table *measurement.Table) ([]float64, error) {
	if ts, ok := table.Tag("end_ts"); ok {
		if f, ok := ts.(float64); ok {
			m.endTS = int64(f)
		}
	}
	out := make([]float64, 0, 3*m.numUsers)
	for _, f := range []struct{ name, cid string }{
		{"max_rate", "LTE"},
		{"max_rate", "Wi-Fi"},
		{"rate", "All"},
	} {
		c, _ := table.Find(f.name, f.cid)
		row, err := c.Fill(m.numUsers, missingValue)
		if err != nil {
			return nil, err
		}
		out = append(out, row...)
	}
	return out, nil
}

func (m *multiAccess) splitPolicy(wifi []float64, total float64) []northbound.Record {
	users := make([]int, len(wifi))
	lte := make([]float64, len(wifi))
	for i, w := range wifi {
		users[i] = i
		lte[i] = total - w
	}
	tags := func() map[string]any {
		return map[string]any{"end_ts": m.endTS, "downlink": m.downlink}
	}
	return []northbound.Record{
		{Name: "split_ratio", CID: "Wi-Fi", Entities: users, Values: wifi, Tags: tags()},
		{Name: "split_ratio", CID: "LTE", Entities: append([]int(nil), users...), Values: lte, Tags: tags()},
	}
}

// nqosSplit learns a continuous Wi-Fi/LTE traffic split per user.
type nqosSplit struct {
	multiAccess
	act spaces.Box
}

func newNQoSSplit(p Params) (Adapter, error) {
	if p.RewardType != "" && p.RewardType != RewardUtility {
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
	return &nqosSplit{multiAccess: ma, act: act}, nil
}

func (a *nqosSplit) Name() string              { return NQoSSplitName }
func (a *nqosSplit) ActionSpace() spaces.Space { return a.act }

// Policy scales each share in [0, 1] to an integer Wi-Fi ratio out of 32; LTE takes the rest.
func (a *nqosSplit) Policy(action []float64) ([]northbound.Record, error) {
	if len(action) != a.numUsers {
		return nil, fmt.Errorf("adapter: %s expects %d actions, got %d", NQoSSplitName, a.numUsers, len(action))
	}
	wifi := make([]float64, len(action))
	for i, v := range action {
		wifi[i] = math.Round(clamp(v, 0, 1) * splitRatioMax)
	}
	return a.splitPolicy(wifi, splitRatioMax), nil
}

// Reward is the network utility 0.5·log(rate) − 0.5·log(delay) over the mean flow rate
// and one-way delay, clipped to [-10, 10].
func (a *nqosSplit) Reward(table *measurement.Table) (float64, error) {
	rate, _ := table.Find("rate", "All")
	owd, _ := table.Find("owd", "All")
	avgRate, _ := rate.Mean()
	avgDelay, _ := owd.Mean()
	return utility(avgRate, avgDelay, 0.5), nil
}

func utility(throughput, delay, alpha float64) float64 {
	logDelay := -10.0
	if delay > 0 {
		logDelay = math.Log(delay)
	}
	logThroughput := -10.0
	if throughput > 0 {
		logThroughput = math.Log(throughput)
	}
	return clamp(alpha*logThroughput-(1-alpha)*logDelay, -10, 10)
}

// qosSteer steers each user's traffic entirely to Wi-Fi (1) or LTE (0).
type qosSteer struct {
	multiAccess
	act spaces.MultiDiscrete
}

func newQoSSteer(p Params) (Adapter, error) {
	if p.RewardType != "" && p.RewardType != RewardWiFiQoSUsers {
		return nil, fmt.Errorf("%w: reward type %q not supported", ErrInvalidParams, p.RewardType)
	}
	ma, err := newMultiAccess(p)
	if err != nil {
		return nil, err
	}
	nvec := make([]int, ma.numUsers)
	for i := range nvec {
		nvec[i] = 2
	}
	act, err := spaces.NewMultiDiscrete(nvec...)
	if err != nil {
		return nil, err
	}
	return &qosSteer{multiAccess: ma, act: act}, nil
}

func (a *qosSteer) Name() string              { return QoSSteerName }
func (a *qosSteer) ActionSpace() spaces.Space { return a.act }

func (a *qosSteer) Policy(action []float64) ([]northbound.Record, error) {
	if !a.act.Contains(action) {
		return nil, fmt.Errorf("adapter: %s action %v outside %s", QoSSteerName, action, a.act)
	}
	wifi := append([]float64(nil), action...)
	return a.splitPolicy(wifi, 1), nil
}

// Reward counts users whose Wi-Fi QoS rate exceeds 0.1 mbps.
func (a *qosSteer) Reward(table *measurement.Table) (float64, error) {
	qos, _ := table.Find("qos_rate", "Wi-Fi")
	var n float64
	for _, v := range qos.Values {
		if v > qosRateThreshold {
			n++
		}
	}
	return n, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
