// Package adapter converts between measurement tables and RL vectors for each
// NetworkGym environment variant.
package adapter

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/boristopalov/networkgym/pkg/measurement"
	"github.com/boristopalov/networkgym/pkg/northbound"
	"github.com/boristopalov/networkgym/pkg/spaces"
)

var (
	// ErrUnknownAdapter is returned by New for a name nothing registered.
	ErrUnknownAdapter = errors.New("adapter: unknown environment")
	// ErrInvalidParams is returned when env_config cannot configure an adapter.
	ErrInvalidParams = errors.New("adapter: invalid parameters")
)

// Adapter is the per-variant conversion layer. Observation must return exactly
// ObservationSpace().Dim() values; Policy must accept any member of ActionSpace().
type Adapter interface {
	Name() string
	ObservationSpace() spaces.Space
	ActionSpace() spaces.Space
	Observation(table *measurement.Table) ([]float64, error)
	Reward(table *measurement.Table) (float64, error)
	Policy(action []float64) ([]northbound.Record, error)
}

// Terminator is implemented by adapters that recognise task-ending conditions in a
// measurement table.
type Terminator interface {
	Terminated(table *measurement.Table) (bool, string)
}

// Factory builds an adapter from its parameters.
type Factory func(p Params) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a factory available under name. Registering a name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("adapter: %s registered twice", name))
	}
	registry[name] = f
}

// New builds the adapter registered under name.
func New(name string, p Params) (Adapter, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownAdapter, name, Names())
	}
	a, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("adapter %s: %w", name, err)
	}
	return a, nil
}

// Names lists registered adapters in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func init() {
	Register(NQoSSplitName, newNQoSSplit)
	Register(QoSSteerName, newQoSSteer)
	Register(NetworkSlicingName, newNetworkSlicing)
	Register(RMCATName, newRMCAT)
	Register(CustomName, newCustom)
}
