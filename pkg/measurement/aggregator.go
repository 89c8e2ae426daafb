// Package measurement merges the reports a remote endpoint sends for one timestep
// into a single table keyed by metric.
package measurement

import (
	"fmt"
	"maps"
	"slices"

	"github.com/boristopalov/networkgym/pkg/northbound"
)

// Aggregator merges reports. Keys listed in Mergeable are appended when they repeat;
// any other repeated key is a conflict.
type Aggregator struct {
	Mergeable map[string]bool
}

// NewAggregator returns an Aggregator that appends the given keys on repeat.
func NewAggregator(mergeable ...string) Aggregator {
	m := make(map[string]bool, len(mergeable))
	for _, k := range mergeable {
		m[k] = true
	}
	return Aggregator{Mergeable: m}
}

// Aggregate merges every report of one timestep into a table.
func (a Aggregator) Aggregate(reports ...northbound.MeasurementReport) (*Table, error) {
	if len(reports) == 0 {
		return nil, fmt.Errorf("%w: no reports for timestep", ErrMissingMeasurement)
	}

	table := &Table{
		Timestep: reports[0].Timestep,
		Valid:    true,
		columns:  make(map[string]Column),
	}
	for i, r := range reports {
		if r.Timestep != table.Timestep {
			return nil, fmt.Errorf("%w: report %d is for timestep %d, expected %d",
				ErrConflictingMeasurement, i, r.Timestep, table.Timestep)
		}
		table.Valid = table.Valid && r.Valid
		if len(r.Workload) > 0 {
			if table.Workload == nil {
				table.Workload = make(map[string]any, len(r.Workload))
			}
			maps.Copy(table.Workload, r.Workload)
		}
		for _, rec := range r.Records {
			if len(rec.Entities) != len(rec.Values) {
				return nil, fmt.Errorf("measurement: %s has %d entities but %d values",
					rec.Key(), len(rec.Entities), len(rec.Values))
			}
			if err := a.add(table, rec); err != nil {
				return nil, err
			}
		}
	}
	return table, nil
}

func (a Aggregator) add(table *Table, rec northbound.Record) error {
	key := rec.Key()
	existing, dup := table.columns[key]
	if !dup {
		table.columns[key] = Column{
			Name:     rec.Name,
			Source:   rec.Source,
			CID:      rec.CID,
			Entities: slices.Clone(rec.Entities),
			Values:   slices.Clone(rec.Values),
			Tags:     maps.Clone(rec.Tags),
		}
		return nil
	}
	if !a.Mergeable[key] {
		return fmt.Errorf("%w: duplicate metric %q", ErrConflictingMeasurement, key)
	}
	existing.Entities = append(existing.Entities, rec.Entities...)
	existing.Values = append(existing.Values, rec.Values...)
	if len(rec.Tags) > 0 {
		if existing.Tags == nil {
			existing.Tags = make(map[string]any, len(rec.Tags))
		}
		maps.Copy(existing.Tags, rec.Tags)
	}
	table.columns[key] = existing
	return nil
}
