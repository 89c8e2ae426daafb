package measurement

import (
	"fmt"
	"maps"
	"slices"

	"github.com/boristopalov/networkgym/pkg/northbound"
)

// Column is one metric of a table: a value per entity, in arrival order.
type Column struct {
	Name     string
	Source   string
	CID      string
	Entities []int
	Values   []float64
	Tags     map[string]any
}

// Value returns the value reported for entity.
func (c Column) Value(entity int) (float64, bool) {
	for i, e := range c.Entities {
		if e == entity {
			return c.Values[i], true
		}
	}
	return 0, false
}

// Table is the merged measurement of one timestep, keyed by record key.
type Table struct {
	Timestep int64
	Valid    bool
	Workload map[string]any
	columns  map[string]Column
}

// Keys returns every column key in sorted order.
func (t *Table) Keys() []string {
	return slices.Sorted(maps.Keys(t.columns))
}

// Len returns the number of columns.
func (t *Table) Len() int {
	return len(t.columns)
}

// Column looks up a column by key ([source::]name[::cid]).
func (t *Table) Column(key string) (Column, bool) {
	c, ok := t.columns[key]
	return c, ok
}

// Tag returns a tag of the first column (in key order) that carries it.
func (t *Table) Tag(name string) (any, bool) {
	for _, k := range t.Keys() {
		if v, ok := t.columns[k].Tags[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Fill returns the column's values for entities 0..n-1, with fill for every entity it
// does not report. Entities outside [0, n) are an error.
func (c Column) Fill(n int, fill float64) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		out[i] = fill
	}
	for i, e := range c.Entities {
		if e < 0 || e >= n {
			return nil, fmt.Errorf("measurement: %s reports entity %d outside [0, %d)", c.key(), e, n)
		}
		out[e] = c.Values[i]
	}
	return out, nil
}

func (c Column) key() string {
	return northbound.Record{Name: c.Name, Source: c.Source, CID: c.CID}.Key()
}

// Fill is Column.Fill by key; a missing column yields n fill values.
func (t *Table) Fill(key string, n int, fill float64) ([]float64, error) {
	return t.columns[key].Fill(n, fill)
}

// Find returns the first column, in key order, with the given name and cid whatever
// its source.
func (t *Table) Find(name, cid string) (Column, bool) {
	for _, k := range t.Keys() {
		c := t.columns[k]
		if c.Name == name && c.CID == cid {
			return c, true
		}
	}
	return Column{}, false
}

// Mean returns the mean of a column's values.
func (t *Table) Mean(key string) (float64, error) {
	c, err := t.nonEmpty(key)
	if err != nil {
		return 0, err
	}
	m, _ := c.Mean()
	return m, nil
}

// Max returns the largest value of a column.
func (t *Table) Max(key string) (float64, error) {
	c, err := t.nonEmpty(key)
	if err != nil {
		return 0, err
	}
	return slices.Max(c.Values), nil
}

// Mean returns the mean of the values; false when there are none.
func (c Column) Mean() (float64, bool) {
	if len(c.Values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range c.Values {
		sum += v
	}
	return sum / float64(len(c.Values)), true
}

func (t *Table) nonEmpty(key string) (Column, error) {
	c, ok := t.columns[key]
	if !ok || len(c.Values) == 0 {
		return Column{}, fmt.Errorf("%w: %s", ErrMissingMeasurement, key)
	}
	return c, nil
}
