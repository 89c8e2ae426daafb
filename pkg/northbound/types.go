package northbound

import (
	"encoding/json"
	"fmt"
)

// MessageType is the "type" discriminator carried by every envelope.
type MessageType string

const (
	TypeStart           MessageType = "env-start"
	TypeAction          MessageType = "env-action"
	TypeMeasurement     MessageType = "env-measurement"
	TypeError           MessageType = "env-error"
	TypeNoAvailableWork MessageType = "no-available-worker"
)

// Record is one named metric (inbound) or parameter (outbound) with a value per entity.
// Entities are user or slice ids; Tags holds every other field of the wire object
// (end_ts, unit, direction, ...).
type Record struct {
	Name     string
	Source   string
	CID      string
	Entities []int
	Values   []float64
	Tags     map[string]any
}

// Key identifies the record inside a measurement table: [source::]name[::cid].
func (r Record) Key() string {
	key := r.Name
	if r.Source != "" {
		key = r.Source + "::" + key
	}
	if r.CID != "" {
		key = key + "::" + r.CID
	}
	return key
}

var reservedRecordFields = map[string]struct{}{
	"name": {}, "source": {}, "cid": {}, "user": {}, "id": {}, "value": {},
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Tags)+5)
	for k, v := range r.Tags {
		if _, reserved := reservedRecordFields[k]; reserved {
			continue
		}
		out[k] = v
	}
	out["name"] = r.Name
	if r.Source != "" {
		out["source"] = r.Source
	}
	if r.CID != "" {
		out["cid"] = r.CID
	}
	entities := r.Entities
	if entities == nil {
		entities = []int{}
	}
	values := r.Values
	if values == nil {
		values = []float64{}
	}
	out["user"] = entities
	out["value"] = values
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var rec Record
	if err := unmarshalField(raw, "name", &rec.Name); err != nil {
		return err
	}
	if err := unmarshalField(raw, "source", &rec.Source); err != nil {
		return err
	}
	if err := unmarshalField(raw, "cid", &rec.CID); err != nil {
		return err
	}
	entityField := "user"
	if _, ok := raw["user"]; !ok {
		entityField = "id"
	}
	if err := unmarshalField(raw, entityField, &rec.Entities); err != nil {
		return err
	}
	if err := unmarshalField(raw, "value", &rec.Values); err != nil {
		return err
	}
	if len(rec.Entities) != len(rec.Values) {
		return fmt.Errorf("record %q: %d entities but %d values", rec.Name, len(rec.Entities), len(rec.Values))
	}
	for k, v := range raw {
		if _, reserved := reservedRecordFields[k]; reserved {
			continue
		}
		var tag any
		if err := json.Unmarshal(v, &tag); err != nil {
			return fmt.Errorf("record %q tag %q: %w", rec.Name, k, err)
		}
		if rec.Tags == nil {
			rec.Tags = make(map[string]any)
		}
		rec.Tags[k] = tag
	}
	*r = rec
	return nil
}

func unmarshalField(raw map[string]json.RawMessage, field string, dst any) error {
	v, ok := raw[field]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("field %q: %w", field, err)
	}
	return nil
}

// MeasurementReport is one inbound "env-measurement" message.
type MeasurementReport struct {
	Timestep int64
	Valid    bool
	// More is set when another report for the same timestep follows.
	More bool
	// Seeded is set when the remote reseeded its generator for this report.
	Seeded   bool
	Records  []Record
	Workload map[string]any
}

// PolicyMessage is one outbound "env-action" message. An empty Actions list asks the
// remote to keep applying its system default policy.
type PolicyMessage struct {
	Timestep int64
	Seed     *uint64
	Actions  []Record
}

// StartRequest opens a simulation for a client identity.
type StartRequest struct {
	Identity  string
	Env       string
	Seed      *uint64
	EnvConfig map[string]any
}
