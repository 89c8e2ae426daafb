package northbound

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

const recordDefs = `"$defs": {
    "record": {
      "type": "object",
      "required": ["name", "value"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "source": {"type": "string"},
        "cid": {"type": "string"},
        "user": {"type": "array", "items": {"type": "integer"}},
        "id": {"type": "array", "items": {"type": "integer"}},
        "value": {"type": "array", "items": {"type": "number"}}
      }
    }
  }`

var (
	measurementSchema = jsonschema.MustCompileString("env-measurement.json", `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "timestep", "metric_list"],
  "properties": {
    "type": {"const": "env-measurement"},
    "timestep": {"type": "integer", "minimum": 0},
    "valid": {"type": "boolean"},
    "more": {"type": "boolean"},
    "seeded": {"type": "boolean"},
    "metric_list": {"type": "array", "items": {"$ref": "#/$defs/record"}},
    "workload_stats": {"type": "object"}
  },
  `+recordDefs+`
}`)

	actionSchema = jsonschema.MustCompileString("env-action.json", `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "timestep", "action_list"],
  "properties": {
    "type": {"const": "env-action"},
    "timestep": {"type": "integer", "minimum": 0},
    "seed": {"type": "integer", "minimum": 0},
    "action_list": {"type": "array", "items": {"$ref": "#/$defs/record"}}
  },
  `+recordDefs+`
}`)

	startSchema = jsonschema.MustCompileString("env-start.json", `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "identity", "env"],
  "properties": {
    "type": {"const": "env-start"},
    "identity": {"type": "string", "minLength": 1},
    "env": {"type": "string", "minLength": 1},
    "seed": {"type": "integer", "minimum": 0},
    "env_config": {"type": "object"}
  }
}`)
)

type wireReport struct {
	Type       MessageType    `json:"type"`
	Timestep   int64          `json:"timestep"`
	Valid      *bool          `json:"valid,omitempty"`
	More       bool           `json:"more,omitempty"`
	Seeded     bool           `json:"seeded,omitempty"`
	MetricList []Record       `json:"metric_list"`
	Workload   map[string]any `json:"workload_stats,omitempty"`
}

type wireAction struct {
	Type       MessageType `json:"type"`
	Timestep   int64       `json:"timestep"`
	Seed       *uint64     `json:"seed,omitempty"`
	ActionList []Record    `json:"action_list"`
}

type wireStart struct {
	Type      MessageType    `json:"type"`
	Identity  string         `json:"identity"`
	Env       string         `json:"env"`
	Seed      *uint64        `json:"seed,omitempty"`
	EnvConfig map[string]any `json:"env_config,omitempty"`
}

type wireError struct {
	Type     MessageType `json:"type"`
	ErrorMsg string      `json:"error_msg"`
}

// EncodePolicy serializes an "env-action" envelope.
func EncodePolicy(p PolicyMessage) ([]byte, error) {
	actions := p.Actions
	if actions == nil {
		actions = []Record{}
	}
	return json.Marshal(wireAction{
		Type:       TypeAction,
		Timestep:   p.Timestep,
		Seed:       p.Seed,
		ActionList: actions,
	})
}

// EncodeStart serializes an "env-start" envelope.
func EncodeStart(s StartRequest) ([]byte, error) {
	return json.Marshal(wireStart{
		Type:      TypeStart,
		Identity:  s.Identity,
		Env:       s.Env,
		Seed:      s.Seed,
		EnvConfig: s.EnvConfig,
	})
}

// EncodeReport serializes an "env-measurement" envelope. Used by simulator peers.
func EncodeReport(r MeasurementReport) ([]byte, error) {
	valid := r.Valid
	records := r.Records
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(wireReport{
		Type:       TypeMeasurement,
		Timestep:   r.Timestep,
		Valid:      &valid,
		More:       r.More,
		Seeded:     r.Seeded,
		MetricList: records,
		Workload:   r.Workload,
	})
}

// EncodeError serializes an "env-error" envelope.
func EncodeError(msg string) ([]byte, error) {
	return json.Marshal(wireError{Type: TypeError, ErrorMsg: msg})
}

// EncodeNoAvailableWorker serializes the refusal sent when no simulator can take a session.
func EncodeNoAvailableWorker() ([]byte, error) {
	return json.Marshal(struct {
		Type MessageType `json:"type"`
	}{Type: TypeNoAvailableWork})
}

// DecodeReport parses a server reply. Measurement envelopes are returned as reports,
// "env-error" as *RemoteError, "no-available-worker" as ErrConnection; anything else
// wraps ErrMalformedMessage.
func DecodeReport(data []byte) (MeasurementReport, error) {
	typ, err := sniffType(data)
	if err != nil {
		return MeasurementReport{}, err
	}
	switch typ {
	case TypeMeasurement:
		if err := validate(measurementSchema, data); err != nil {
			return MeasurementReport{}, err
		}
		var w wireReport
		if err := json.Unmarshal(data, &w); err != nil {
			return MeasurementReport{}, malformed("env-measurement: %v", err)
		}
		valid := true
		if w.Valid != nil {
			valid = *w.Valid
		}
		return MeasurementReport{
			Timestep: w.Timestep,
			Valid:    valid,
			More:     w.More,
			Seeded:   w.Seeded,
			Records:  w.MetricList,
			Workload: w.Workload,
		}, nil
	case TypeError:
		var w wireError
		if err := json.Unmarshal(data, &w); err != nil {
			return MeasurementReport{}, malformed("env-error: %v", err)
		}
		return MeasurementReport{}, &RemoteError{Message: w.ErrorMsg}
	case TypeNoAvailableWork:
		return MeasurementReport{}, fmt.Errorf("%w: no available worker, retry later", ErrConnection)
	default:
		return MeasurementReport{}, malformed("unexpected message type %q", typ)
	}
}

// ClientMessage is a decoded client envelope; exactly one of Start and Policy is set.
type ClientMessage struct {
	Type   MessageType
	Start  *StartRequest
	Policy *PolicyMessage
}

// DecodeClientMessage parses an envelope sent by a client. Used by simulator peers.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	typ, err := sniffType(data)
	if err != nil {
		return ClientMessage{}, err
	}
	switch typ {
	case TypeStart:
		if err := validate(startSchema, data); err != nil {
			return ClientMessage{}, err
		}
		var w wireStart
		if err := json.Unmarshal(data, &w); err != nil {
			return ClientMessage{}, malformed("env-start: %v", err)
		}
		return ClientMessage{Type: typ, Start: &StartRequest{
			Identity:  w.Identity,
			Env:       w.Env,
			Seed:      w.Seed,
			EnvConfig: w.EnvConfig,
		}}, nil
	case TypeAction:
		if err := validate(actionSchema, data); err != nil {
			return ClientMessage{}, err
		}
		var w wireAction
		if err := json.Unmarshal(data, &w); err != nil {
			return ClientMessage{}, malformed("env-action: %v", err)
		}
		return ClientMessage{Type: typ, Policy: &PolicyMessage{
			Timestep: w.Timestep,
			Seed:     w.Seed,
			Actions:  w.ActionList,
		}}, nil
	default:
		return ClientMessage{}, malformed("unexpected message type %q", typ)
	}
}

func sniffType(data []byte) (MessageType, error) {
	if !gjson.ValidBytes(data) {
		return "", malformed("payload is not valid JSON")
	}
	t := gjson.GetBytes(data, "type")
	if !t.Exists() || t.Type != gjson.String {
		return "", malformed("missing string field \"type\"")
	}
	return MessageType(t.String()), nil
}

func validate(schema *jsonschema.Schema, data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return malformed("%v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return malformed("%v", err)
	}
	return nil
}
