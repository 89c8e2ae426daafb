package adapter

import (
	"fmt"
	"math"
)

// Params configures an adapter. EnvConfig is the free-form env_config section that is
// also sent to the server.
type Params struct {
	EnvConfig  map[string]any
	RewardType string
}

// Int reads a required integer. YAML yields int, JSON yields float64; both are accepted.
func (p Params) Int(key string) (int, error) {
	v, ok := p.EnvConfig[key]
	if !ok {
		return 0, fmt.Errorf("%w: env_config.%s is required", ErrInvalidParams, key)
	}
	return toInt(key, v)
}

// IntOr reads an optional integer.
func (p Params) IntOr(key string, def int) (int, error) {
	if _, ok := p.EnvConfig[key]; !ok {
		return def, nil
	}
	return p.Int(key)
}

// BoolOr reads an optional boolean.
func (p Params) BoolOr(key string, def bool) (bool, error) {
	v, ok := p.EnvConfig[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: env_config.%s must be a boolean, got %T", ErrInvalidParams, key, v)
	}
	return b, nil
}

// Section reads a nested mapping.
func (p Params) Section(key string) (Params, error) {
	v, ok := p.EnvConfig[key]
	if !ok {
		return Params{}, fmt.Errorf("%w: env_config.%s is required", ErrInvalidParams, key)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Params{}, fmt.Errorf("%w: env_config.%s must be a mapping, got %T", ErrInvalidParams, key, v)
	}
	return Params{EnvConfig: m, RewardType: p.RewardType}, nil
}

// List reads a sequence of mappings.
func (p Params) List(key string) ([]Params, error) {
	v, ok := p.EnvConfig[key]
	if !ok {
		return nil, fmt.Errorf("%w: env_config.%s is required", ErrInvalidParams, key)
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: env_config.%s must be a list, got %T", ErrInvalidParams, key, v)
	}
	out := make([]Params, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: env_config.%s[%d] must be a mapping, got %T", ErrInvalidParams, key, i, it)
		}
		out[i] = Params{EnvConfig: m, RewardType: p.RewardType}
	}
	return out, nil
}

func toInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: env_config.%s must be an integer, got %v", ErrInvalidParams, key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: env_config.%s must be an integer, got %T", ErrInvalidParams, key, v)
	}
}
