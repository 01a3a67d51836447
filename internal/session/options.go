package session

import (
	"fmt"
	"math"
	"strings"
)

// optionSet keeps option values in the order they were first set so re-announcement after a
// reconnect is deterministic.
type optionSet struct {
	keys   []string
	values map[string]any
}

func newOptionSet() optionSet {
	return optionSet{values: make(map[string]any)}
}

func (o *optionSet) set(key string, value any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

func (o *optionSet) each(fn func(key string, value any) bool) {
	for _, key := range o.keys {
		if !fn(key, o.values[key]) {
			return
		}
	}
}

func (o *optionSet) snapshot() map[string]any {
	if len(o.keys) == 0 {
		return nil
	}
	out := make(map[string]any, len(o.keys))
	for _, key := range o.keys {
		out[key] = o.values[key]
	}
	return out
}

func validateOption(key string, value any) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidOption)
	}
	switch v := value.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return key, nil
	case float32:
		return key, checkFinite(key, float64(v))
	case float64:
		return key, checkFinite(key, v)
	default:
		return "", fmt.Errorf("%w: %s has unsupported value type %T", ErrInvalidOption, key, value)
	}
}

// checkFinite rejects values JSON cannot carry.
func checkFinite(key string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be a finite number, got %v", ErrInvalidOption, key, v)
	}
	return nil
}
