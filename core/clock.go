package core

import "fmt"

// VectorClock maps agent ids to logical counters. It detects causal ordering
// between distributed updates: one clock dominates another when it has seen
// at least everything the other has, and strictly more of something.
type VectorClock map[string]int64

// Dominates reports whether c is component-wise >= other across the union of
// known agent ids and strictly greater in at least one component.
func (c VectorClock) Dominates(other VectorClock) bool {
	strict := false
	for agent, n := range other {
		if c[agent] < n {
			return false
		}
		if c[agent] > n {
			strict = true
		}
	}
	for agent, n := range c {
		if _, seen := other[agent]; !seen && n > 0 {
			strict = true
		}
	}
	return strict
}

// Concurrent reports whether neither clock dominates the other.
func (c VectorClock) Concurrent(other VectorClock) bool {
	return !c.Dominates(other) && !other.Dominates(c)
}

// Merge returns the component-wise maximum of both clocks.
func (c VectorClock) Merge(other VectorClock) VectorClock {
	merged := make(VectorClock, len(c)+len(other))
	for agent, n := range c {
		merged[agent] = n
	}
	for agent, n := range other {
		if n > merged[agent] {
			merged[agent] = n
		}
	}
	return merged
}

// Clone returns an independent copy of the clock.
func (c VectorClock) Clone() VectorClock {
	clone := make(VectorClock, len(c))
	for agent, n := range c {
		clone[agent] = n
	}
	return clone
}

// ParseVectorClock normalizes the metadata representation of a vector clock.
// Decoded JSON arrives as map[string]any with float64 counters; a counter
// with a fractional part (or any non-numeric entry) is malformed and produces
// an error rather than a guess.
func ParseVectorClock(raw any) (VectorClock, error) {
	switch m := raw.(type) {
	case VectorClock:
		return m.Clone(), nil
	case map[string]int64:
		clock := make(VectorClock, len(m))
		for agent, n := range m {
			clock[agent] = n
		}
		return clock, nil
	case map[string]int:
		clock := make(VectorClock, len(m))
		for agent, n := range m {
			clock[agent] = int64(n)
		}
		return clock, nil
	case map[string]any:
		clock := make(VectorClock, len(m))
		for agent, v := range m {
			n, err := toCounter(v)
			if err != nil {
				return nil, fmt.Errorf("vector clock entry %q: %w", agent, err)
			}
			clock[agent] = n
		}
		return clock, nil
	default:
		return nil, fmt.Errorf("vector clock has unsupported type %T", raw)
	}
}

func toCounter(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("non-integer counter %v", n)
		}
		return int64(n), nil
	case float32:
		if float64(n) != float64(int64(n)) {
			return 0, fmt.Errorf("non-integer counter %v", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("non-integer counter of type %T", v)
	}
}
