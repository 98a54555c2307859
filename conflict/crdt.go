package conflict

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/hupe1980/swarmcoord/core"
)

// DetectType infers CRDT merge semantics from a value's shape when no
// explicit crdt_type metadata is present: numeric values accumulate as
// counters, slices behave as sets, maps merge per key, everything else is an
// opaque register.
func DetectType(value any) core.CRDTType {
	if value == nil {
		return core.CRDTRegister
	}
	if _, ok := toFloat(value); ok {
		return core.CRDTCounter
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Slice, reflect.Array:
		return core.CRDTSet
	case reflect.Map:
		return core.CRDTMap
	default:
		return core.CRDTRegister
	}
}

// resolveCRDT merges all versions semantically. The merged result is owned by
// the synthetic coordinator agent with version max(inputs)+1; its timestamp is
// the maximum input timestamp so the merge stays a pure function of its inputs.
func resolveCRDT(stateKey string, versions []core.StateVersion) (core.StateVersion, error) {
	crdtType, err := effectiveType(stateKey, versions)
	if err != nil {
		return core.StateVersion{}, err
	}

	var value any
	switch crdtType {
	case core.CRDTCounter:
		value, err = mergeCounter(stateKey, versions)
	case core.CRDTSet:
		value, err = mergeSet(stateKey, versions)
	case core.CRDTMap:
		value, err = mergeMap(stateKey, versions)
	case core.CRDTRegister:
		value = lwwWinner(versions).Value
	}
	if err != nil {
		return core.StateVersion{}, err
	}

	merged := core.StateVersion{
		StateKey: stateKey,
		Value:    value,
		AgentID:  core.CoordinatorAgentID,
		Metadata: map[string]any{},
	}
	for _, v := range versions {
		if v.Version > merged.Version {
			merged.Version = v.Version
		}
		if v.Timestamp.After(merged.Timestamp) {
			merged.Timestamp = v.Timestamp
		}
	}
	merged.Version++

	clock, err := mergedClock(stateKey, versions)
	if err != nil {
		return core.StateVersion{}, err
	}
	if len(clock) > 0 {
		merged.Metadata[core.MetaVectorClock] = clock
	}
	merged.Metadata[core.MetaResolutionStrategy] = string(core.StrategyCRDT)
	merged.Metadata[core.MetaCRDTType] = string(crdtType)
	merged.Metadata[core.MetaResolvedAt] = merged.Timestamp
	merged.Metadata[core.MetaDiscardedVersions] = 0 // semantic merge keeps every contribution
	return merged, nil
}

// effectiveType prefers an explicit crdt_type hint from any input and rejects
// hints that name no known merge behavior.
func effectiveType(stateKey string, versions []core.StateVersion) (core.CRDTType, error) {
	for _, v := range versions {
		hint, ok := v.CRDTTypeHint()
		if !ok {
			continue
		}
		if !hint.Valid() {
			return "", &core.ResolutionError{StateKey: stateKey, Reason: fmt.Sprintf("unrecognized crdt_type %q from agent %s", hint, v.AgentID)}
		}
		return hint, nil
	}
	return DetectType(versions[0].Value), nil
}

func mergeCounter(stateKey string, versions []core.StateVersion) (any, error) {
	var sum float64
	for _, v := range versions {
		n, ok := toFloat(v.Value)
		if !ok {
			return nil, &core.ResolutionError{StateKey: stateKey, Reason: fmt.Sprintf("counter merge: non-numeric value from agent %s", v.AgentID)}
		}
		sum += n
	}
	if sum == math.Trunc(sum) {
		return int64(sum), nil
	}
	return sum, nil
}

// mergeSet unions all contributed elements. Elements are deduplicated by
// their string form and returned sorted so merge output is deterministic
// regardless of input order.
func mergeSet(stateKey string, versions []core.StateVersion) (any, error) {
	seen := map[string]any{}
	for _, v := range versions {
		rv := reflect.ValueOf(v.Value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, &core.ResolutionError{StateKey: stateKey, Reason: fmt.Sprintf("set merge: non-collection value from agent %s", v.AgentID)}
		}
		for i := 0; i < rv.Len(); i++ {
			el := rv.Index(i).Interface()
			seen[fmt.Sprintf("%v", el)] = el
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	union := make([]any, 0, len(keys))
	for _, k := range keys {
		union = append(union, seen[k])
	}
	return union, nil
}

// mergeMap merges per key: for each key present in any input, the value comes
// from whichever input has that key and the latest timestamp. Inputs are
// applied in ascending (timestamp, agent id) order so later writers overwrite.
func mergeMap(stateKey string, versions []core.StateVersion) (any, error) {
	ordered := make([]core.StateVersion, len(versions))
	copy(ordered, versions)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		return ordered[i].AgentID < ordered[j].AgentID
	})

	merged := map[string]any{}
	for _, v := range ordered {
		rv := reflect.ValueOf(v.Value)
		if rv.Kind() != reflect.Map {
			return nil, &core.ResolutionError{StateKey: stateKey, Reason: fmt.Sprintf("map merge: non-map value from agent %s", v.AgentID)}
		}
		for _, mk := range rv.MapKeys() {
			merged[fmt.Sprintf("%v", mk.Interface())] = rv.MapIndex(mk).Interface()
		}
	}
	return merged, nil
}

// mergedClock combines whatever vector clocks the inputs carry. A malformed
// clock aborts the merge rather than being silently ignored.
func mergedClock(stateKey string, versions []core.StateVersion) (core.VectorClock, error) {
	merged := core.VectorClock{}
	for _, v := range versions {
		raw, ok := v.VectorClockHint()
		if !ok {
			continue
		}
		clock, err := core.ParseVectorClock(raw)
		if err != nil {
			return nil, &core.ResolutionError{StateKey: stateKey, Reason: "malformed vector clock from agent " + v.AgentID, Err: err}
		}
		merged = merged.Merge(clock)
	}
	return merged, nil
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
