package core

import (
	"fmt"
	"time"
)

// Metadata keys recognized on StateVersion.
const (
	// MetaCRDTType explicitly selects the CRDT merge behavior for a value.
	MetaCRDTType = "crdt_type"
	// MetaVectorClock carries a map of agent id to integer counter used for
	// causal ordering.
	MetaVectorClock = "vector_clock"
	// MetaResolutionStrategy records which strategy produced a resolved version.
	MetaResolutionStrategy = "resolution_strategy"
	// MetaResolvedAt records when a resolved version was produced.
	MetaResolvedAt = "resolved_at"
	// MetaDiscardedVersions records how many conflicting inputs lost.
	MetaDiscardedVersions = "discarded_versions"
)

// CoordinatorAgentID is the synthetic owner of versions produced by a CRDT
// merge, which combines contributions from multiple agents.
const CoordinatorAgentID = "coordinator"

// CRDTType identifies the merge semantics applied to a conflicting value.
type CRDTType string

const (
	// CRDTCounter sums all contributed numeric values.
	CRDTCounter CRDTType = "counter"
	// CRDTSet unions all contributed collections.
	CRDTSet CRDTType = "set"
	// CRDTMap merges maps per key, latest timestamp winning each key.
	CRDTMap CRDTType = "map"
	// CRDTRegister keeps the whole value from the latest writer.
	CRDTRegister CRDTType = "register"
)

// Valid reports whether the type names a known merge behavior.
func (c CRDTType) Valid() bool {
	switch c {
	case CRDTCounter, CRDTSet, CRDTMap, CRDTRegister:
		return true
	default:
		return false
	}
}

// StateVersion is one agent's copy of a shared value. Version numbers are
// monotonic per contributing agent; timestamps are normalized to UTC so that
// last-write-wins comparisons are well defined across zones.
type StateVersion struct {
	StateKey  string         `json:"state_key"`
	Value     any            `json:"value"`
	Version   int64          `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	AgentID   string         `json:"agent_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewStateVersion builds a version with a UTC timestamp and empty metadata.
func NewStateVersion(stateKey string, value any, version int64, agentID string) StateVersion {
	return StateVersion{
		StateKey:  stateKey,
		Value:     value,
		Version:   version,
		Timestamp: time.Now().UTC(),
		AgentID:   agentID,
		Metadata:  map[string]any{},
	}
}

// Validate checks the structural invariants that every version must satisfy.
func (v StateVersion) Validate() error {
	if v.StateKey == "" {
		return fmt.Errorf("state version: empty state_key")
	}
	if v.Version < 0 {
		return fmt.Errorf("state version %q: negative version %d", v.StateKey, v.Version)
	}
	return nil
}

// Normalized returns a copy with the timestamp converted to UTC.
func (v StateVersion) Normalized() StateVersion {
	v.Timestamp = v.Timestamp.UTC()
	return v
}

// CRDTTypeHint returns the explicit crdt_type metadata entry, if any.
func (v StateVersion) CRDTTypeHint() (CRDTType, bool) {
	if v.Metadata == nil {
		return "", false
	}
	raw, ok := v.Metadata[MetaCRDTType]
	if !ok {
		return "", false
	}
	switch t := raw.(type) {
	case CRDTType:
		return t, true
	case string:
		return CRDTType(t), true
	default:
		return CRDTType(fmt.Sprintf("%v", raw)), true
	}
}

// VectorClockHint returns the raw vector_clock metadata entry, if any. Use
// ParseVectorClock to validate and normalize it.
func (v StateVersion) VectorClockHint() (any, bool) {
	if v.Metadata == nil {
		return nil, false
	}
	raw, ok := v.Metadata[MetaVectorClock]
	return raw, ok
}

// Clone returns a copy with its own metadata map so callers can annotate a
// version without mutating the original.
func (v StateVersion) Clone() StateVersion {
	clone := v
	clone.Metadata = make(map[string]any, len(v.Metadata))
	for k, val := range v.Metadata {
		clone.Metadata[k] = val
	}
	return clone
}
