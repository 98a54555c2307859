package testutil

import (
	"time"

	"github.com/hupe1980/swarmcoord/core"
)

// VersionBuilder helps construct state versions with fluent chaining for tests.
// Example:
//
//	v := NewVersionBuilder("counter").Value(42).Agent("a1").At(t0).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type VersionBuilder struct {
	stateKey string
	value    any
	version  int64
	agentID  string
	ts       time.Time
	metadata map[string]any
}

// NewVersionBuilder creates a builder for the given state key with version 1
// and default agent "agent-1".
func NewVersionBuilder(stateKey string) *VersionBuilder {
	return &VersionBuilder{stateKey: stateKey, version: 1, agentID: "agent-1", ts: time.Now().UTC(), metadata: map[string]any{}}
}

// Value sets the payload value (chainable).
func (b *VersionBuilder) Value(v any) *VersionBuilder { b.value = v; return b }

// Version sets the per-agent version counter (chainable).
func (b *VersionBuilder) Version(n int64) *VersionBuilder { b.version = n; return b }

// Agent sets the contributing agent id (chainable).
func (b *VersionBuilder) Agent(id string) *VersionBuilder { b.agentID = id; return b }

// At sets the version timestamp (chainable). Use fixed instants where
// determinism matters.
func (b *VersionBuilder) At(t time.Time) *VersionBuilder { b.ts = t; return b }

// Meta sets a metadata entry (chainable).
func (b *VersionBuilder) Meta(key string, v any) *VersionBuilder { b.metadata[key] = v; return b }

// CRDT sets the crdt_type metadata hint (chainable).
func (b *VersionBuilder) CRDT(t core.CRDTType) *VersionBuilder {
	b.metadata[core.MetaCRDTType] = string(t)
	return b
}

// Clock sets the vector_clock metadata entry (chainable).
func (b *VersionBuilder) Clock(c core.VectorClock) *VersionBuilder {
	b.metadata[core.MetaVectorClock] = c
	return b
}

// Build constructs the core.StateVersion value.
func (b *VersionBuilder) Build() core.StateVersion {
	v := core.StateVersion{
		StateKey:  b.stateKey,
		Value:     b.value,
		Version:   b.version,
		Timestamp: b.ts,
		AgentID:   b.agentID,
		Metadata:  map[string]any{},
	}
	for k, val := range b.metadata {
		v.Metadata[k] = val
	}
	return v
}

// Votes builds one vote per agent id with the given type, useful for bulk
// tally setup.
func Votes(t core.VoteType, agents ...string) []core.Vote {
	votes := make([]core.Vote, 0, len(agents))
	for _, a := range agents {
		votes = append(votes, core.NewVote(a, t))
	}
	return votes
}
