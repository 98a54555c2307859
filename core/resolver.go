package core

// ResolutionStrategy selects how conflicting state versions are reconciled.
type ResolutionStrategy string

const (
	// StrategyLWW keeps the version with the latest timestamp.
	StrategyLWW ResolutionStrategy = "lww"
	// StrategyVector uses vector clock dominance, falling back to LWW for
	// concurrent updates.
	StrategyVector ResolutionStrategy = "vector"
	// StrategyCRDT merges values semantically (counter/set/map/register).
	StrategyCRDT ResolutionStrategy = "crdt"
)

// Resolution strategy tags recorded in resolved version metadata.
const (
	// ResolutionVectorCausal marks a version that causally dominated all others.
	ResolutionVectorCausal = "vector_causal"
	// ResolutionVectorConcurrentLWW marks a concurrent-update LWW fallback.
	ResolutionVectorConcurrentLWW = "vector_concurrent_lww"
)

// Resolver reconciles a set of conflicting versions of one state key into a
// single version. Implementations are pure functions of their inputs plus the
// configured strategy; they never retain state between calls.
type Resolver interface {
	// Resolve picks or merges a winner among the conflicting versions.
	Resolve(stateKey string, conflicts []StateVersion) (StateVersion, error)

	// DetectConflicts reports the state keys that appear with more than one
	// distinct version across the given per-agent states.
	DetectConflicts(states map[string]StateVersion) []string
}
