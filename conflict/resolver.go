package conflict

import (
	"reflect"
	"sort"

	"github.com/hupe1980/swarmcoord/core"
	"github.com/hupe1980/swarmcoord/logging"
)

// Options configures a Resolver.
type Options struct {
	// Logger receives per-version drop notices. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Resolver reconciles conflicting state versions using a fixed strategy.
// Safe for concurrent use: it holds no mutable state.
type Resolver struct {
	strategy core.ResolutionStrategy
	logger   logging.Logger
}

// Compile-time contract check.
var _ core.Resolver = (*Resolver)(nil)

// New creates a resolver for the given strategy.
func New(strategy core.ResolutionStrategy, optFns ...func(o *Options)) *Resolver {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Resolver{strategy: strategy, logger: opts.Logger}
}

// Strategy returns the configured resolution strategy.
func (r *Resolver) Strategy() core.ResolutionStrategy { return r.strategy }

// Resolve picks or merges a winner among the conflicting versions of one
// state key. Structurally invalid single versions are logged and dropped;
// failures that would lose data (unknown crdt_type, malformed vector clock)
// abort with a ResolutionError.
func (r *Resolver) Resolve(stateKey string, conflicts []core.StateVersion) (core.StateVersion, error) {
	candidates := make([]core.StateVersion, 0, len(conflicts))
	for _, v := range conflicts {
		if err := v.Validate(); err != nil {
			r.logger.Warn("dropping invalid state version", "state_key", stateKey, "agent_id", v.AgentID, "error", err)
			continue
		}
		candidates = append(candidates, v.Normalized())
	}
	if len(candidates) == 0 {
		return core.StateVersion{}, &core.ResolutionError{StateKey: stateKey, Reason: "no valid versions to resolve"}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	switch r.strategy {
	case core.StrategyLWW:
		return resolveLWW(candidates, string(core.StrategyLWW)), nil
	case core.StrategyVector:
		return resolveVector(stateKey, candidates)
	case core.StrategyCRDT:
		return resolveCRDT(stateKey, candidates)
	default:
		return core.StateVersion{}, &core.ResolutionError{StateKey: stateKey, Reason: "unknown resolution strategy " + string(r.strategy)}
	}
}

// DetectConflicts reports every state key that appears with more than one
// distinct version across the per-agent states. Distinctness is judged on the
// value itself: agents holding equal copies are already in agreement.
func (r *Resolver) DetectConflicts(states map[string]core.StateVersion) []string {
	byKey := map[string][]core.StateVersion{}
	for _, v := range states {
		byKey[v.StateKey] = append(byKey[v.StateKey], v)
	}

	var conflicted []string
	for key, versions := range byKey {
		if hasDistinct(versions) {
			conflicted = append(conflicted, key)
		}
	}
	sort.Strings(conflicted)
	return conflicted
}

func hasDistinct(versions []core.StateVersion) bool {
	for i := 1; i < len(versions); i++ {
		if !reflect.DeepEqual(versions[i].Value, versions[0].Value) {
			return true
		}
	}
	return false
}

// lwwWinner returns the version with the maximum timestamp; an exact
// timestamp tie goes to the lexicographically greatest agent id so the
// outcome is stable across call sites and processes.
func lwwWinner(versions []core.StateVersion) core.StateVersion {
	winner := versions[0]
	for _, v := range versions[1:] {
		if v.Timestamp.After(winner.Timestamp) {
			winner = v
			continue
		}
		if v.Timestamp.Equal(winner.Timestamp) && v.AgentID > winner.AgentID {
			winner = v
		}
	}
	return winner
}

// resolveLWW picks the winner and annotates it. The resolved_at stamp reuses
// the winner's own timestamp so resolving the same conflict set twice yields
// identical output.
func resolveLWW(versions []core.StateVersion, strategyTag string) core.StateVersion {
	winner := lwwWinner(versions).Clone()
	winner.Metadata[core.MetaResolutionStrategy] = strategyTag
	winner.Metadata[core.MetaResolvedAt] = winner.Timestamp
	winner.Metadata[core.MetaDiscardedVersions] = len(versions) - 1
	return winner
}

// resolveVector applies causal ordering: a version whose clock dominates
// every other version is the unambiguous winner. Concurrent updates (no
// unique dominator) fall back to LWW with a distinct strategy tag.
func resolveVector(stateKey string, versions []core.StateVersion) (core.StateVersion, error) {
	clocks := make([]core.VectorClock, len(versions))
	for i, v := range versions {
		raw, ok := v.VectorClockHint()
		if !ok {
			clocks[i] = core.VectorClock{}
			continue
		}
		clock, err := core.ParseVectorClock(raw)
		if err != nil {
			return core.StateVersion{}, &core.ResolutionError{StateKey: stateKey, Reason: "malformed vector clock from agent " + v.AgentID, Err: err}
		}
		clocks[i] = clock
	}

	for i := range versions {
		dominatesAll := true
		for j := range versions {
			if i == j {
				continue
			}
			if !clocks[i].Dominates(clocks[j]) {
				dominatesAll = false
				break
			}
		}
		if dominatesAll {
			winner := versions[i].Clone()
			winner.Metadata[core.MetaResolutionStrategy] = core.ResolutionVectorCausal
			winner.Metadata[core.MetaResolvedAt] = winner.Timestamp
			winner.Metadata[core.MetaDiscardedVersions] = len(versions) - 1
			return winner, nil
		}
	}

	return resolveLWW(versions, core.ResolutionVectorConcurrentLWW), nil
}
