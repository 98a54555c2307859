// Package conflict implements the core.Resolver contract: reconciling a set
// of divergent copies of a shared state key into a single agreed version.
//
// Three strategies are provided:
//
//   - Last-Write-Wins: latest timestamp wins, greatest agent id breaks ties
//   - Vector: causal dominance via vector clocks, LWW fallback for concurrent
//     updates
//   - CRDT: semantic merge (counter/set/map/register) so no contribution is
//     lost
//
// The resolver is a pure function of its inputs plus the configured strategy;
// it never retains state between calls, which keeps resolution deterministic
// and trivially testable.
package conflict
