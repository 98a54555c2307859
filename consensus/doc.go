// Package consensus implements the coordination core's decision machinery:
// a Manager that broadcasts proposals, collects votes under a deadline and
// finalizes results, plus four interchangeable strategies implementing
// core.Algorithm:
//
//   - Quorum: vote ratio must strictly exceed a threshold
//   - Weighted: the same ratio test over configured per-agent weights
//   - Byzantine: tolerates up to f arbitrary agents given >= 3f+1 participants
//   - Gossip: probabilistic epidemic convergence via random peer sampling
//
// Quorum and Weighted assume all participants respond; Byzantine and Gossip
// are designed to tolerate partial agent unavailability.
package consensus
