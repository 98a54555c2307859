package core

// Algorithm is a pluggable consensus strategy. Implementations are stateless
// with respect to individual proposals: all per-proposal vote state is owned
// by the Manager and handed over at decision time.
//
// Propose validates a proposal before any broadcast happens (e.g. Byzantine
// tolerance requires >= 3f+1 participants). Decide computes the final result
// from whatever votes were collected; it is called exactly once per proposal,
// after the deadline or once every participant has voted.
type Algorithm interface {
	// Name returns the registry key for this strategy.
	Name() string

	// Propose validates that the proposal can be decided by this strategy.
	Propose(p *Proposal) error

	// Decide computes the consensus outcome from the collected votes. The
	// tally is a snapshot owned by the callee; mutation is safe.
	Decide(p *Proposal, tally *VoteTally) (*ConsensusResult, error)
}
