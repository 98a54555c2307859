package core

import "time"

// Decision is the binary outcome of a consensus round.
type Decision string

const (
	// DecisionApproved indicates the proposal passed.
	DecisionApproved Decision = "approved"
	// DecisionRejected indicates the proposal did not pass.
	DecisionRejected Decision = "rejected"
)

// ConsensusResult is the immutable outcome of a finished proposal.
//
// Metadata carries algorithm-specific detail: Byzantine sets
// "malicious_agents" and "rounds", Gossip sets "rounds_completed",
// "converged" and "agreement", Weighted sets "weight_for"/"weight_against",
// and the manager sets "missing_votes" when the deadline expired before all
// participants responded.
type ConsensusResult struct {
	ProposalID   string         `json:"proposal_id"`
	Decision     Decision       `json:"decision"`
	VotesFor     int            `json:"votes_for"`
	VotesAgainst int            `json:"votes_against"`
	VotesAbstain int            `json:"votes_abstain"`
	Participants []string       `json:"participants"`
	Algorithm    string         `json:"algorithm"`
	Duration     time.Duration  `json:"duration"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Approved reports whether the decision was approval.
func (r *ConsensusResult) Approved() bool { return r.Decision == DecisionApproved }

// VoteTally is the vote state handed to an Algorithm at decision time.
//
// Latest holds the surviving vote per agent (last-vote-wins). History holds
// every vote received per agent in arrival order; round-based algorithms
// (Byzantine) treat successive entries as successive voting rounds.
type VoteTally struct {
	Latest  map[string]Vote
	History map[string][]Vote
}

// NewVoteTally returns an empty tally.
func NewVoteTally() *VoteTally {
	return &VoteTally{Latest: map[string]Vote{}, History: map[string][]Vote{}}
}

// Add records a vote, overwriting the agent's previous position while
// appending to its history.
func (t *VoteTally) Add(v Vote) {
	t.Latest[v.AgentID] = v
	t.History[v.AgentID] = append(t.History[v.AgentID], v)
}

// Counts returns the number of for/against/abstain votes among the latest
// positions.
func (t *VoteTally) Counts() (votesFor, votesAgainst, votesAbstain int) {
	for _, v := range t.Latest {
		switch v.Type {
		case VoteFor:
			votesFor++
		case VoteAgainst:
			votesAgainst++
		case VoteAbstain:
			votesAbstain++
		}
	}
	return votesFor, votesAgainst, votesAbstain
}

// Clone returns a deep copy safe for use after the manager releases its lock.
func (t *VoteTally) Clone() *VoteTally {
	clone := NewVoteTally()
	for k, v := range t.Latest {
		clone.Latest[k] = v
	}
	for k, vs := range t.History {
		cp := make([]Vote, len(vs))
		copy(cp, vs)
		clone.History[k] = cp
	}
	return clone
}
