package consensus

import (
	"fmt"

	"github.com/hupe1980/swarmcoord/core"
)

// Common quorum thresholds.
const (
	// ThresholdSimple is a simple majority.
	ThresholdSimple = 0.5
	// ThresholdSupermajority is a two-thirds supermajority.
	ThresholdSupermajority = 0.67
	// ThresholdUnanimous is full agreement. The strict-exceed rule applies
	// here too: a ratio of exactly 1.0 rejects.
	ThresholdUnanimous = 1.0
)

// Quorum approves a proposal when votes_for / max(1, votes_for+votes_against)
// strictly exceeds the configured threshold. Abstentions are excluded from
// the denominator; an exact tie (ratio == threshold) rejects.
type Quorum struct {
	threshold float64
}

var _ core.Algorithm = (*Quorum)(nil)

// NewQuorum creates a quorum strategy with the given threshold.
func NewQuorum(threshold float64) *Quorum {
	return &Quorum{threshold: threshold}
}

// Name implements core.Algorithm.
func (q *Quorum) Name() string { return "quorum" }

// Propose validates the proposal has someone to ask.
func (q *Quorum) Propose(p *core.Proposal) error {
	if len(p.Participants) == 0 {
		return fmt.Errorf("%w: quorum requires at least one participant", core.ErrInvalidProposal)
	}
	return nil
}

// Decide implements core.Algorithm.
func (q *Quorum) Decide(p *core.Proposal, tally *core.VoteTally) (*core.ConsensusResult, error) {
	votesFor, votesAgainst, votesAbstain := tally.Counts()
	ratio := quorumRatio(float64(votesFor), float64(votesAgainst))

	decision := core.DecisionRejected
	if ratio > q.threshold {
		decision = core.DecisionApproved
	}

	return &core.ConsensusResult{
		ProposalID:   p.ID,
		Decision:     decision,
		VotesFor:     votesFor,
		VotesAgainst: votesAgainst,
		VotesAbstain: votesAbstain,
		Participants: p.Participants,
		Algorithm:    q.Name(),
		Metadata: map[string]any{
			"threshold": q.threshold,
			"ratio":     ratio,
		},
	}, nil
}

func quorumRatio(votesFor, votesAgainst float64) float64 {
	denom := votesFor + votesAgainst
	if denom < 1 {
		denom = 1
	}
	return votesFor / denom
}
