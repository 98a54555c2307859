package consensus

import (
	"fmt"
	"sort"

	"github.com/hupe1980/swarmcoord/core"
)

// minByzantineRounds is the minimum number of voting rounds considered before
// a Byzantine decision is finalized. Agents re-vote during the collection
// window; each successive vote from the same agent is one round.
const minByzantineRounds = 3

// Byzantine reaches agreement despite up to f participants behaving
// arbitrarily. It requires at least 3f+1 participants and flags agents whose
// vote changes between rounds; the decision counts only non-flagged final
// votes and approves when at least 2f+1 of them agree in favor.
type Byzantine struct {
	faultTolerance int
}

var _ core.Algorithm = (*Byzantine)(nil)

// NewByzantine creates a Byzantine strategy tolerating f faulty agents.
func NewByzantine(f int) *Byzantine {
	if f < 1 {
		f = 1
	}
	return &Byzantine{faultTolerance: f}
}

// Name implements core.Algorithm.
func (b *Byzantine) Name() string { return "byzantine" }

// FaultTolerance returns the configured f.
func (b *Byzantine) FaultTolerance() int { return b.faultTolerance }

// Propose rejects proposals whose participant set cannot tolerate f faults.
func (b *Byzantine) Propose(p *core.Proposal) error {
	required := 3*b.faultTolerance + 1
	if len(p.Participants) < required {
		return fmt.Errorf("%w: byzantine consensus with f=%d requires at least %d participants, got %d",
			core.ErrInvalidProposal, b.faultTolerance, required, len(p.Participants))
	}
	return nil
}

// Decide implements core.Algorithm.
func (b *Byzantine) Decide(p *core.Proposal, tally *core.VoteTally) (*core.ConsensusResult, error) {
	malicious := map[string]bool{}
	rounds := minByzantineRounds
	for agent, history := range tally.History {
		if len(history) > rounds {
			rounds = len(history)
		}
		for i := 1; i < len(history); i++ {
			if history[i].Type != history[i-1].Type {
				// A flip between rounds with no legitimate cause for change.
				malicious[agent] = true
				break
			}
		}
	}

	var votesFor, votesAgainst, votesAbstain, agreements int
	for agent, v := range tally.Latest {
		switch v.Type {
		case core.VoteFor:
			votesFor++
		case core.VoteAgainst:
			votesAgainst++
		case core.VoteAbstain:
			votesAbstain++
		}
		if v.Type == core.VoteFor && !malicious[agent] {
			agreements++
		}
	}

	required := 2*b.faultTolerance + 1
	decision := core.DecisionRejected
	if agreements >= required {
		decision = core.DecisionApproved
	}

	flagged := make([]string, 0, len(malicious))
	for agent := range malicious {
		flagged = append(flagged, agent)
	}
	sort.Strings(flagged)

	return &core.ConsensusResult{
		ProposalID:   p.ID,
		Decision:     decision,
		VotesFor:     votesFor,
		VotesAgainst: votesAgainst,
		VotesAbstain: votesAbstain,
		Participants: p.Participants,
		Algorithm:    b.Name(),
		Metadata: map[string]any{
			"malicious_agents":   flagged,
			"rounds":             rounds,
			"required_agreement": required,
			"fault_tolerance":    b.faultTolerance,
		},
	}, nil
}
