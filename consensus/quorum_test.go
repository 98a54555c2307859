package consensus

import (
	"fmt"
	"testing"

	"github.com/hupe1980/swarmcoord/core"
	"github.com/hupe1980/swarmcoord/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tallyOf(votes ...core.Vote) *core.VoteTally {
	tally := core.NewVoteTally()
	for _, v := range votes {
		tally.Add(v)
	}
	return tally
}

func proposalWith(agents ...string) *core.Proposal {
	p := core.NewProposal("payload", agents)
	return p
}

func TestQuorum_SimpleMajorityApproves(t *testing.T) {
	q := NewQuorum(ThresholdSimple)
	p := proposalWith("a1", "a2", "a3")
	tally := tallyOf(append(testutil.Votes(core.VoteFor, "a1", "a2"), core.NewVote("a3", core.VoteAgainst))...)

	result, err := q.Decide(p, tally)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionApproved, result.Decision)
	assert.Equal(t, 2, result.VotesFor)
	assert.Equal(t, 1, result.VotesAgainst)
}

func TestQuorum_SupermajorityEdgeRejects(t *testing.T) {
	// 2 for / 1 against => ratio 0.667 which does not strictly exceed 0.67.
	q := NewQuorum(ThresholdSupermajority)
	p := proposalWith("a1", "a2", "a3")
	tally := tallyOf(append(testutil.Votes(core.VoteFor, "a1", "a2"), core.NewVote("a3", core.VoteAgainst))...)

	result, err := q.Decide(p, tally)
	require.NoError(t, err)
	assert.Equal(t, core.DecisionRejected, result.Decision)
}

func TestQuorum_ExactTieRejects(t *testing.T) {
	q := NewQuorum(ThresholdSimple)
	p := proposalWith("a1", "a2")
	tally := tallyOf(core.NewVote("a1", core.VoteFor), core.NewVote("a2", core.VoteAgainst))

	result, err := q.Decide(p, tally)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionRejected, result.Decision)
	assert.Equal(t, 0.5, result.Metadata["ratio"])
}

func TestQuorum_AbstentionsExcludedFromDenominator(t *testing.T) {
	q := NewQuorum(ThresholdSimple)
	p := proposalWith("a1", "a2", "a3", "a4")
	tally := tallyOf(
		core.NewVote("a1", core.VoteFor),
		core.NewVote("a2", core.VoteFor),
		core.NewVote("a3", core.VoteAbstain),
		core.NewVote("a4", core.VoteAbstain),
	)

	result, err := q.Decide(p, tally)
	require.NoError(t, err)

	// 2/2 = 1.0 > 0.5 despite half the swarm abstaining.
	assert.Equal(t, core.DecisionApproved, result.Decision)
	assert.Equal(t, 2, result.VotesAbstain)
}

func TestQuorum_NoVotesRejects(t *testing.T) {
	q := NewQuorum(ThresholdSimple)
	p := proposalWith("a1", "a2")

	result, err := q.Decide(p, core.NewVoteTally())
	require.NoError(t, err)
	assert.Equal(t, core.DecisionRejected, result.Decision)
}

func TestQuorum_RandomDistributionsMatchRatioRule(t *testing.T) {
	// Exhaustive sweep over small vote splits and the three canonical
	// thresholds: approved iff for/(for+against) strictly exceeds.
	for _, threshold := range []float64{ThresholdSimple, ThresholdSupermajority, ThresholdUnanimous} {
		q := NewQuorum(threshold)
		for votesFor := 0; votesFor <= 5; votesFor++ {
			for votesAgainst := 0; votesAgainst <= 5; votesAgainst++ {
				tally := core.NewVoteTally()
				agents := make([]string, 0, votesFor+votesAgainst)
				for i := 0; i < votesFor; i++ {
					id := fmt.Sprintf("for-%d", i)
					agents = append(agents, id)
					tally.Add(core.NewVote(id, core.VoteFor))
				}
				for i := 0; i < votesAgainst; i++ {
					id := fmt.Sprintf("against-%d", i)
					agents = append(agents, id)
					tally.Add(core.NewVote(id, core.VoteAgainst))
				}
				if len(agents) == 0 {
					agents = []string{"solo"}
				}

				result, err := q.Decide(proposalWith(agents...), tally)
				require.NoError(t, err)

				denom := float64(votesFor + votesAgainst)
				if denom < 1 {
					denom = 1
				}
				expectApproved := float64(votesFor)/denom > threshold
				assert.Equal(t, expectApproved, result.Approved(),
					"for=%d against=%d threshold=%v", votesFor, votesAgainst, threshold)
			}
		}
	}
}

func TestQuorum_ProposeRequiresParticipants(t *testing.T) {
	q := NewQuorum(ThresholdSimple)
	err := q.Propose(core.NewProposal("x", nil))
	assert.ErrorIs(t, err, core.ErrInvalidProposal)
}
