package consensus

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/hupe1980/swarmcoord/core"
)

// GossipOptions configures the Gossip strategy.
type GossipOptions struct {
	// Rounds bounds the number of epidemic iterations. Default 10.
	Rounds int
	// Fanout is how many random peers each participant samples per round.
	// Default 3.
	Fanout int
	// ConvergenceThreshold stops iterating early once this fraction of agents
	// holds the majority value. Default 0.95.
	ConvergenceThreshold float64
	// DecisionThreshold is the minimum agreement ratio for approval. Default 0.5.
	DecisionThreshold float64
	// Rand supplies randomness for peer sampling. Seed it in tests for
	// reproducible runs; defaults to the global source.
	Rand *rand.Rand
}

// Gossip simulates epidemic opinion spreading over the collected votes:
// every round each participant samples a handful of random peers and adopts
// the majority opinion among them. Iteration stops once the swarm converges
// or the round budget is exhausted. The final decision approves when the
// terminal majority is "for" and the agreement ratio reaches the decision
// threshold.
//
// Unlike Quorum, gossip tolerates partial unavailability: participants that
// never voted start out abstaining and are pulled toward the majority.
type Gossip struct {
	rounds      int
	fanout      int
	convergence float64
	threshold   float64
	rng         *rand.Rand
}

var _ core.Algorithm = (*Gossip)(nil)

// NewGossip creates a gossip strategy.
func NewGossip(optFns ...func(o *GossipOptions)) *Gossip {
	opts := GossipOptions{
		Rounds:               10,
		Fanout:               3,
		ConvergenceThreshold: 0.95,
		DecisionThreshold:    0.5,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Gossip{
		rounds:      opts.Rounds,
		fanout:      opts.Fanout,
		convergence: opts.ConvergenceThreshold,
		threshold:   opts.DecisionThreshold,
		rng:         rng,
	}
}

// Name implements core.Algorithm.
func (g *Gossip) Name() string { return "gossip" }

// Propose validates the proposal has someone to ask.
func (g *Gossip) Propose(p *core.Proposal) error {
	if len(p.Participants) == 0 {
		return fmt.Errorf("%w: gossip requires at least one participant", core.ErrInvalidProposal)
	}
	return nil
}

// Decide implements core.Algorithm.
func (g *Gossip) Decide(p *core.Proposal, tally *core.VoteTally) (*core.ConsensusResult, error) {
	votesFor, votesAgainst, votesAbstain := tally.Counts()

	// Sorted participant order keeps runs reproducible for a seeded source.
	participants := make([]string, len(p.Participants))
	copy(participants, p.Participants)
	sort.Strings(participants)

	opinions := make(map[string]core.VoteType, len(participants))
	for _, agent := range participants {
		if v, ok := tally.Latest[agent]; ok {
			opinions[agent] = v.Type
		} else {
			opinions[agent] = core.VoteAbstain
		}
	}

	converged := false
	roundsCompleted := 0
	for round := 0; round < g.rounds; round++ {
		next := make(map[string]core.VoteType, len(opinions))
		for _, agent := range participants {
			sample := g.samplePeers(participants, agent)
			if majority, ok := sampleMajority(opinions, sample); ok {
				next[agent] = majority
			} else {
				next[agent] = opinions[agent]
			}
		}
		opinions = next
		roundsCompleted = round + 1

		if _, fraction := swarmMajority(opinions); fraction >= g.convergence {
			converged = true
			break
		}
	}

	majority, agreement := swarmMajority(opinions)
	decision := core.DecisionRejected
	if majority == core.VoteFor && agreement >= g.threshold {
		decision = core.DecisionApproved
	}

	return &core.ConsensusResult{
		ProposalID:   p.ID,
		Decision:     decision,
		VotesFor:     votesFor,
		VotesAgainst: votesAgainst,
		VotesAbstain: votesAbstain,
		Participants: p.Participants,
		Algorithm:    g.Name(),
		Metadata: map[string]any{
			"rounds_completed": roundsCompleted,
			"converged":        converged,
			"agreement":        agreement,
			"majority":         string(majority),
		},
	}, nil
}

// samplePeers picks up to fanout distinct peers other than self.
func (g *Gossip) samplePeers(participants []string, self string) []string {
	peers := make([]string, 0, len(participants)-1)
	for _, agent := range participants {
		if agent != self {
			peers = append(peers, agent)
		}
	}
	g.rng.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	if len(peers) > g.fanout {
		peers = peers[:g.fanout]
	}
	return peers
}

// sampleMajority returns the strict majority opinion among the sampled peers,
// or false when the sample is empty or tied.
func sampleMajority(opinions map[string]core.VoteType, sample []string) (core.VoteType, bool) {
	counts := map[core.VoteType]int{}
	for _, agent := range sample {
		counts[opinions[agent]]++
	}
	best, bestCount, tied := core.VoteAbstain, 0, false
	for _, t := range []core.VoteType{core.VoteFor, core.VoteAgainst, core.VoteAbstain} {
		switch {
		case counts[t] > bestCount:
			best, bestCount, tied = t, counts[t], false
		case counts[t] == bestCount && counts[t] > 0:
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return core.VoteAbstain, false
	}
	return best, true
}

// swarmMajority returns the most widely held opinion and the fraction of
// agents holding it. Ties break in the fixed order for > against > abstain
// so the outcome is deterministic.
func swarmMajority(opinions map[string]core.VoteType) (core.VoteType, float64) {
	if len(opinions) == 0 {
		return core.VoteAbstain, 0
	}
	counts := map[core.VoteType]int{}
	for _, t := range opinions {
		counts[t]++
	}
	best, bestCount := core.VoteAbstain, -1
	for _, t := range []core.VoteType{core.VoteFor, core.VoteAgainst, core.VoteAbstain} {
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	return best, float64(bestCount) / float64(len(opinions))
}
