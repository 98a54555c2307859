package consensus

import (
	"fmt"

	"github.com/hupe1980/swarmcoord/core"
)

// WeightedOptions configures the Weighted strategy.
type WeightedOptions struct {
	// Weights maps agent ids to voting weight. Agents without an entry weigh
	// whatever their vote carries (default 1.0).
	Weights map[string]float64
}

// Weighted applies the quorum ratio test over weight sums instead of counts.
// Per-agent weights come from configuration; a configured weight overrides
// the weight carried on the vote itself.
type Weighted struct {
	threshold float64
	weights   map[string]float64
}

var _ core.Algorithm = (*Weighted)(nil)

// NewWeighted creates a weighted strategy with the given threshold.
func NewWeighted(threshold float64, optFns ...func(o *WeightedOptions)) *Weighted {
	opts := WeightedOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	weights := make(map[string]float64, len(opts.Weights))
	for agent, w := range opts.Weights {
		weights[agent] = w
	}
	return &Weighted{threshold: threshold, weights: weights}
}

// Name implements core.Algorithm.
func (w *Weighted) Name() string { return "weighted" }

// Propose validates the proposal has someone to ask.
func (w *Weighted) Propose(p *core.Proposal) error {
	if len(p.Participants) == 0 {
		return fmt.Errorf("%w: weighted consensus requires at least one participant", core.ErrInvalidProposal)
	}
	return nil
}

// Decide implements core.Algorithm.
func (w *Weighted) Decide(p *core.Proposal, tally *core.VoteTally) (*core.ConsensusResult, error) {
	votesFor, votesAgainst, votesAbstain := tally.Counts()

	var weightFor, weightAgainst float64
	for _, v := range tally.Latest {
		switch v.Type {
		case core.VoteFor:
			weightFor += w.weightOf(v)
		case core.VoteAgainst:
			weightAgainst += w.weightOf(v)
		}
	}
	ratio := quorumRatio(weightFor, weightAgainst)

	decision := core.DecisionRejected
	if ratio > w.threshold {
		decision = core.DecisionApproved
	}

	return &core.ConsensusResult{
		ProposalID:   p.ID,
		Decision:     decision,
		VotesFor:     votesFor,
		VotesAgainst: votesAgainst,
		VotesAbstain: votesAbstain,
		Participants: p.Participants,
		Algorithm:    w.Name(),
		Metadata: map[string]any{
			"threshold":      w.threshold,
			"ratio":          ratio,
			"weight_for":     weightFor,
			"weight_against": weightAgainst,
		},
	}, nil
}

func (w *Weighted) weightOf(v core.Vote) float64 {
	if configured, ok := w.weights[v.AgentID]; ok {
		return configured
	}
	if v.Weight > 0 {
		return v.Weight
	}
	return 1.0
}
