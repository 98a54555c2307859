package core

import (
	"time"

	"github.com/google/uuid"
)

// VoteType enumerates the three positions an agent can take on a proposal.
type VoteType string

const (
	// VoteFor approves the proposal.
	VoteFor VoteType = "for"
	// VoteAgainst rejects the proposal.
	VoteAgainst VoteType = "against"
	// VoteAbstain records participation without taking a position. Abstentions
	// are excluded from ratio denominators in every algorithm.
	VoteAbstain VoteType = "abstain"
)

// Valid reports whether the vote type is one of the three known positions.
func (v VoteType) Valid() bool {
	switch v {
	case VoteFor, VoteAgainst, VoteAbstain:
		return true
	default:
		return false
	}
}

// Vote is a single agent's position on a proposal. Votes are immutable once
// cast; the Manager keeps at most one live vote per (proposal, agent) and a
// later vote from the same agent overwrites the earlier one.
type Vote struct {
	AgentID   string    `json:"agent_id"`
	Type      VoteType  `json:"vote_type"`
	Weight    float64   `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

// NewVote builds a vote with the default weight of 1.0 and a UTC timestamp.
func NewVote(agentID string, t VoteType) Vote {
	return Vote{AgentID: agentID, Type: t, Weight: 1.0, Timestamp: time.Now().UTC()}
}

// NewWeightedVote builds a vote carrying an explicit weight.
func NewWeightedVote(agentID string, t VoteType, weight float64) Vote {
	v := NewVote(agentID, t)
	v.Weight = weight
	return v
}

// NewID generates a unique identifier for proposals and sync sessions.
func NewID() string { return uuid.NewString() }
