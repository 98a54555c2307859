package core

import (
	"time"
)

// Proposal is a request for the swarm to agree on an opaque payload. It is
// created by RequestConsensus and archived into statistics once a
// ConsensusResult is finalized or the timeout elapses.
type Proposal struct {
	// ID uniquely identifies the proposal. Caller-supplied; assign NewID()
	// when no natural identifier exists.
	ID string `json:"proposal_id"`

	// Payload is the value being decided on. Opaque to the coordination core.
	Payload any `json:"payload"`

	// Participants are the agent ids expected to vote.
	Participants []string `json:"participants"`

	// Algorithm names the consensus strategy. Empty selects the manager's
	// fallback algorithm.
	Algorithm string `json:"algorithm,omitempty"`

	// Timeout bounds the vote collection phase. Zero selects the manager's
	// configured default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Created is set when the manager accepts the proposal.
	Created time.Time `json:"created"`
}

// NewProposal builds a proposal with a generated id.
func NewProposal(payload any, participants []string) *Proposal {
	return &Proposal{
		ID:           NewID(),
		Payload:      payload,
		Participants: participants,
		Created:      time.Now().UTC(),
	}
}

// HasParticipant reports whether the given agent is expected to vote.
func (p *Proposal) HasParticipant(agentID string) bool {
	for _, id := range p.Participants {
		if id == agentID {
			return true
		}
	}
	return false
}
