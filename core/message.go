package core

import (
	"context"
	"time"
)

// MessageType discriminates coordination envelopes on the wire.
type MessageType string

const (
	// MessageProposal asks participants to vote on a proposal.
	MessageProposal MessageType = "proposal"
	// MessageVote carries one agent's vote back to the manager.
	MessageVote MessageType = "vote"
	// MessageStateRequest asks every swarm member for its copy of a state key.
	MessageStateRequest MessageType = "state_request"
	// MessageStateVersion carries one agent's state copy back to the syncer.
	MessageStateVersion MessageType = "state_version"
	// MessageStateResolved announces the agreed version to the swarm.
	MessageStateResolved MessageType = "state_resolved"
)

// Message is the envelope fanned out through the Broadcaster. Payload is a
// domain value (*Proposal, Vote, StateVersion); the transport implementation
// owns its encoding.
type Message struct {
	ID         string      `json:"id"`
	Type       MessageType `json:"type"`
	SenderID   string      `json:"sender_id"`
	SwarmID    string      `json:"swarm_id,omitempty"`
	ProposalID string      `json:"proposal_id,omitempty"`
	StateKey   string      `json:"state_key,omitempty"`
	Payload    any         `json:"payload,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewMessage builds an envelope with a generated id and UTC timestamp.
func NewMessage(t MessageType, senderID string) Message {
	return Message{ID: NewID(), Type: t, SenderID: senderID, Timestamp: time.Now().UTC()}
}

// NewProposalMessage wraps a proposal for broadcast to its participants.
func NewProposalMessage(senderID string, p *Proposal) Message {
	m := NewMessage(MessageProposal, senderID)
	m.ProposalID = p.ID
	m.Payload = p
	return m
}

// NewVoteMessage wraps a vote on the given proposal.
func NewVoteMessage(senderID, proposalID string, v Vote) Message {
	m := NewMessage(MessageVote, senderID)
	m.ProposalID = proposalID
	m.Payload = v
	return m
}

// NewStateRequestMessage asks the swarm for its copies of a state key.
func NewStateRequestMessage(senderID, swarmID, stateKey string) Message {
	m := NewMessage(MessageStateRequest, senderID)
	m.SwarmID = swarmID
	m.StateKey = stateKey
	return m
}

// NewStateVersionMessage carries one agent's copy of a state key.
func NewStateVersionMessage(senderID, swarmID string, v StateVersion) Message {
	m := NewMessage(MessageStateVersion, senderID)
	m.SwarmID = swarmID
	m.StateKey = v.StateKey
	m.Payload = v
	return m
}

// NewStateResolvedMessage announces the resolved version to the swarm.
func NewStateResolvedMessage(senderID, swarmID string, v StateVersion) Message {
	m := NewMessage(MessageStateResolved, senderID)
	m.SwarmID = swarmID
	m.StateKey = v.StateKey
	m.Payload = v
	return m
}

// Broadcaster fans a message out to every member of a swarm (or every
// participant of a proposal). Delivery of inbound messages back into the
// coordination core is the orchestration layer's responsibility: it calls
// Manager.RecordVote and Synchronizer.OnStateVersion as messages arrive.
type Broadcaster interface {
	Broadcast(ctx context.Context, swarmID string, msg Message) error
}

// KVStore is the persistence collaborator used by the State Synchronizer to
// durably store the last resolved version per (swarm, state key).
// Implementations must be safe for concurrent use.
type KVStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}
