// Package swarmcoord provides a high-level façade over the coordination
// services (consensus, conflict resolution, state synchronization) enabling
// rapid construction of coordinated multi-agent swarms. Most applications
// interact with this package by:
//  1. Creating a Swarm via New() (optionally overriding the in-memory bus,
//     store and resolver defaults)
//  2. Proposing decisions (RequestConsensus) and recording the votes the
//     swarm members send back (RecordVote)
//  3. Synchronizing shared state keys (Synchronize, DeltaSync) as agents
//     report their local copies (OnStateVersion)
//
// The façade delegates to consensus.Manager, conflict.Resolver and
// syncer.Synchronizer while keeping setup and usage ergonomics concise. All
// defaults are safe for local development and testing; production
// deployments typically supply a real transport, a durable store and a
// structured logger.
package swarmcoord

import (
	"context"
	"time"

	"github.com/hupe1980/swarmcoord/config"
	"github.com/hupe1980/swarmcoord/conflict"
	"github.com/hupe1980/swarmcoord/consensus"
	"github.com/hupe1980/swarmcoord/core"
	"github.com/hupe1980/swarmcoord/logging"
	"github.com/hupe1980/swarmcoord/store"
	"github.com/hupe1980/swarmcoord/syncer"
	"github.com/hupe1980/swarmcoord/transport"
)

// Options configures the Swarm instance.
type Options struct {
	// AgentID identifies this node in broadcast envelopes. Defaults to the
	// coordinator id.
	AgentID string

	// Fallback is the consensus algorithm applied when a proposal names
	// none. Defaults to a simple-majority Quorum.
	Fallback core.Algorithm

	// Strategy selects the conflict resolution strategy. Defaults to last
	// write wins.
	Strategy core.ResolutionStrategy

	// VoteTimeout bounds vote collection for proposals without their own
	// timeout. Default 30s.
	VoteTimeout time.Duration

	// SyncTimeout bounds response collection per sync session. Default 10s.
	SyncTimeout time.Duration

	// ExpectedResponses completes a sync session early once that many
	// agents have responded. Zero waits out the timeout.
	ExpectedResponses int

	// Broadcaster defaults to an in-process bus.
	Broadcaster core.Broadcaster

	// Store defaults to an in-memory key/value store.
	Store core.KVStore

	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// Swarm is the high-level façade aggregating the coordination services.
type Swarm struct {
	opts     Options
	manager  *consensus.Manager
	resolver *conflict.Resolver
	syncer   *syncer.Synchronizer
}

// New creates a Swarm with optional overrides. Any unset collaborator is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Swarm {
	opts := Options{
		AgentID:     core.CoordinatorAgentID,
		Strategy:    core.StrategyLWW,
		VoteTimeout: 30 * time.Second,
		SyncTimeout: 10 * time.Second,
		Broadcaster: transport.NewInMemoryBus(),
		Store:       store.NewInMemoryStore(),
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	resolver := conflict.New(opts.Strategy, func(o *conflict.Options) {
		o.Logger = opts.Logger
	})

	manager := consensus.NewManager(func(o *consensus.Options) {
		o.Fallback = opts.Fallback
		o.DefaultTimeout = opts.VoteTimeout
		o.Broadcaster = opts.Broadcaster
		o.SenderID = opts.AgentID
		o.Logger = opts.Logger
	})

	sync := syncer.NewSynchronizer(func(o *syncer.Options) {
		o.Resolver = resolver
		o.Broadcaster = opts.Broadcaster
		o.Store = opts.Store
		o.SenderID = opts.AgentID
		o.DefaultTimeout = opts.SyncTimeout
		o.ExpectedResponses = opts.ExpectedResponses
		o.Logger = opts.Logger
	})

	return &Swarm{opts: opts, manager: manager, resolver: resolver, syncer: sync}
}

// NewFromConfig builds a Swarm from an environment-derived configuration.
func NewFromConfig(cfg config.Config, optFns ...func(o *Options)) (*Swarm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var fallback core.Algorithm
	switch cfg.Algorithm {
	case "weighted":
		fallback = consensus.NewWeighted(cfg.QuorumThreshold)
	case "byzantine":
		fallback = consensus.NewByzantine(cfg.FaultTolerance)
	case "gossip":
		fallback = consensus.NewGossip(func(o *consensus.GossipOptions) {
			o.Rounds = cfg.GossipRounds
			o.Fanout = cfg.GossipFanout
			o.ConvergenceThreshold = cfg.GossipConvergence
		})
	default:
		fallback = consensus.NewQuorum(cfg.QuorumThreshold)
	}

	base := []func(o *Options){func(o *Options) {
		o.AgentID = cfg.AgentID
		o.Fallback = fallback
		o.Strategy = cfg.Strategy
		o.VoteTimeout = cfg.VoteTimeout
		o.SyncTimeout = cfg.SyncTimeout
	}}
	return New(append(base, optFns...)...), nil
}

// RegisterAlgorithm adds or replaces a named consensus strategy.
func (s *Swarm) RegisterAlgorithm(name string, algo core.Algorithm) {
	s.manager.RegisterAlgorithm(name, algo)
}

// RequestConsensus broadcasts the proposal and blocks collecting votes until
// every participant voted or the timeout expired.
func (s *Swarm) RequestConsensus(ctx context.Context, p *core.Proposal) (*core.ConsensusResult, error) {
	return s.manager.RequestConsensus(ctx, p)
}

// RecordVote records one agent's vote on a pending proposal.
func (s *Swarm) RecordVote(proposalID, agentID string, v core.Vote) error {
	return s.manager.RecordVote(proposalID, agentID, v)
}

// ConsensusResult returns the archived result for a finalized proposal.
func (s *Swarm) ConsensusResult(proposalID string) (*core.ConsensusResult, bool) {
	return s.manager.Result(proposalID)
}

// AlgorithmStats returns aggregate consensus statistics per algorithm.
func (s *Swarm) AlgorithmStats() map[string]consensus.Stats {
	return s.manager.AlgorithmStats()
}

// Synchronize runs a full sync for one state key across the swarm.
func (s *Swarm) Synchronize(ctx context.Context, swarmID, stateKey string, timeout time.Duration) (*core.StateVersion, error) {
	return s.syncer.Synchronize(ctx, swarmID, stateKey, timeout)
}

// OnStateVersion feeds one agent's state copy into the in-flight sync.
func (s *Swarm) OnStateVersion(swarmID string, v core.StateVersion) error {
	return s.syncer.OnStateVersion(swarmID, v)
}

// Synchronizing reports whether a sync session for the state key is in flight.
func (s *Swarm) Synchronizing(swarmID, stateKey string) bool {
	return s.syncer.Synchronizing(swarmID, stateKey)
}

// SetLocalState records a local write, deferred while a sync is in flight.
func (s *Swarm) SetLocalState(swarmID string, v core.StateVersion) error {
	return s.syncer.SetLocalState(swarmID, v)
}

// GetState returns the current local value for a state key.
func (s *Swarm) GetState(swarmID, stateKey string) (any, bool) {
	return s.syncer.GetState(swarmID, stateKey)
}

// GetStateVersion returns the current local version for a state key.
func (s *Swarm) GetStateVersion(swarmID, stateKey string) (core.StateVersion, bool) {
	return s.syncer.GetStateVersion(swarmID, stateKey)
}

// ClearState forgets the local and persisted copy of a state key.
func (s *Swarm) ClearState(swarmID, stateKey string) error {
	return s.syncer.ClearState(swarmID, stateKey)
}

// DeltaSync returns the swarm's resolved versions newer than since.
func (s *Swarm) DeltaSync(swarmID string, since int64) []core.StateVersion {
	return s.syncer.DeltaSync(swarmID, since)
}

// ResolveConflict reconciles conflicting versions of one state key directly,
// without running the sync protocol.
func (s *Swarm) ResolveConflict(stateKey string, conflicts []core.StateVersion) (core.StateVersion, error) {
	return s.resolver.Resolve(stateKey, conflicts)
}

// DetectConflicts reports the state keys with more than one distinct version
// across the given per-agent states.
func (s *Swarm) DetectConflicts(states map[string]core.StateVersion) []string {
	return s.resolver.DetectConflicts(states)
}
