package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/swarmcoord/core"
	"github.com/hupe1980/swarmcoord/logging"
)

// Options configures a Manager using the functional options pattern.
type Options struct {
	// Fallback is the algorithm used when a proposal names none. Defaults to
	// a simple-majority Quorum.
	Fallback core.Algorithm

	// DefaultTimeout bounds vote collection for proposals that carry no
	// timeout of their own. Default 30s.
	DefaultTimeout time.Duration

	// Broadcaster fans proposals out to participants. Nil skips the
	// broadcast, which is useful in tests that drive RecordVote directly.
	Broadcaster core.Broadcaster

	// SenderID identifies the manager in broadcast envelopes.
	SenderID string

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// proposalState tracks one in-flight proposal. The tally and completion flag
// are guarded by the manager's mutex; done is closed exactly once when every
// participant has voted.
type proposalState struct {
	proposal  *core.Proposal
	algorithm core.Algorithm
	tally     *core.VoteTally
	done      chan struct{}
	complete  bool
	started   time.Time
}

// Manager orchestrates proposal broadcast, vote collection, algorithm
// selection, timeout handling and statistics.
//
// Concurrency model: RequestConsensus is the only blocking call, bounded by
// an explicit timeout; RecordVote and the read accessors are non-blocking.
// The per-proposal vote map is guarded by a single RWMutex so last-vote-wins
// is race free. Once a result is finalized, later votes for that proposal id
// are rejected, not queued.
type Manager struct {
	mu         sync.RWMutex
	algorithms map[string]core.Algorithm
	fallback   core.Algorithm
	proposals  map[string]*proposalState
	results    map[string]*core.ConsensusResult

	stats          *statsTracker
	broadcaster    core.Broadcaster
	senderID       string
	defaultTimeout time.Duration
	logger         logging.Logger
}

// NewManager creates a manager with the four built-in algorithms registered
// under their names. Additional or replacement strategies can be registered
// at any time.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{
		DefaultTimeout: 30 * time.Second,
		SenderID:       core.CoordinatorAgentID,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Fallback == nil {
		opts.Fallback = NewQuorum(ThresholdSimple)
	}

	m := &Manager{
		algorithms:     map[string]core.Algorithm{},
		fallback:       opts.Fallback,
		proposals:      map[string]*proposalState{},
		results:        map[string]*core.ConsensusResult{},
		stats:          newStatsTracker(),
		broadcaster:    opts.Broadcaster,
		senderID:       opts.SenderID,
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
	}

	for _, algo := range []core.Algorithm{
		NewQuorum(ThresholdSimple),
		NewWeighted(ThresholdSimple),
		NewByzantine(1),
		NewGossip(),
	} {
		m.RegisterAlgorithm(algo.Name(), algo)
	}
	m.RegisterAlgorithm(opts.Fallback.Name(), opts.Fallback)

	return m
}

// RegisterAlgorithm adds or replaces a named strategy.
func (m *Manager) RegisterAlgorithm(name string, algo core.Algorithm) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.algorithms[name] = algo
}

// RequestConsensus broadcasts the proposal to its participants and blocks
// collecting votes until every participant has voted, the proposal timeout
// expires, or ctx is cancelled. Timeout is not an error: the decision is
// computed from whatever votes arrived and the result metadata records the
// shortfall under "missing_votes".
func (m *Manager) RequestConsensus(ctx context.Context, p *core.Proposal) (*core.ConsensusResult, error) {
	if p == nil || len(p.Participants) == 0 {
		return nil, fmt.Errorf("%w: missing participants", core.ErrInvalidProposal)
	}
	if p.ID == "" {
		p.ID = core.NewID()
	}
	if p.Created.IsZero() {
		p.Created = time.Now().UTC()
	}

	algo, err := m.selectAlgorithm(p.Algorithm)
	if err != nil {
		return nil, err
	}
	if err := algo.Propose(p); err != nil {
		return nil, err
	}

	state := &proposalState{
		proposal:  p,
		algorithm: algo,
		tally:     core.NewVoteTally(),
		done:      make(chan struct{}),
		started:   time.Now(),
	}

	m.mu.Lock()
	if _, inFlight := m.proposals[p.ID]; inFlight {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: proposal %q already pending", core.ErrInvalidProposal, p.ID)
	}
	m.proposals[p.ID] = state
	m.mu.Unlock()

	if m.broadcaster != nil {
		// Broadcast failure is not fatal: the deadline still produces a
		// decision from whatever votes arrive through other paths.
		if err := m.broadcaster.Broadcast(ctx, p.ID, core.NewProposalMessage(m.senderID, p)); err != nil {
			m.logger.Warn("proposal broadcast failed", "proposal_id", p.ID, "error", err)
		}
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	timedOut := false
	select {
	case <-state.done:
	case <-timer.C:
		timedOut = true
	case <-ctx.Done():
		timedOut = true
	}

	return m.finalize(state, timedOut)
}

// RecordVote records one agent's vote on a pending proposal. A later vote
// from the same agent overwrites its earlier one. Votes for finalized or
// unknown proposals are rejected with ErrInvalidProposal; malformed votes and
// votes from non-participants are logged and dropped without failing the
// operation.
func (m *Manager) RecordVote(proposalID, agentID string, v core.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.proposals[proposalID]
	if !ok {
		if _, resolved := m.results[proposalID]; resolved {
			return fmt.Errorf("%w: proposal %q already resolved", core.ErrInvalidProposal, proposalID)
		}
		return fmt.Errorf("%w: unknown proposal %q", core.ErrInvalidProposal, proposalID)
	}

	if !v.Type.Valid() {
		m.logger.Warn("dropping malformed vote", "proposal_id", proposalID, "agent_id", agentID, "vote_type", string(v.Type))
		return nil
	}
	if !state.proposal.HasParticipant(agentID) {
		m.logger.Warn("dropping vote from non-participant", "proposal_id", proposalID, "agent_id", agentID)
		return nil
	}

	v.AgentID = agentID
	if v.Weight == 0 {
		v.Weight = 1.0
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}
	state.tally.Add(v)

	if !state.complete && len(state.tally.Latest) == len(state.proposal.Participants) {
		state.complete = true
		close(state.done)
	}
	return nil
}

// Result returns the archived result for a finalized proposal.
func (m *Manager) Result(proposalID string) (*core.ConsensusResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[proposalID]
	return r, ok
}

// AlgorithmStats returns aggregate counts, approval rate and average duration
// keyed by algorithm name.
func (m *Manager) AlgorithmStats() map[string]Stats {
	return m.stats.Snapshot()
}

// finalize removes the proposal from the pending set, computes the decision
// from the collected votes and archives the result. Votes arriving after the
// pending entry is removed are rejected by RecordVote.
func (m *Manager) finalize(state *proposalState, timedOut bool) (*core.ConsensusResult, error) {
	m.mu.Lock()
	delete(m.proposals, state.proposal.ID)
	tally := state.tally.Clone()
	m.mu.Unlock()

	result, err := state.algorithm.Decide(state.proposal, tally)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(state.started)

	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	if missing := len(state.proposal.Participants) - len(tally.Latest); timedOut && missing > 0 {
		result.Metadata["missing_votes"] = missing
	}

	m.mu.Lock()
	m.results[state.proposal.ID] = result
	m.mu.Unlock()
	m.stats.Record(result)

	m.logger.Info("consensus finalized",
		"proposal_id", result.ProposalID,
		"algorithm", result.Algorithm,
		"decision", string(result.Decision),
		"votes_for", result.VotesFor,
		"votes_against", result.VotesAgainst,
		"duration", result.Duration,
	)
	return result, nil
}

func (m *Manager) selectAlgorithm(name string) (core.Algorithm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name == "" {
		return m.fallback, nil
	}
	algo, ok := m.algorithms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownAlgorithm, name)
	}
	return algo, nil
}
