package consensus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/swarmcoord/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBroadcaster captures broadcast envelopes for assertions.
type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []core.Message
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, _ string, msg core.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	return nil
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

func newTestManager(optFns ...func(o *Options)) *Manager {
	fns := append([]func(o *Options){func(o *Options) {
		o.DefaultTimeout = 100 * time.Millisecond
	}}, optFns...)
	return NewManager(fns...)
}

func TestManager_EarlyFinalizeWhenAllVote(t *testing.T) {
	m := newTestManager()
	p := core.NewProposal("deploy", []string{"a1", "a2", "a3"})
	p.Timeout = 5 * time.Second // early completion must beat this comfortably

	resultCh := make(chan *core.ConsensusResult, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := m.RequestConsensus(context.Background(), p)
		resultCh <- result
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return m.RecordVote(p.ID, "a1", core.NewVote("a1", core.VoteFor)) == nil
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, m.RecordVote(p.ID, "a2", core.NewVote("a2", core.VoteFor)))
	require.NoError(t, m.RecordVote(p.ID, "a3", core.NewVote("a3", core.VoteAgainst)))

	select {
	case result := <-resultCh:
		require.NoError(t, <-errCh)
		assert.Equal(t, core.DecisionApproved, result.Decision)
		assert.Less(t, result.Duration, time.Second)
		_, hasShortfall := result.Metadata["missing_votes"]
		assert.False(t, hasShortfall)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for consensus result")
	}
}

func TestManager_TimeoutProducesPartialResult(t *testing.T) {
	m := newTestManager()
	p := core.NewProposal("deploy", []string{"a1", "a2", "a3"})
	p.Timeout = 50 * time.Millisecond

	resultCh := make(chan *core.ConsensusResult, 1)
	go func() {
		result, err := m.RequestConsensus(context.Background(), p)
		require.NoError(t, err)
		resultCh <- result
	}()

	require.Eventually(t, func() bool {
		return m.RecordVote(p.ID, "a1", core.NewVote("a1", core.VoteFor)) == nil
	}, time.Second, 5*time.Millisecond)

	select {
	case result := <-resultCh:
		// Timeout is not an error: the decision is computed from one vote.
		assert.Equal(t, core.DecisionApproved, result.Decision)
		assert.Equal(t, 2, result.Metadata["missing_votes"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for consensus result")
	}
}

func TestManager_DuplicatePendingProposalRejected(t *testing.T) {
	m := newTestManager()
	p := core.NewProposal("deploy", []string{"a1", "a2"})
	p.Timeout = 300 * time.Millisecond

	go func() { _, _ = m.RequestConsensus(context.Background(), p) }()

	require.Eventually(t, func() bool {
		return m.RecordVote(p.ID, "a1", core.NewVote("a1", core.VoteFor)) == nil
	}, time.Second, 5*time.Millisecond)

	dup := core.NewProposal("deploy-again", []string{"a1", "a2"})
	dup.ID = p.ID
	_, err := m.RequestConsensus(context.Background(), dup)
	assert.ErrorIs(t, err, core.ErrInvalidProposal)
}

func TestManager_LateVoteRejected(t *testing.T) {
	m := newTestManager()
	p := core.NewProposal("deploy", []string{"a1"})
	p.Timeout = 30 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := m.RequestConsensus(context.Background(), p)
		require.NoError(t, err)
	}()
	<-done

	err := m.RecordVote(p.ID, "a1", core.NewVote("a1", core.VoteFor))
	assert.ErrorIs(t, err, core.ErrInvalidProposal)
}

func TestManager_VoteForUnknownProposalRejected(t *testing.T) {
	m := newTestManager()
	err := m.RecordVote("nope", "a1", core.NewVote("a1", core.VoteFor))
	assert.ErrorIs(t, err, core.ErrInvalidProposal)
}

func TestManager_LastVoteWinsPerAgent(t *testing.T) {
	m := newTestManager()
	p := core.NewProposal("deploy", []string{"a1", "a2"})
	p.Timeout = 150 * time.Millisecond

	resultCh := make(chan *core.ConsensusResult, 1)
	go func() {
		result, err := m.RequestConsensus(context.Background(), p)
		require.NoError(t, err)
		resultCh <- result
	}()

	require.Eventually(t, func() bool {
		return m.RecordVote(p.ID, "a1", core.NewVote("a1", core.VoteAgainst)) == nil
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, m.RecordVote(p.ID, "a1", core.NewVote("a1", core.VoteFor)))

	result := <-resultCh
	assert.Equal(t, 1, result.VotesFor)
	assert.Equal(t, 0, result.VotesAgainst)
}

func TestManager_NonParticipantVoteDropped(t *testing.T) {
	m := newTestManager()
	p := core.NewProposal("deploy", []string{"a1"})
	p.Timeout = 100 * time.Millisecond

	resultCh := make(chan *core.ConsensusResult, 1)
	go func() {
		result, err := m.RequestConsensus(context.Background(), p)
		require.NoError(t, err)
		resultCh <- result
	}()

	require.Eventually(t, func() bool {
		// Dropped, not an error: single-contribution failures never abort.
		return m.RecordVote(p.ID, "outsider", core.NewVote("outsider", core.VoteFor)) == nil
	}, time.Second, 5*time.Millisecond)

	result := <-resultCh
	assert.Equal(t, 0, result.VotesFor)
	assert.LessOrEqual(t, result.VotesFor+result.VotesAgainst+result.VotesAbstain, len(p.Participants))
}

func TestManager_ByzantineParticipantCheck(t *testing.T) {
	m := newTestManager()
	p := core.NewProposal("deploy", []string{"a1", "a2", "a3"})
	p.Algorithm = "byzantine"

	_, err := m.RequestConsensus(context.Background(), p)
	assert.ErrorIs(t, err, core.ErrInvalidProposal)
}

func TestManager_UnknownAlgorithm(t *testing.T) {
	m := newTestManager()
	p := core.NewProposal("deploy", []string{"a1"})
	p.Algorithm = "paxos"

	_, err := m.RequestConsensus(context.Background(), p)
	assert.ErrorIs(t, err, core.ErrUnknownAlgorithm)
}

func TestManager_BroadcastsProposal(t *testing.T) {
	bus := &recordingBroadcaster{}
	m := newTestManager(func(o *Options) { o.Broadcaster = bus })
	p := core.NewProposal("deploy", []string{"a1"})
	p.Timeout = 30 * time.Millisecond

	_, err := m.RequestConsensus(context.Background(), p)
	require.NoError(t, err)

	require.Equal(t, 1, bus.count())
	assert.Equal(t, core.MessageProposal, bus.messages[0].Type)
	assert.Equal(t, p.ID, bus.messages[0].ProposalID)
}

func TestManager_StatsAggregation(t *testing.T) {
	m := newTestManager()

	for i := 0; i < 2; i++ {
		p := core.NewProposal("x", []string{"a1"})
		p.Timeout = 20 * time.Millisecond

		resultCh := make(chan struct{})
		go func() {
			_, err := m.RequestConsensus(context.Background(), p)
			require.NoError(t, err)
			close(resultCh)
		}()
		if i == 0 {
			require.Eventually(t, func() bool {
				return m.RecordVote(p.ID, "a1", core.NewVote("a1", core.VoteFor)) == nil
			}, time.Second, 2*time.Millisecond)
		}
		<-resultCh
	}

	stats := m.AlgorithmStats()["quorum"]
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 0.5, stats.ApprovalRate)
	assert.Greater(t, stats.AvgDuration, time.Duration(0))
}

func TestManager_RegisterAlgorithmReplaces(t *testing.T) {
	m := newTestManager()
	m.RegisterAlgorithm("quorum", NewQuorum(ThresholdSupermajority))

	p := core.NewProposal("x", []string{"a1", "a2", "a3"})
	p.Algorithm = "quorum"
	p.Timeout = 100 * time.Millisecond

	resultCh := make(chan *core.ConsensusResult, 1)
	go func() {
		result, err := m.RequestConsensus(context.Background(), p)
		require.NoError(t, err)
		resultCh <- result
	}()

	require.Eventually(t, func() bool {
		return m.RecordVote(p.ID, "a1", core.NewVote("a1", core.VoteFor)) == nil
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, m.RecordVote(p.ID, "a2", core.NewVote("a2", core.VoteFor)))
	require.NoError(t, m.RecordVote(p.ID, "a3", core.NewVote("a3", core.VoteAgainst)))

	// 2/3 = 0.667 does not strictly exceed 0.67 under the replaced strategy.
	result := <-resultCh
	assert.Equal(t, core.DecisionRejected, result.Decision)
}

func TestManager_ConcurrentVotesAreRaceFree(t *testing.T) {
	m := newTestManager()
	agents := make([]string, 20)
	for i := range agents {
		agents[i] = string(rune('a'+i/10)) + string(rune('0'+i%10))
	}
	p := core.NewProposal("x", agents)
	p.Timeout = time.Second

	resultCh := make(chan *core.ConsensusResult, 1)
	go func() {
		result, err := m.RequestConsensus(context.Background(), p)
		require.NoError(t, err)
		resultCh <- result
	}()

	require.Eventually(t, func() bool {
		return m.RecordVote(p.ID, agents[0], core.NewVote(agents[0], core.VoteFor)) == nil
	}, time.Second, 2*time.Millisecond)

	var wg sync.WaitGroup
	for _, agent := range agents[1:] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = m.RecordVote(p.ID, id, core.NewVote(id, core.VoteFor))
		}(agent)
	}
	wg.Wait()

	result := <-resultCh
	assert.Equal(t, len(agents), result.VotesFor)
	assert.Equal(t, core.DecisionApproved, result.Decision)
}
