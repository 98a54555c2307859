package swarmcoord

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmcoord/config"
	"github.com/hupe1980/swarmcoord/core"
)

func TestSwarm_ConsensusRoundTrip(t *testing.T) {
	swarm := New()

	p := core.NewProposal("migrate index", []string{"a1", "a2", "a3"})
	p.Timeout = time.Second

	done := make(chan *core.ConsensusResult, 1)
	go func() {
		r, err := swarm.RequestConsensus(context.Background(), p)
		require.NoError(t, err)
		done <- r
	}()

	require.Eventually(t, func() bool {
		return swarm.RecordVote(p.ID, "a1", core.NewVote("a1", core.VoteFor)) == nil
	}, time.Second, time.Millisecond)
	require.NoError(t, swarm.RecordVote(p.ID, "a2", core.NewVote("a2", core.VoteFor)))
	require.NoError(t, swarm.RecordVote(p.ID, "a3", core.NewVote("a3", core.VoteAgainst)))

	var result *core.ConsensusResult
	select {
	case result = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consensus did not finish")
	}

	assert.Equal(t, core.DecisionApproved, result.Decision)
	assert.Equal(t, 2, result.VotesFor)

	archived, ok := swarm.ConsensusResult(p.ID)
	require.True(t, ok)
	assert.Equal(t, result.Decision, archived.Decision)
}

func TestSwarm_SyncRoundTrip(t *testing.T) {
	swarm := New(func(o *Options) {
		o.ExpectedResponses = 2
	})

	done := make(chan *core.StateVersion, 1)
	go func() {
		v, err := swarm.Synchronize(context.Background(), "swarm-1", "plan", 2*time.Second)
		require.NoError(t, err)
		done <- v
	}()

	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	require.Eventually(t, func() bool {
		return swarm.Synchronizing("swarm-1", "plan")
	}, time.Second, time.Millisecond)

	require.NoError(t, swarm.OnStateVersion("swarm-1", core.StateVersion{
		StateKey: "plan", Value: "old", Version: 1, Timestamp: base, AgentID: "a1",
	}))
	require.NoError(t, swarm.OnStateVersion("swarm-1", core.StateVersion{
		StateKey: "plan", Value: "new", Version: 2, Timestamp: base.Add(time.Minute), AgentID: "a2",
	}))

	select {
	case v := <-done:
		assert.Equal(t, "new", v.Value)
	case <-time.After(3 * time.Second):
		t.Fatal("sync did not finish")
	}

	got, ok := swarm.GetState("swarm-1", "plan")
	require.True(t, ok)
	assert.Equal(t, "new", got)
}

func TestSwarm_ResolveConflictDirect(t *testing.T) {
	swarm := New()

	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	winner, err := swarm.ResolveConflict("plan", []core.StateVersion{
		{StateKey: "plan", Value: "a", Version: 1, Timestamp: base, AgentID: "a1"},
		{StateKey: "plan", Value: "b", Version: 1, Timestamp: base.Add(time.Second), AgentID: "a2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "b", winner.Value)

	keys := swarm.DetectConflicts(map[string]core.StateVersion{
		"a1": {StateKey: "plan", Value: "a", Version: 1, AgentID: "a1"},
		"a2": {StateKey: "plan", Value: "b", Version: 1, AgentID: "a2"},
	})
	assert.Equal(t, []string{"plan"}, keys)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Algorithm = "byzantine"
	swarm, err := NewFromConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, swarm)

	cfg.QuorumThreshold = 7
	_, err = NewFromConfig(cfg)
	require.Error(t, err)
}
