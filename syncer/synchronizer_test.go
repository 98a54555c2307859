package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmcoord/core"
	"github.com/hupe1980/swarmcoord/internal/testutil"
	"github.com/hupe1980/swarmcoord/store"
	"github.com/hupe1980/swarmcoord/transport"
)

// recordingBroadcaster captures every envelope passed to Broadcast.
type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []core.Message
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, swarmID string, msg core.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg.SwarmID = swarmID
	b.messages = append(b.messages, msg)
	return nil
}

func (b *recordingBroadcaster) byType(t core.MessageType) []core.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []core.Message
	for _, m := range b.messages {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func TestSynchronize_ResolvesConflictAcrossAgents(t *testing.T) {
	bus := &recordingBroadcaster{}
	kv := store.NewInMemoryStore()
	s := NewSynchronizer(func(o *Options) {
		o.Broadcaster = bus
		o.Store = kv
		o.ExpectedResponses = 2
	})

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	type outcome struct {
		version *core.StateVersion
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := s.Synchronize(context.Background(), "swarm-1", "task_status", 2*time.Second)
		done <- outcome{v, err}
	}()

	require.Eventually(t, func() bool {
		return s.Synchronizing("swarm-1", "task_status")
	}, time.Second, time.Millisecond)

	require.NoError(t, s.OnStateVersion("swarm-1", testutil.NewVersionBuilder("task_status").
		Value("running").Agent("agent-1").Version(3).At(base).Build()))
	require.NoError(t, s.OnStateVersion("swarm-1", testutil.NewVersionBuilder("task_status").
		Value("done").Agent("agent-2").Version(3).At(base.Add(time.Second)).Build()))

	var got outcome
	select {
	case got = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("synchronize did not return")
	}
	require.NoError(t, got.err)
	require.NotNil(t, got.version)

	// agent-2 wrote later, so last write wins.
	assert.Equal(t, "done", got.version.Value)
	assert.Equal(t, "agent-2", got.version.AgentID)

	cached, ok := s.GetState("swarm-1", "task_status")
	require.True(t, ok)
	assert.Equal(t, "done", cached)

	// The winner is announced and persisted.
	require.Len(t, bus.byType(core.MessageStateRequest), 1)
	resolved := bus.byType(core.MessageStateResolved)
	require.Len(t, resolved, 1)
	assert.Equal(t, "task_status", resolved[0].StateKey)

	data, err := kv.Get("swarm/swarm-1/state/task_status")
	require.NoError(t, err)
	persisted, err := transport.DecodeVersion(data)
	require.NoError(t, err)
	assert.Equal(t, "done", persisted.Value)
}

func TestSynchronize_NoResponsesFailsAndKeepsLocalState(t *testing.T) {
	s := NewSynchronizer()
	require.NoError(t, s.SetLocalState("swarm-1", testutil.NewVersionBuilder("plan").
		Value("v1").Agent("agent-1").Version(1).Build()))

	_, err := s.Synchronize(context.Background(), "swarm-1", "plan", 30*time.Millisecond)
	require.ErrorIs(t, err, core.ErrSyncTimeout)

	got, ok := s.GetState("swarm-1", "plan")
	require.True(t, ok)
	assert.Equal(t, "v1", got)
}

func TestSynchronize_SecondCallForSameKeyRejected(t *testing.T) {
	s := NewSynchronizer()

	go func() {
		_, _ = s.Synchronize(context.Background(), "swarm-1", "plan", time.Second)
	}()
	require.Eventually(t, func() bool {
		return s.Synchronizing("swarm-1", "plan")
	}, time.Second, time.Millisecond)

	_, err := s.Synchronize(context.Background(), "swarm-1", "plan", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in flight")
}

func TestSynchronize_DeferredLocalWriteAppliedAfterResolution(t *testing.T) {
	s := NewSynchronizer(func(o *Options) {
		o.ExpectedResponses = 1
	})

	done := make(chan *core.StateVersion, 1)
	go func() {
		v, err := s.Synchronize(context.Background(), "swarm-1", "plan", 2*time.Second)
		require.NoError(t, err)
		done <- v
	}()

	require.Eventually(t, func() bool {
		return s.Synchronizing("swarm-1", "plan")
	}, time.Second, time.Millisecond)

	// A local write while the sync is in flight must not race the
	// resolution; it is queued and replayed afterwards.
	require.NoError(t, s.SetLocalState("swarm-1", testutil.NewVersionBuilder("plan").
		Value("local-edit").Agent("agent-1").Version(2).Build()))
	_, visible := s.GetState("swarm-1", "plan")
	assert.False(t, visible)

	require.NoError(t, s.OnStateVersion("swarm-1", testutil.NewVersionBuilder("plan").
		Value("remote").Agent("agent-2").Version(5).Build()))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("synchronize did not return")
	}

	got, ok := s.GetStateVersion("swarm-1", "plan")
	require.True(t, ok)
	assert.Equal(t, "local-edit", got.Value)
	// The deferred write lands on top of the resolved version.
	assert.Equal(t, int64(6), got.Version)
}

func TestOnStateVersion_DroppedWithoutSession(t *testing.T) {
	s := NewSynchronizer()

	err := s.OnStateVersion("swarm-1", testutil.NewVersionBuilder("plan").Value("x").Build())
	require.NoError(t, err)

	_, ok := s.GetState("swarm-1", "plan")
	assert.False(t, ok)
}

func TestOnStateVersion_RejectsMalformedVersions(t *testing.T) {
	s := NewSynchronizer()

	err := s.OnStateVersion("swarm-1", core.StateVersion{Value: "x", AgentID: "agent-1"})
	require.Error(t, err)

	err = s.OnStateVersion("swarm-1", core.StateVersion{StateKey: "plan", Value: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent_id")
}

func TestDeltaSync_ReturnsVersionsNewerThanSince(t *testing.T) {
	s := NewSynchronizer()
	for i, val := range []string{"a", "b", "c"} {
		require.NoError(t, s.SetLocalState("swarm-1", testutil.NewVersionBuilder("plan").
			Value(val).Agent("agent-1").Version(int64(i+1)).Build()))
	}

	deltas := s.DeltaSync("swarm-1", 1)
	require.Len(t, deltas, 2)
	assert.Equal(t, "b", deltas[0].Value)
	assert.Equal(t, "c", deltas[1].Value)
	assert.LessOrEqual(t, deltas[0].Version, deltas[1].Version)

	assert.Empty(t, s.DeltaSync("swarm-1", 99))
	assert.Empty(t, s.DeltaSync("unknown-swarm", 0))
}

func TestGetStateVersion_HydratesFromStore(t *testing.T) {
	kv := store.NewInMemoryStore()
	v := testutil.NewVersionBuilder("plan").Value("persisted").Agent("agent-1").Version(7).Build()
	data, err := transport.EncodeVersion(v)
	require.NoError(t, err)
	require.NoError(t, kv.Set("swarm/swarm-1/state/plan", data))

	s := NewSynchronizer(func(o *Options) { o.Store = kv })

	got, ok := s.GetStateVersion("swarm-1", "plan")
	require.True(t, ok)
	assert.Equal(t, "persisted", got.Value)
	assert.Equal(t, int64(7), got.Version)
}

func TestClearState_RemovesCacheAndPersistedCopy(t *testing.T) {
	kv := store.NewInMemoryStore()
	s := NewSynchronizer(func(o *Options) { o.Store = kv })

	require.NoError(t, s.SetLocalState("swarm-1", testutil.NewVersionBuilder("plan").Value("x").Build()))
	require.NoError(t, kv.Set("swarm/swarm-1/state/plan", []byte("raw")))

	require.NoError(t, s.ClearState("swarm-1", "plan"))

	_, ok := s.GetState("swarm-1", "plan")
	assert.False(t, ok)
	_, err := kv.Get("swarm/swarm-1/state/plan")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSynchronize_SetLocalStateAutoIncrementsVersion(t *testing.T) {
	s := NewSynchronizer()

	v := testutil.NewVersionBuilder("plan").Value("x").Version(0).Build()
	require.NoError(t, s.SetLocalState("swarm-1", v))
	got, ok := s.GetStateVersion("swarm-1", "plan")
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Version)

	v2 := testutil.NewVersionBuilder("plan").Value("y").Version(0).Build()
	require.NoError(t, s.SetLocalState("swarm-1", v2))
	got, _ = s.GetStateVersion("swarm-1", "plan")
	assert.Equal(t, int64(2), got.Version)
}
