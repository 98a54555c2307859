package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/swarmcoord/conflict"
	"github.com/hupe1980/swarmcoord/core"
	"github.com/hupe1980/swarmcoord/logging"
	"github.com/hupe1980/swarmcoord/transport"
)

// Options configures a Synchronizer using the functional options pattern.
type Options struct {
	// Resolver reconciles conflicting versions. Defaults to a
	// last-write-wins conflict resolver.
	Resolver core.Resolver

	// Broadcaster fans state requests and resolved versions out to the
	// swarm. Nil skips the broadcasts, which is useful in tests that drive
	// OnStateVersion directly.
	Broadcaster core.Broadcaster

	// Store durably persists the resolved version per (swarm, state key).
	// Nil disables persistence.
	Store core.KVStore

	// SenderID identifies the synchronizer in broadcast envelopes.
	SenderID string

	// DefaultTimeout bounds response collection for Synchronize calls that
	// pass no timeout of their own. Default 10s.
	DefaultTimeout time.Duration

	// ExpectedResponses, when positive, completes a sync session early once
	// that many distinct agents have responded. Zero waits out the timeout.
	ExpectedResponses int

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// syncSession tracks one in-flight synchronization for a (swarm, state key)
// pair. Responses and the completion flag are guarded by the synchronizer's
// mutex; done is closed exactly once when enough agents have responded.
type syncSession struct {
	swarmID   string
	stateKey  string
	responses map[string]core.StateVersion
	remote    int
	pending   []core.StateVersion
	done      chan struct{}
	complete  bool
	started   time.Time
}

// Synchronizer implements the full and incremental synchronization protocols
// on top of a Resolver, a Broadcaster and a KVStore.
//
// Concurrency model: Synchronize is the only blocking call, bounded by an
// explicit timeout; OnStateVersion, SetLocalState and the read accessors are
// non-blocking. At most one sync session per (swarm, state key) can be in
// flight; local writes to a key under sync are queued and applied after the
// session resolves.
type Synchronizer struct {
	mu       sync.RWMutex
	sessions map[string]*syncSession
	states   map[string]core.StateVersion
	history  map[string][]core.StateVersion

	resolver       core.Resolver
	broadcaster    core.Broadcaster
	store          core.KVStore
	senderID       string
	defaultTimeout time.Duration
	expected       int
	logger         logging.Logger
}

// NewSynchronizer creates a synchronizer. With no options it resolves
// conflicts by last write wins, skips broadcasting and persistence, and logs
// nothing.
func NewSynchronizer(optFns ...func(o *Options)) *Synchronizer {
	opts := Options{
		DefaultTimeout: 10 * time.Second,
		SenderID:       core.CoordinatorAgentID,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Resolver == nil {
		opts.Resolver = conflict.New(core.StrategyLWW)
	}

	return &Synchronizer{
		sessions:       map[string]*syncSession{},
		states:         map[string]core.StateVersion{},
		history:        map[string][]core.StateVersion{},
		resolver:       opts.Resolver,
		broadcaster:    opts.Broadcaster,
		store:          opts.Store,
		senderID:       opts.SenderID,
		defaultTimeout: opts.DefaultTimeout,
		expected:       opts.ExpectedResponses,
		logger:         opts.Logger,
	}
}

// Synchronize runs a full sync for one state key: it broadcasts a state
// request, collects responses until enough agents answer or the timeout
// expires, resolves any conflict among the collected versions, announces the
// winner to the swarm, persists it and updates the local cache. Zero remote
// responses fail with ErrSyncTimeout and leave the local state untouched.
func (s *Synchronizer) Synchronize(ctx context.Context, swarmID, stateKey string, timeout time.Duration) (*core.StateVersion, error) {
	if swarmID == "" || stateKey == "" {
		return nil, fmt.Errorf("synchronize: swarm id and state key are required")
	}
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	key := sessionKey(swarmID, stateKey)
	session := &syncSession{
		swarmID:   swarmID,
		stateKey:  stateKey,
		responses: map[string]core.StateVersion{},
		done:      make(chan struct{}),
		started:   time.Now(),
	}

	s.mu.Lock()
	if _, inFlight := s.sessions[key]; inFlight {
		s.mu.Unlock()
		return nil, fmt.Errorf("synchronize: sync for %q in swarm %q already in flight", stateKey, swarmID)
	}
	// The local copy participates in resolution like any remote response,
	// but only remote answers count towards the success condition.
	if local, ok := s.states[key]; ok {
		session.responses[local.AgentID] = local.Clone()
	}
	s.sessions[key] = session
	s.mu.Unlock()

	if s.broadcaster != nil {
		// Broadcast failure is not fatal: responses may still arrive
		// through other paths before the deadline.
		msg := core.NewStateRequestMessage(s.senderID, swarmID, stateKey)
		if err := s.broadcaster.Broadcast(ctx, swarmID, msg); err != nil {
			s.logger.Warn("state request broadcast failed", "swarm_id", swarmID, "state_key", stateKey, "error", err)
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-session.done:
	case <-timer.C:
	case <-ctx.Done():
	}

	return s.finalize(ctx, session)
}

// OnStateVersion records one agent's copy of a state key for the in-flight
// sync session. Responses for keys with no session in flight are dropped.
// When an agent responds more than once, the highest version number wins.
func (s *Synchronizer) OnStateVersion(swarmID string, v core.StateVersion) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if v.AgentID == "" {
		return fmt.Errorf("state version %q: empty agent_id", v.StateKey)
	}
	v = v.Normalized()

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionKey(swarmID, v.StateKey)]
	if !ok {
		s.logger.Debug("dropping state version without session", "swarm_id", swarmID, "state_key", v.StateKey, "agent_id", v.AgentID)
		return nil
	}

	prev, seen := session.responses[v.AgentID]
	if seen && prev.Version >= v.Version {
		return nil
	}
	if !seen && v.AgentID != s.senderID {
		session.remote++
	}
	session.responses[v.AgentID] = v.Clone()

	if !session.complete && s.expected > 0 && session.remote >= s.expected {
		session.complete = true
		close(session.done)
	}
	return nil
}

// SetLocalState records a local write. While a sync for the same key is in
// flight the write is queued and applied after resolution; otherwise it takes
// effect immediately. A zero Version is assigned the next number after the
// current local version.
func (s *Synchronizer) SetLocalState(swarmID string, v core.StateVersion) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if v.AgentID == "" {
		v.AgentID = s.senderID
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}
	v = v.Normalized()

	key := sessionKey(swarmID, v.StateKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if v.Version == 0 {
		v.Version = s.states[key].Version + 1
	}

	if session, inFlight := s.sessions[key]; inFlight {
		session.pending = append(session.pending, v)
		s.logger.Debug("deferring local write during sync", "swarm_id", swarmID, "state_key", v.StateKey, "version", v.Version)
		return nil
	}

	s.applyLocked(swarmID, key, v)
	return nil
}

// GetState returns the current local value for a state key.
func (s *Synchronizer) GetState(swarmID, stateKey string) (any, bool) {
	v, ok := s.GetStateVersion(swarmID, stateKey)
	if !ok {
		return nil, false
	}
	return v.Value, true
}

// GetStateVersion returns the current local version for a state key. On a
// cache miss it falls back to the persisted copy, hydrating the cache.
func (s *Synchronizer) GetStateVersion(swarmID, stateKey string) (core.StateVersion, bool) {
	key := sessionKey(swarmID, stateKey)

	s.mu.RLock()
	v, ok := s.states[key]
	s.mu.RUnlock()
	if ok {
		return v.Clone(), true
	}

	if s.store == nil {
		return core.StateVersion{}, false
	}
	data, err := s.store.Get(storeKey(swarmID, stateKey))
	if err != nil {
		return core.StateVersion{}, false
	}
	v, err = transport.DecodeVersion(data)
	if err != nil {
		s.logger.Warn("discarding undecodable persisted state", "swarm_id", swarmID, "state_key", stateKey, "error", err)
		return core.StateVersion{}, false
	}

	s.mu.Lock()
	if cached, raced := s.states[key]; raced {
		v = cached
	} else {
		s.states[key] = v.Clone()
	}
	s.mu.Unlock()
	return v.Clone(), true
}

// ClearState forgets the local copy of a state key and deletes its persisted
// version. The resolved-version history is kept.
func (s *Synchronizer) ClearState(swarmID, stateKey string) error {
	key := sessionKey(swarmID, stateKey)

	s.mu.Lock()
	delete(s.states, key)
	s.mu.Unlock()

	if s.store != nil {
		return s.store.Delete(storeKey(swarmID, stateKey))
	}
	return nil
}

// DeltaSync returns the swarm's resolved versions newer than the given
// version number, ordered by non-decreasing version. It returns an empty
// slice when the agent is already up to date.
func (s *Synchronizer) DeltaSync(swarmID string, since int64) []core.StateVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deltas := []core.StateVersion{}
	for _, v := range s.history[swarmID] {
		if v.Version > since {
			deltas = append(deltas, v.Clone())
		}
	}
	sort.SliceStable(deltas, func(i, j int) bool { return deltas[i].Version < deltas[j].Version })
	return deltas
}

// Synchronizing reports whether a sync session for the given state key is in
// flight.
func (s *Synchronizer) Synchronizing(swarmID, stateKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionKey(swarmID, stateKey)]
	return ok
}

// finalize removes the session from the in-flight set, resolves the collected
// versions, announces and persists the winner and replays deferred local
// writes. Responses arriving after the session is removed are dropped by
// OnStateVersion.
func (s *Synchronizer) finalize(ctx context.Context, session *syncSession) (*core.StateVersion, error) {
	key := sessionKey(session.swarmID, session.stateKey)

	s.mu.Lock()
	delete(s.sessions, key)
	responses := session.responses
	pending := session.pending
	remote := session.remote
	s.mu.Unlock()

	defer s.applyPending(session.swarmID, key, pending)

	if remote == 0 {
		err := fmt.Errorf("%w: no responses for %q in swarm %q", core.ErrSyncTimeout, session.stateKey, session.swarmID)
		s.logger.Error("state sync failed",
			"swarm_id", session.swarmID,
			"state_key", session.stateKey,
			"duration", time.Since(session.started),
			"error", err,
		)
		return nil, err
	}

	resolved, err := s.resolve(session.stateKey, responses)
	if err != nil {
		s.logger.Error("state resolution failed", "swarm_id", session.swarmID, "state_key", session.stateKey, "error", err)
		return nil, err
	}

	if s.broadcaster != nil {
		msg := core.NewStateResolvedMessage(s.senderID, session.swarmID, resolved)
		if err := s.broadcaster.Broadcast(ctx, session.swarmID, msg); err != nil {
			s.logger.Warn("resolved state broadcast failed", "swarm_id", session.swarmID, "state_key", session.stateKey, "error", err)
		}
	}
	if s.store != nil {
		if data, err := transport.EncodeVersion(resolved); err == nil {
			if err := s.store.Set(storeKey(session.swarmID, session.stateKey), data); err != nil {
				s.logger.Warn("persisting resolved state failed", "swarm_id", session.swarmID, "state_key", session.stateKey, "error", err)
			}
		}
	}

	s.mu.Lock()
	s.applyLocked(session.swarmID, key, resolved)
	s.mu.Unlock()

	s.logger.Info("state sync completed",
		"swarm_id", session.swarmID,
		"state_key", session.stateKey,
		"responses", len(responses),
		"winner_agent", resolved.AgentID,
		"version", resolved.Version,
		"duration", time.Since(session.started),
	)
	return &resolved, nil
}

// resolve picks the swarm-wide version among the collected responses. A real
// conflict goes through the resolver; identical copies short-circuit to the
// deterministically latest one.
func (s *Synchronizer) resolve(stateKey string, responses map[string]core.StateVersion) (core.StateVersion, error) {
	conflicted := s.resolver.DetectConflicts(responses)
	for _, k := range conflicted {
		if k != stateKey {
			continue
		}
		versions := make([]core.StateVersion, 0, len(responses))
		for _, v := range responses {
			versions = append(versions, v)
		}
		return s.resolver.Resolve(stateKey, versions)
	}
	return latestVersion(responses), nil
}

func (s *Synchronizer) applyPending(swarmID, key string, pending []core.StateVersion) {
	if len(pending) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range pending {
		if v.Version <= s.states[key].Version {
			v.Version = s.states[key].Version + 1
		}
		s.applyLocked(swarmID, key, v)
	}
}

// applyLocked installs a version as the current local state and appends it to
// the swarm's history. Callers must hold the write lock.
func (s *Synchronizer) applyLocked(swarmID, key string, v core.StateVersion) {
	s.states[key] = v.Clone()
	s.history[swarmID] = append(s.history[swarmID], v.Clone())
}

// latestVersion picks the deterministically newest response: highest version,
// then latest timestamp, then greatest agent id.
func latestVersion(responses map[string]core.StateVersion) core.StateVersion {
	var best core.StateVersion
	first := true
	for _, v := range responses {
		if first {
			best, first = v, false
			continue
		}
		switch {
		case v.Version != best.Version:
			if v.Version > best.Version {
				best = v
			}
		case !v.Timestamp.Equal(best.Timestamp):
			if v.Timestamp.After(best.Timestamp) {
				best = v
			}
		case v.AgentID > best.AgentID:
			best = v
		}
	}
	return best.Clone()
}

func sessionKey(swarmID, stateKey string) string {
	return swarmID + "/" + stateKey
}

func storeKey(swarmID, stateKey string) string {
	return fmt.Sprintf("swarm/%s/state/%s", swarmID, stateKey)
}
