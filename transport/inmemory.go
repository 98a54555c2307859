package transport

import (
	"context"
	"sync"

	"github.com/hupe1980/swarmcoord/core"
)

// InMemoryBusOptions configures the in-process bus.
type InMemoryBusOptions struct {
	// BufferSize is the per-subscriber channel buffer. A full subscriber
	// drops the message rather than blocking the broadcaster, mirroring the
	// loss semantics of a real transport. Default 64.
	BufferSize int
}

// subscriber is one channel registered for a swarm topic.
type subscriber struct {
	ch chan core.Message
	id int
}

// InMemoryBus is a process-local core.Broadcaster. Messages are fanned out to
// every channel subscribed to the swarm id; slow subscribers lose messages
// instead of applying backpressure. Safe for concurrent use.
type InMemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]subscriber
	nextID int
	buffer int
}

var _ core.Broadcaster = (*InMemoryBus)(nil)

// NewInMemoryBus constructs an empty bus.
func NewInMemoryBus(optFns ...func(o *InMemoryBusOptions)) *InMemoryBus {
	opts := InMemoryBusOptions{BufferSize: 64}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryBus{subs: map[string][]subscriber{}, buffer: opts.BufferSize}
}

// Subscribe registers a channel for every message broadcast to the swarm id.
// The returned cancel function removes the subscription and closes the channel.
func (b *InMemoryBus) Subscribe(swarmID string) (<-chan core.Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscriber{ch: make(chan core.Message, b.buffer), id: b.nextID}
	b.nextID++
	b.subs[swarmID] = append(b.subs[swarmID], sub)

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[swarmID]
		for i, s := range subs {
			if s.id == sub.id {
				b.subs[swarmID] = append(subs[:i], subs[i+1:]...)
				close(s.ch)
				return
			}
		}
	}
	return sub.ch, cancel
}

// Broadcast implements core.Broadcaster. Returns early when ctx is done;
// otherwise delivery is best-effort per subscriber.
func (b *InMemoryBus) Broadcast(ctx context.Context, swarmID string, msg core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.SwarmID == "" {
		msg.SwarmID = swarmID
	}

	b.mu.RLock()
	subs := make([]subscriber, len(b.subs[swarmID]))
	copy(subs, b.subs[swarmID])
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
			// Subscriber buffer full: drop, like a lossy transport would.
		}
	}
	return nil
}

// SubscriberCount reports how many channels listen on the swarm id.
func (b *InMemoryBus) SubscriberCount(swarmID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[swarmID])
}
