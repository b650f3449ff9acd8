package events

import (
	"sync"
)

// Bus fans events out to per-topic subscribers without ever blocking a
// publisher. Subscriptions are keyed by id so unsubscribing is O(1) and safe
// to call more than once.
type Bus struct {
	mu     sync.Mutex
	nextID int
	topics map[Event]map[int]chan any
	drops  map[Event]uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		topics: make(map[Event]map[int]chan any),
		drops:  make(map[Event]uint64),
	}
}

// Subscribe registers a buffered listener for one topic and returns the
// channel plus a stop function. Stop closes the channel; a second call is a
// no-op.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan any, buffer)
	subs := b.topics[e]
	if subs == nil {
		subs = make(map[int]chan any)
		b.topics[e] = subs
	}
	subs[id] = ch

	stop := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.topics[e][id]; ok {
			delete(b.topics[e], id)
			close(c)
		}
	}
	return ch, stop
}

// Publish delivers the payload to every subscriber with buffer room and drops
// it for the rest. Slow subscribers lose messages; the loss is counted per
// topic, not silent.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.topics[e] {
		select {
		case ch <- payload:
		default:
			b.drops[e]++
		}
	}
}

// Dropped reports how many messages were discarded across all topics.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n uint64
	for _, c := range b.drops {
		n += c
	}
	return n
}

// DroppedFor reports how many messages were discarded on one topic.
func (b *Bus) DroppedFor(e Event) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drops[e]
}
