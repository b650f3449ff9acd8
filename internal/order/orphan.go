package order

import (
	"sync"
	"time"

	"grid-core/pkg/exchange"
)

type orphanFill struct {
	fill      exchange.FillEvent
	attempts  int
	firstSeen time.Time
}

// orphanBuffer holds fills whose trade id is not (yet) known locally, e.g. a
// fill racing a restart before its Pending row was replayed. Losing a real
// fill is a safety incident, so entries survive until retried out or
// escalated.
type orphanBuffer struct {
	mu      sync.Mutex
	pending []orphanFill
}

func newOrphanBuffer() *orphanBuffer {
	return &orphanBuffer{}
}

func (b *orphanBuffer) add(f exchange.FillEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, orphanFill{fill: f, firstSeen: time.Now()})
}

// take drains the buffer, bumping each entry's attempt count. The caller
// requeues entries it could not resolve.
func (b *orphanBuffer) take() []orphanFill {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	for i := range out {
		out[i].attempts++
	}
	return out
}

func (b *orphanBuffer) requeue(f orphanFill) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, f)
}

func (b *orphanBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
