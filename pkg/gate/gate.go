// Package gate bounds the number of concurrently admitted sessions with a
// fixed-capacity, try-once permit counter.
package gate

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Gate grants at most capacity outstanding Permits. Admission is try-once:
// an over-capacity attempt is denied immediately, never queued.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
}

// New creates a Gate with the given capacity. Capacity 0 denies everything.
func New(capacity int) *Gate {
	return &Gate{sem: semaphore.NewWeighted(int64(capacity)), capacity: capacity}
}

// TryAcquire attempts to take one slot without blocking. It returns nil when
// capacity is exhausted.
func (g *Gate) TryAcquire() *Permit {
	if !g.sem.TryAcquire(1) {
		return nil
	}
	return &Permit{g: g}
}

// Capacity returns the configured limit.
func (g *Gate) Capacity() int { return g.capacity }

// Permit is one admitted slot. It is owned by exactly one session supervisor
// for the session's lifetime.
type Permit struct {
	g    *Gate
	once sync.Once
}

// Release returns the slot to the gate, making exactly one further admission
// possible. Subsequent calls are no-ops.
func (p *Permit) Release() {
	p.once.Do(func() { p.g.sem.Release(1) })
}
