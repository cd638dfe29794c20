package session

import "sync"

// Register counts sessions that are past admission and not yet terminated.
// It is shared by every supervisor and the server's observability ticker.
type Register struct {
	mu sync.Mutex
	n  int
}

func NewRegister() *Register { return &Register{} }

// Increment records one admitted session and returns the new count.
func (r *Register) Increment() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	return r.n
}

// Decrement records one terminated session and returns the new count.
// It saturates at zero.
func (r *Register) Decrement() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n > 0 {
		r.n--
	}
	return r.n
}

// Current returns a consistent snapshot of the count.
func (r *Register) Current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
