package sync

import (
	gosync "sync"
	"time"
)

// ParityState tracks how a channel currently relates to the rest of the
// mesh, based on the most recent summaries observed.
type ParityState int

const (
	// ParityStable means the last observed peer summary matched the
	// local set.
	ParityStable ParityState = iota

	// ParityDiverged means a peer announced a summary that differs from
	// the local set.
	ParityDiverged

	// ParityReconciling means a reconciliation request has been
	// published and a diff is expected.
	ParityReconciling
)

func (s ParityState) String() string {
	switch s {
	case ParityStable:
		return "stable"
	case ParityDiverged:
		return "diverged"
	case ParityReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}

type parityTracker struct {
	mu    gosync.Mutex
	state ParityState
	since time.Time
}

func newParityTracker() *parityTracker {
	return &parityTracker{
		state: ParityStable,
		since: time.Now(),
	}
}

// Observe records whether the latest peer summary matched the local
// set. A match from any state returns to stable; a mismatch marks the
// channel diverged, including while a reconciliation is in flight.
func (p *parityTracker) Observe(converged bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if converged {
		p.transition(ParityStable)
		return
	}
	p.transition(ParityDiverged)
}

// MarkReconciling records that a reconciliation request has been
// published for the channel.
func (p *parityTracker) MarkReconciling() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transition(ParityReconciling)
}

func (p *parityTracker) State() (ParityState, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.since
}

func (p *parityTracker) transition(next ParityState) {
	if p.state == next {
		return
	}
	p.state = next
	p.since = time.Now()
}
