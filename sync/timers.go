package sync

import (
	"context"
	"math/rand"
	gosync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/cidmesh/cidmesh/pkg/log"
)

// QuietTimer fires a keepalive callback whenever a channel has been
// quiet for a random period within the configured range.
//
// The timer runs a single loop goroutine per channel. Resetting the
// timer restarts the quiet period with a fresh random duration. The
// callback runs off the loop goroutine so a slow publish never delays
// the next period, with at most one invocation in flight at a time.
type QuietTimer struct {
	clock clockwork.Clock

	min time.Duration
	max time.Duration

	fire func() error

	mu      gosync.Mutex
	running bool
	stopped bool

	resetCh    chan struct{}
	shutdownCh chan struct{}
	doneCh     chan struct{}

	firing atomic.Bool
	// fireWG tracks the callback goroutine so Stop can wait for an
	// in-flight callback to finish.
	fireWG gosync.WaitGroup

	logger log.Logger
}

func NewQuietTimer(
	clock clockwork.Clock,
	min time.Duration,
	max time.Duration,
	fire func() error,
	logger log.Logger,
) *QuietTimer {
	return &QuietTimer{
		clock:      clock,
		min:        min,
		max:        max,
		fire:       fire,
		resetCh:    make(chan struct{}, 1),
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
		logger:     logger.WithSubsystem("timer"),
	}
}

// Start spawns the timer loop. Starting a running or stopped timer is a
// no-op.
func (t *QuietTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if t.running {
		t.logger.Debug("quiet timer already running")
		return
	}
	t.running = true

	go t.loop()
}

// Reset restarts the quiet period. Never blocks.
func (t *QuietTimer) Reset() {
	select {
	case t.resetCh <- struct{}{}:
	default:
	}
}

// Stop shuts the timer down and waits for the loop goroutine and any
// in-flight callback to exit. No callback is running after Stop
// returns. Must not be called from the callback itself.
func (t *QuietTimer) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	running := t.running
	t.mu.Unlock()

	close(t.shutdownCh)
	if running {
		<-t.doneCh
	}
	t.fireWG.Wait()
}

func (t *QuietTimer) loop() {
	defer close(t.doneCh)

	for {
		select {
		case <-t.clock.After(jitterDuration(t.min, t.max)):
			t.callFire()
		case <-t.resetCh:
		case <-t.shutdownCh:
			return
		}
	}
}

func (t *QuietTimer) callFire() {
	if !t.firing.CompareAndSwap(false, true) {
		t.logger.Debug("keepalive still in flight; skipping")
		return
	}
	t.fireWG.Add(1)
	go func() {
		defer t.fireWG.Done()
		defer t.firing.Store(false)
		if err := t.fire(); err != nil {
			t.logger.Warn("keepalive failed", zap.Error(err))
		}
	}()
}

// jitterDuration draws a uniform random duration from [min, max).
// Returns min if the range is empty.
func jitterDuration(min, max time.Duration) time.Duration {
	if min >= max {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// waitJitter sleeps for a random duration from [min, max), or until the
// context is cancelled.
func waitJitter(
	ctx context.Context,
	clock clockwork.Clock,
	min time.Duration,
	max time.Duration,
) error {
	select {
	case <-clock.After(jitterDuration(min, max)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
