package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/cidmesh/cidmesh/pkg/log"
)

// waitFired waits for a single callback invocation.
func waitFired(t *testing.T, firedCh chan struct{}) {
	t.Helper()
	select {
	case <-firedCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for keepalive")
	}
}

// assertNotFired asserts no callback invocation arrives promptly.
func assertNotFired(t *testing.T, firedCh chan struct{}) {
	t.Helper()
	select {
	case <-firedCh:
		t.Fatal("unexpected keepalive")
	case <-time.After(time.Millisecond * 50):
	}
}

func TestQuietTimer_Fires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	firedCh := make(chan struct{}, 8)

	timer := NewQuietTimer(
		clock,
		time.Millisecond*100,
		time.Millisecond*100,
		func() error {
			firedCh <- struct{}{}
			return nil
		},
		log.NewNopLogger(),
	)
	timer.Start()
	defer timer.Stop()

	for i := 0; i < 3; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Millisecond * 100)
		waitFired(t, firedCh)
	}
}

func TestQuietTimer_Reset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	firedCh := make(chan struct{}, 8)

	timer := NewQuietTimer(
		clock,
		time.Millisecond*100,
		time.Millisecond*100,
		func() error {
			firedCh <- struct{}{}
			return nil
		},
		log.NewNopLogger(),
	)
	timer.Start()
	defer timer.Stop()

	clock.BlockUntil(1)
	clock.Advance(time.Millisecond * 50)

	// Restart the quiet period at t=50ms, so the next fire moves from
	// t=100ms to t=150ms.
	timer.Reset()
	clock.BlockUntil(2)

	clock.Advance(time.Millisecond * 60)
	assertNotFired(t, firedCh)

	clock.Advance(time.Millisecond * 40)
	waitFired(t, firedCh)
}

func TestQuietTimer_StartIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	firedCh := make(chan struct{}, 8)

	timer := NewQuietTimer(
		clock,
		time.Millisecond*100,
		time.Millisecond*100,
		func() error {
			firedCh <- struct{}{}
			return nil
		},
		log.NewNopLogger(),
	)
	timer.Start()
	timer.Start()
	defer timer.Stop()

	clock.BlockUntil(1)
	clock.Advance(time.Millisecond * 100)

	// A single loop runs, so a single fire per quiet period.
	waitFired(t, firedCh)
	assertNotFired(t, firedCh)
}

func TestQuietTimer_Stop(t *testing.T) {
	firedCh := make(chan struct{}, 64)

	timer := NewQuietTimer(
		clockwork.NewRealClock(),
		time.Millisecond*10,
		time.Millisecond*10,
		func() error {
			firedCh <- struct{}{}
			return nil
		},
		log.NewNopLogger(),
	)
	timer.Start()
	timer.Stop()

	// Stop joined the loop, so no further callbacks start.
	for len(firedCh) > 0 {
		<-firedCh
	}
	assertNotFired(t, firedCh)

	// Stop is idempotent, and a stopped timer never restarts.
	timer.Stop()
	timer.Start()
	assertNotFired(t, firedCh)
}

func TestQuietTimer_StopWaitsForCallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	startedCh := make(chan struct{}, 1)
	releaseCh := make(chan struct{})
	finished := atomic.NewBool(false)

	timer := NewQuietTimer(
		clock,
		time.Millisecond*100,
		time.Millisecond*100,
		func() error {
			startedCh <- struct{}{}
			<-releaseCh
			finished.Store(true)
			return nil
		},
		log.NewNopLogger(),
	)
	timer.Start()

	clock.BlockUntil(1)
	clock.Advance(time.Millisecond * 100)
	waitFired(t, startedCh)

	go func() {
		time.Sleep(time.Millisecond * 50)
		close(releaseCh)
	}()

	// The callback is still blocked, so Stop must wait for it rather
	// than leave it publishing after shutdown.
	timer.Stop()
	assert.True(t, finished.Load())
}

func TestQuietTimer_CallbackFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	firedCh := make(chan struct{}, 8)

	timer := NewQuietTimer(
		clock,
		time.Millisecond*100,
		time.Millisecond*100,
		func() error {
			firedCh <- struct{}{}
			return fmt.Errorf("publish failed")
		},
		log.NewNopLogger(),
	)
	timer.Start()
	defer timer.Stop()

	// A failing callback is logged, not fatal; the loop keeps firing.
	clock.BlockUntil(1)
	clock.Advance(time.Millisecond * 100)
	waitFired(t, firedCh)

	clock.BlockUntil(1)
	clock.Advance(time.Millisecond * 100)
	waitFired(t, firedCh)
}

func TestQuietTimer_SingleCallbackInFlight(t *testing.T) {
	clock := clockwork.NewFakeClock()
	startedCh := make(chan struct{}, 8)
	releaseCh := make(chan struct{})

	timer := NewQuietTimer(
		clock,
		time.Millisecond*100,
		time.Millisecond*100,
		func() error {
			startedCh <- struct{}{}
			<-releaseCh
			return nil
		},
		log.NewNopLogger(),
	)
	timer.Start()
	defer timer.Stop()

	clock.BlockUntil(1)
	clock.Advance(time.Millisecond * 100)
	waitFired(t, startedCh)

	// The first callback is still in flight, so the next period's fire
	// is skipped rather than stacked.
	clock.BlockUntil(1)
	clock.Advance(time.Millisecond * 100)
	assertNotFired(t, startedCh)

	close(releaseCh)

	// Wait for the released callback to finish and clear the gate.
	time.Sleep(time.Millisecond * 50)

	clock.BlockUntil(1)
	clock.Advance(time.Millisecond * 100)
	waitFired(t, startedCh)
}

func TestJitterDuration(t *testing.T) {
	t.Run("within range", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			d := jitterDuration(time.Millisecond*200, time.Millisecond*800)
			assert.GreaterOrEqual(t, d, time.Millisecond*200)
			assert.Less(t, d, time.Millisecond*800)
		}
	})

	t.Run("empty range", func(t *testing.T) {
		assert.Equal(
			t,
			time.Millisecond*100,
			jitterDuration(time.Millisecond*100, time.Millisecond*100),
		)
		assert.Equal(
			t,
			time.Millisecond*100,
			jitterDuration(time.Millisecond*100, time.Millisecond*50),
		)
	})
}

func TestWaitJitter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitJitter(
		ctx,
		clockwork.NewRealClock(),
		time.Second*10,
		time.Second*10,
	)
	require.Error(t, err)
}
