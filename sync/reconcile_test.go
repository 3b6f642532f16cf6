package sync

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidmesh/cidmesh/pkg/log"
	"github.com/cidmesh/cidmesh/sync/wire"
)

// stubTransport records subscriptions and published frames, and fails
// publishes on topics with the configured suffix.
type stubTransport struct {
	mu gosync.Mutex

	subscribed []string
	cancelled  []string
	published  map[string][][]byte

	failSuffix string
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		published: make(map[string][][]byte),
	}
}

func (t *stubTransport) Subscribe(topic string) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribed = append(t.subscribed, topic)
	return &stubSubscription{transport: t, topic: topic}, nil
}

func (t *stubTransport) Publish(_ context.Context, topic string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSuffix != "" && strings.HasSuffix(topic, t.failSuffix) {
		return fmt.Errorf("publish failed")
	}
	t.published[topic] = append(t.published[topic], data)
	return nil
}

func (t *stubTransport) PublicKey(peer string) ([]byte, error) {
	if peer == "node-b" {
		return make([]byte, 32), nil
	}
	return nil, fmt.Errorf("unknown peer: %s", peer)
}

func (t *stubTransport) cancelledTopics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.cancelled...)
}

func (t *stubTransport) publishedOn(topic string) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.published[topic]...)
}

type stubSubscription struct {
	transport *stubTransport
	topic     string
}

func (s *stubSubscription) Next(ctx context.Context) (Message, error) {
	<-ctx.Done()
	return Message{}, ctx.Err()
}

func (s *stubSubscription) Cancel() {
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	s.transport.cancelled = append(s.transport.cancelled, s.topic)
}

func stubConfig() Config {
	return Config{
		Channels: []string{"docs"},
		Timers: TimersConfig{
			QuietMin:           time.Second * 20,
			QuietMax:           time.Second * 60,
			SynBackoffMin:      time.Millisecond,
			SynBackoffMax:      time.Millisecond * 2,
			ResponderJitterMin: time.Millisecond,
			ResponderJitterMax: time.Millisecond * 2,
		},
	}
}

func newTestReconciliation(t *testing.T, ch *Channel) *Reconciliation {
	t.Helper()
	root, count := ch.Summary()
	var peerRoot [32]byte
	peerRoot[0] = 0xff
	return &Reconciliation{
		Channel:    ch.Name(),
		LocalRoot:  root,
		LocalCount: count,
		PeerRoot:   peerRoot,
		PeerCount:  count + 1,
	}
}

func TestStartReconciliation(t *testing.T) {
	t.Run("publishes syn", func(t *testing.T) {
		transport := newStubTransport()
		s := NewSyncer(transport, transport, stubConfig(), log.NewNopLogger())
		defer s.Close()
		require.NoError(t, s.Open("docs"))

		ch, ok := s.channels.Lookup("docs")
		require.True(t, ok)
		rec := newTestReconciliation(t, ch)

		err := s.startReconciliation(context.Background(), ch, rec, "node-b")
		require.NoError(t, err)

		// Subscribed to the response topic before publishing.
		assert.Contains(t, transport.subscribed, "docs"+wire.TopicDif)

		frames := transport.publishedOn("docs" + wire.TopicSyn)
		require.Len(t, frames, 1)
		syn, err := wire.DecodeSyn(frames[0])
		require.NoError(t, err)
		assert.Equal(t, rec.LocalRoot[:], syn.Root)
		assert.Equal(t, rec.PeerRoot[:], syn.PeerRoot)
		assert.Equal(t, make([]byte, 32), syn.To)

		state, _ := ch.parity.State()
		assert.Equal(t, ParityReconciling, state)

		// The guard clears so a later divergence can reconcile again.
		assert.False(t, ch.reconciling.Load())
		assert.True(t, ch.difOpen.Load())
	})

	t.Run("publish failure closes response subscription", func(t *testing.T) {
		transport := newStubTransport()
		transport.failSuffix = wire.TopicSyn
		s := NewSyncer(transport, transport, stubConfig(), log.NewNopLogger())
		defer s.Close()
		require.NoError(t, s.Open("docs"))

		ch, ok := s.channels.Lookup("docs")
		require.True(t, ok)
		rec := newTestReconciliation(t, ch)

		err := s.startReconciliation(context.Background(), ch, rec, "node-b")
		require.Error(t, err)

		// The '.dif' subscription opened for this attempt is closed
		// again so a retry starts clean.
		assert.Contains(t, transport.cancelledTopics(), "docs"+wire.TopicDif)
		assert.False(t, ch.difOpen.Load())
		assert.False(t, ch.reconciling.Load())

		s.mu.Lock()
		_, open := s.subs["docs"+wire.TopicDif]
		s.mu.Unlock()
		assert.False(t, open)
	})

	t.Run("unresolvable peer sends unaddressed", func(t *testing.T) {
		transport := newStubTransport()
		s := NewSyncer(transport, transport, stubConfig(), log.NewNopLogger())
		defer s.Close()
		require.NoError(t, s.Open("docs"))

		ch, ok := s.channels.Lookup("docs")
		require.True(t, ok)
		rec := newTestReconciliation(t, ch)

		err := s.startReconciliation(context.Background(), ch, rec, "node-unknown")
		require.NoError(t, err)

		frames := transport.publishedOn("docs" + wire.TopicSyn)
		require.Len(t, frames, 1)
		syn, err := wire.DecodeSyn(frames[0])
		require.NoError(t, err)
		assert.Nil(t, syn.To)
	})

	t.Run("overlapping attempt dropped", func(t *testing.T) {
		transport := newStubTransport()
		s := NewSyncer(transport, transport, stubConfig(), log.NewNopLogger())
		defer s.Close()
		require.NoError(t, s.Open("docs"))

		ch, ok := s.channels.Lookup("docs")
		require.True(t, ok)
		rec := newTestReconciliation(t, ch)

		ch.reconciling.Store(true)
		err := s.startReconciliation(context.Background(), ch, rec, "node-b")
		require.NoError(t, err)
		assert.Empty(t, transport.publishedOn("docs"+wire.TopicSyn))
	})
}
