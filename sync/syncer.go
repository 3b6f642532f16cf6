package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cidmesh/cidmesh/pkg/log"
	"github.com/cidmesh/cidmesh/sync/wire"
)

// IngestFunc is called for each new CID added from a peer announcement.
type IngestFunc func(channel string, cid []byte)

// Syncer converges the local CID sets with the rest of the mesh.
//
// Each open channel commits its set to a tree root. The syncer
// announces local additions on the channel's '.new' topic, publishes
// summary keepalives whenever the channel has been quiet, and when a
// peer's announced root differs from its own, requests reconciliation
// on the '.syn' topic.
type Syncer struct {
	conf Config

	transport Transport
	identity  Identity

	channels *Registry

	clock clockwork.Clock

	mu   gosync.Mutex
	subs map[string]Subscription

	ingestFn IngestFunc

	group errgroup.Group

	ctx    context.Context
	cancel context.CancelFunc

	metrics *Metrics

	logger log.Logger

	closed *atomic.Bool
}

func NewSyncer(
	transport Transport,
	identity Identity,
	conf Config,
	logger log.Logger,
) *Syncer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		conf:      conf,
		transport: transport,
		identity:  identity,
		channels:  NewRegistry(),
		clock:     clockwork.NewRealClock(),
		subs:      make(map[string]Subscription),
		ctx:       ctx,
		cancel:    cancel,
		metrics:   newMetrics(),
		logger:    logger.WithSubsystem("sync"),
		closed:    atomic.NewBool(false),
	}
}

// OnIngest registers a callback invoked for each new CID added from a
// peer announcement. Must be called before Open.
func (s *Syncer) OnIngest(fn IngestFunc) {
	s.ingestFn = fn
}

// Open joins the given channel: subscribes to its announcement topic
// and starts its quiet-period keepalive timer. Opening an open channel
// is a no-op.
func (s *Syncer) Open(name string) error {
	ch, err := s.channels.Get(name)
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	if ch.quietTimer() != nil {
		return nil
	}

	if err := s.subscribe(name + wire.TopicNew); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := s.subscribe(name + wire.TopicSyn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	quiet := NewQuietTimer(
		s.clock,
		s.conf.Timers.QuietMin,
		s.conf.Timers.QuietMax,
		func() error {
			return s.publishKeepalive(ch)
		},
		s.logger.With(zap.String("channel", name)),
	)
	if !ch.setQuietTimer(quiet) {
		// Lost a race with a concurrent open of the same channel.
		return nil
	}
	quiet.Start()

	s.logger.Info(
		"opened channel",
		zap.String("channel", name),
		zap.Uint32("channel-id", ch.ID()),
	)
	return nil
}

// Announce adds the given CIDs to the channel's set and announces them
// on the channel's '.new' topic.
func (s *Syncer) Announce(ctx context.Context, channel string, cids [][]byte) error {
	ch, ok := s.channels.Lookup(channel)
	if !ok {
		return fmt.Errorf("channel not open: %s", channel)
	}
	quiet := ch.quietTimer()
	if quiet == nil {
		return fmt.Errorf("channel not open: %s", channel)
	}

	for _, cid := range cids {
		if _, err := ch.Insert(cid); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}

	root, count := ch.Summary()
	announce := &wire.Announce{
		Root:  root[:],
		Count: count,
		Docs:  cids,
	}
	b, err := announce.Encode()
	if err != nil {
		return fmt.Errorf("encode announce: %w", err)
	}

	if err := s.transport.Publish(ctx, channel+wire.TopicNew, b); err != nil {
		return fmt.Errorf("publish announce: %w", err)
	}

	s.metrics.AnnouncesOutbound.Inc()

	// The announcement already tells peers our new summary, so push the
	// next keepalive back.
	quiet.Reset()

	return nil
}

// Channels returns the open channels ordered by name.
func (s *Syncer) Channels() []*Channel {
	return s.channels.List()
}

func (s *Syncer) Metrics() *Metrics {
	return s.metrics
}

// Close stops all channel timers, cancels the topic subscriptions and
// waits for the receive loops to exit.
func (s *Syncer) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		// Already closed.
		return nil
	}

	for _, ch := range s.channels.List() {
		if quiet := ch.quietTimer(); quiet != nil {
			quiet.Stop()
		}
	}

	s.cancel()

	s.mu.Lock()
	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.subs = make(map[string]Subscription)
	s.mu.Unlock()

	return s.group.Wait()
}

func (s *Syncer) publishKeepalive(ch *Channel) error {
	root, count := ch.Summary()
	announce := &wire.Announce{
		Root:  root[:],
		Count: count,
	}
	b, err := announce.Encode()
	if err != nil {
		return fmt.Errorf("encode keepalive: %w", err)
	}

	if err := s.transport.Publish(s.ctx, ch.Name()+wire.TopicNew, b); err != nil {
		return fmt.Errorf("publish keepalive: %w", err)
	}

	s.metrics.KeepalivesOutbound.Inc()

	s.logger.Debug(
		"published keepalive",
		zap.String("channel", ch.Name()),
		zap.Uint64("count", count),
	)
	return nil
}

// subscribe opens a subscription to the topic and spawns a receive loop
// routing its frames. A topic is only subscribed once.
func (s *Syncer) subscribe(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[topic]; ok {
		return nil
	}

	sub, err := s.transport.Subscribe(topic)
	if err != nil {
		return err
	}
	s.subs[topic] = sub

	s.group.Go(func() error {
		s.recvLoop(sub)
		return nil
	})
	return nil
}

func (s *Syncer) unsubscribe(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[topic]
	if !ok {
		return
	}
	sub.Cancel()
	delete(s.subs, topic)
}

func (s *Syncer) recvLoop(sub Subscription) {
	for {
		msg, err := sub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil && !s.closed.Load() {
				s.logger.Debug("subscription closed", zap.Error(err))
			}
			return
		}
		s.route(msg)
	}
}
