// Package gossip connects the node to the mesh.
//
// The transport is gossipsub over libp2p. Nodes hold a persistent
// Ed25519 identity, listen on the configured multiaddrs, and discover
// peers via mDNS and static bootstrap addresses.
package gossip

import (
	"context"
	"fmt"
	gosync "sync"

	logging "github.com/ipfs/go-log/v2"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"github.com/cidmesh/cidmesh/pkg/backoff"
	"github.com/cidmesh/cidmesh/pkg/log"
	"github.com/cidmesh/cidmesh/sync"
)

const bootstrapRetries = 5

func init() {
	// Silence noisy libp2p subsystems; dial failures and backoff errors
	// go to stderr by default.
	logging.SetLogLevel("swarm2", "error")
	logging.SetLogLevel("autonat", "warn")
}

// Transport is the libp2p mesh transport.
//
// Implements sync.Transport and sync.Identity.
type Transport struct {
	host host.Host
	ps   *pubsub.PubSub

	// mu guards topics. Each topic is joined at most once.
	mu     gosync.Mutex
	topics map[string]*pubsub.Topic

	ctx    context.Context
	cancel context.CancelFunc

	logger log.Logger
}

func NewTransport(conf Config, logger log.Logger) (*Transport, error) {
	logger = logger.WithSubsystem("gossip")

	key, created, err := loadOrCreateKey(conf.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("identity key: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(key),
		libp2p.ListenAddrStrings(conf.ListenAddrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("libp2p host: %w", err)
	}

	logger.Info(
		"starting transport",
		zap.String("peer-id", h.ID().String()),
		zap.Strings("listen-addrs", conf.ListenAddrs),
		zap.Bool("key-created", created),
	)

	ctx, cancel := context.WithCancel(context.Background())

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("gossipsub: %w", err)
	}

	t := &Transport{
		host:   h,
		ps:     ps,
		topics: make(map[string]*pubsub.Topic),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	if conf.MDNS {
		if err := t.startMDNS(); err != nil {
			_ = t.Close()
			return nil, fmt.Errorf("mdns: %w", err)
		}
	}

	if len(conf.Bootstrap) > 0 {
		go t.bootstrap(conf.Bootstrap)
	}

	return t, nil
}

// LocalID returns the node's peer ID.
func (t *Transport) LocalID() string {
	return t.host.ID().String()
}

func (t *Transport) Subscribe(topic string) (sync.Subscription, error) {
	pt, err := t.joinTopic(topic)
	if err != nil {
		return nil, err
	}

	sub, err := pt.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribe: %s: %w", topic, err)
	}

	return &subscription{
		topic: topic,
		sub:   sub,
		self:  t.host.ID(),
	}, nil
}

func (t *Transport) Publish(ctx context.Context, topic string, data []byte) error {
	pt, err := t.joinTopic(topic)
	if err != nil {
		return err
	}
	if err := pt.Publish(ctx, data); err != nil {
		return fmt.Errorf("publish: %s: %w", topic, err)
	}
	return nil
}

// PublicKey implements sync.Identity by extracting the Ed25519 public
// key embedded in the peer ID.
func (t *Transport) PublicKey(peerID string) ([]byte, error) {
	id, err := peer.Decode(peerID)
	if err != nil {
		return nil, fmt.Errorf("decode peer id: %s: %w", peerID, err)
	}
	pub, err := id.ExtractPublicKey()
	if err != nil {
		return nil, fmt.Errorf("extract public key: %s: %w", peerID, err)
	}
	raw, err := pub.Raw()
	if err != nil {
		return nil, fmt.Errorf("public key bytes: %w", err)
	}
	return raw, nil
}

func (t *Transport) Close() error {
	t.cancel()
	return t.host.Close()
}

func (t *Transport) joinTopic(topic string) (*pubsub.Topic, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pt, ok := t.topics[topic]; ok {
		return pt, nil
	}
	pt, err := t.ps.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("join topic: %s: %w", topic, err)
	}
	t.topics[topic] = pt
	return pt, nil
}

// bootstrap dials the configured peers, retrying with backoff until
// each dial succeeds or the retries are exhausted.
func (t *Transport) bootstrap(addrs []string) {
	for _, addr := range addrs {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			t.logger.Error(
				"invalid bootstrap addr",
				zap.String("addr", addr),
				zap.Error(err),
			)
			continue
		}

		b := backoff.New(bootstrapRetries, backoffMin, backoffMax)
		for {
			if err := t.host.Connect(t.ctx, *info); err == nil {
				t.logger.Info(
					"connected to bootstrap peer",
					zap.String("peer-id", info.ID.String()),
				)
				break
			} else {
				t.logger.Warn(
					"bootstrap dial failed",
					zap.String("peer-id", info.ID.String()),
					zap.Error(err),
				)
			}
			if !b.Wait(t.ctx) {
				break
			}
		}
	}
}

type subscription struct {
	topic string
	sub   *pubsub.Subscription
	self  peer.ID
}

func (s *subscription) Next(ctx context.Context) (sync.Message, error) {
	for {
		msg, err := s.sub.Next(ctx)
		if err != nil {
			return sync.Message{}, err
		}
		// Gossipsub delivers our own publishes back to us; drop them.
		// From is the frame's origin, not the relaying peer.
		if msg.GetFrom() == s.self {
			continue
		}
		return sync.Message{
			Topic: s.topic,
			From:  msg.GetFrom().String(),
			Data:  msg.Data,
		}, nil
	}
}

func (s *subscription) Cancel() {
	s.sub.Cancel()
}
