package gossip

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/cidmesh/cidmesh/sync"
)

// InProcNetwork is an in-memory mesh for tests and local tooling. Each
// node gets a transport with full fan-out semantics: a published frame
// is delivered to every other node subscribed to the topic, never back
// to the publisher.
type InProcNetwork struct {
	mu   gosync.Mutex
	subs map[string][]*inprocSubscription

	identities map[string][]byte
}

func NewInProcNetwork() *InProcNetwork {
	return &InProcNetwork{
		subs:       make(map[string][]*inprocSubscription),
		identities: make(map[string][]byte),
	}
}

// Node adds a node to the network with the given peer ID and public
// key. The key may be nil for nodes without a resolvable identity.
func (n *InProcNetwork) Node(id string, publicKey []byte) *InProcTransport {
	n.mu.Lock()
	defer n.mu.Unlock()

	if publicKey != nil {
		n.identities[id] = publicKey
	}
	return &InProcTransport{
		id:      id,
		network: n,
	}
}

func (n *InProcNetwork) publish(from string, topic string, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.subs[topic] {
		if sub.node == from || sub.cancelled {
			continue
		}
		msg := sync.Message{
			Topic: topic,
			From:  from,
			Data:  append([]byte(nil), data...),
		}
		select {
		case sub.ch <- msg:
		default:
			// Receiver is too far behind; drop the frame.
		}
	}
}

func (n *InProcNetwork) subscribe(node string, topic string) *inprocSubscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub := &inprocSubscription{
		node:    node,
		topic:   topic,
		network: n,
		ch:      make(chan sync.Message, 64),
	}
	n.subs[topic] = append(n.subs[topic], sub)
	return sub
}

func (n *InProcNetwork) cancel(sub *inprocSubscription) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if sub.cancelled {
		return
	}
	sub.cancelled = true
	close(sub.ch)

	subs := n.subs[sub.topic]
	for i, s := range subs {
		if s == sub {
			n.subs[sub.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// InProcTransport implements sync.Transport and sync.Identity for a
// single node on an InProcNetwork.
type InProcTransport struct {
	id      string
	network *InProcNetwork
}

func (t *InProcTransport) LocalID() string {
	return t.id
}

func (t *InProcTransport) Subscribe(topic string) (sync.Subscription, error) {
	return t.network.subscribe(t.id, topic), nil
}

func (t *InProcTransport) Publish(_ context.Context, topic string, data []byte) error {
	t.network.publish(t.id, topic, data)
	return nil
}

func (t *InProcTransport) PublicKey(peer string) ([]byte, error) {
	t.network.mu.Lock()
	defer t.network.mu.Unlock()

	publicKey, ok := t.network.identities[peer]
	if !ok {
		return nil, fmt.Errorf("unknown peer: %s", peer)
	}
	return publicKey, nil
}

type inprocSubscription struct {
	node    string
	topic   string
	network *InProcNetwork

	ch chan sync.Message

	// cancelled is guarded by the network mutex.
	cancelled bool
}

func (s *inprocSubscription) Next(ctx context.Context) (sync.Message, error) {
	select {
	case msg, ok := <-s.ch:
		if !ok {
			return sync.Message{}, fmt.Errorf("subscription cancelled")
		}
		return msg, nil
	case <-ctx.Done():
		return sync.Message{}, ctx.Err()
	}
}

func (s *inprocSubscription) Cancel() {
	s.network.cancel(s)
}
