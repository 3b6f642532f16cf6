package sync

import (
	"context"
)

// Message is a frame received on a subscribed topic.
type Message struct {
	// Topic the frame was published on.
	Topic string

	// From is the transport peer ID of the publisher.
	From string

	// Data is the raw frame payload.
	Data []byte
}

// Subscription is an open subscription to a single topic.
type Subscription interface {
	// Next blocks until a frame arrives or the context is cancelled.
	Next(ctx context.Context) (Message, error)

	// Cancel closes the subscription. Pending and future Next calls
	// return an error.
	Cancel()
}

// Transport publishes and subscribes to named topics on the mesh.
//
// Implementations must not deliver a node's own published frames back to
// its subscriptions.
type Transport interface {
	Subscribe(topic string) (Subscription, error)
	Publish(ctx context.Context, topic string, data []byte) error
}

// Identity resolves transport peer IDs to public keys, used to address
// reconciliation requests to a known peer.
type Identity interface {
	// PublicKey returns the Ed25519 public key of the given peer.
	PublicKey(peer string) ([]byte, error)
}
