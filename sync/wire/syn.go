package wire

import (
	"fmt"
	"math/bits"
)

// Syn is the payload published on the '.syn' topic to request
// reconciliation with a diverged peer.
type Syn struct {
	// Root is the requester's tree root digest.
	Root []byte `cbor:"1,keyasint"`

	// Count is the number of documents in the requester's tree.
	Count uint64 `cbor:"2,keyasint"`

	// To is the Ed25519 public key of the peer the request addresses.
	// Absent when the requester could not resolve the peer, in which
	// case any diverged peer may respond.
	To []byte `cbor:"3,keyasint,omitempty"`

	// Prefixes is a coarse horizontal slice of the requester's tree,
	// letting responders narrow the diff to diverged buckets. Only
	// present when Count exceeds PrefixThreshold. Absent buckets are
	// nil.
	Prefixes [][]byte `cbor:"4,keyasint,omitempty"`

	// PeerRoot is the announced root that triggered the request.
	PeerRoot []byte `cbor:"5,keyasint"`

	// PeerCount is the announced count that triggered the request.
	PeerCount uint64 `cbor:"6,keyasint"`
}

func (s *Syn) Encode() ([]byte, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	b, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal syn: %w", err)
	}
	return b, nil
}

func DecodeSyn(b []byte) (*Syn, error) {
	var s Syn
	if err := decMode.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal syn: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Syn) validate() error {
	if len(s.Root) != RootSize {
		return fmt.Errorf("syn: root must be %d bytes, got %d", RootSize, len(s.Root))
	}
	if len(s.PeerRoot) != RootSize {
		return fmt.Errorf("syn: peer root must be %d bytes, got %d", RootSize, len(s.PeerRoot))
	}
	if s.To != nil && len(s.To) != 32 {
		return fmt.Errorf("syn: to must be a 32 byte public key, got %d", len(s.To))
	}

	if s.Prefixes == nil {
		return nil
	}
	if s.Count <= PrefixThreshold {
		return fmt.Errorf(
			"syn: prefixes require count above %d, got %d",
			PrefixThreshold, s.Count,
		)
	}
	n := len(s.Prefixes)
	if n == 0 || n > MaxPrefixes || bits.OnesCount(uint(n)) != 1 {
		return fmt.Errorf(
			"syn: prefix length must be a power of two at most %d, got %d",
			MaxPrefixes, n,
		)
	}
	for i, prefix := range s.Prefixes {
		if prefix != nil && len(prefix) != RootSize {
			return fmt.Errorf("syn: prefix %d must be %d bytes, got %d", i, RootSize, len(prefix))
		}
	}
	return nil
}
