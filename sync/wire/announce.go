package wire

import (
	"fmt"
)

// Announce is the payload published on the '.new' and '.dif' topics.
//
// A full announcement carries the CIDs of newly stored documents. An
// announcement with no documents is a keepalive carrying only the sender's
// tree summary, which receivers compare against their own tree to detect
// divergence.
type Announce struct {
	// Root is the sender's tree root digest.
	Root []byte `cbor:"1,keyasint"`

	// Count is the number of documents in the sender's tree.
	Count uint64 `cbor:"2,keyasint"`

	// Docs are the announced document CIDs, absent on a keepalive.
	Docs [][]byte `cbor:"3,keyasint,omitempty"`

	// Manifest is a reference to an externally stored document list.
	Manifest []byte `cbor:"4,keyasint,omitempty"`

	// TTL is the remaining relay hop budget.
	TTL *uint32 `cbor:"5,keyasint,omitempty"`

	// InReplyTo links a '.dif' response to the SYN request it answers.
	// Never set on '.new'.
	InReplyTo []byte `cbor:"6,keyasint,omitempty"`
}

// Keepalive returns whether the announcement carries no documents.
func (a *Announce) Keepalive() bool {
	return len(a.Docs) == 0 && len(a.Manifest) == 0
}

func (a *Announce) Encode() ([]byte, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	b, err := encMode.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal announce: %w", err)
	}
	if len(a.Docs) > 0 && len(b) > MaxDocsSize {
		return nil, fmt.Errorf("announce: docs exceed %d bytes", MaxDocsSize)
	}
	return b, nil
}

// DecodeAnnounce parses and validates an announcement payload. If onNew is
// set the payload is held to '.new' topic rules, which forbid the
// in_reply_to field.
func DecodeAnnounce(b []byte, onNew bool) (*Announce, error) {
	if len(b) > MaxDocsSize {
		return nil, fmt.Errorf("announce: payload exceeds %d bytes", MaxDocsSize)
	}

	var a Announce
	if err := decMode.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("unmarshal announce: %w", err)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	if onNew && a.InReplyTo != nil {
		return nil, fmt.Errorf("announce: in_reply_to not allowed on '.new'")
	}
	return &a, nil
}

func (a *Announce) validate() error {
	if len(a.Root) != RootSize {
		return fmt.Errorf("announce: root must be %d bytes, got %d", RootSize, len(a.Root))
	}
	if len(a.Docs) > 0 && len(a.Manifest) > 0 {
		return fmt.Errorf("announce: docs and manifest are mutually exclusive")
	}
	for _, doc := range a.Docs {
		if len(doc) == 0 {
			return fmt.Errorf("announce: empty doc cid")
		}
	}
	return nil
}
