package sync

import (
	"fmt"

	"github.com/cidmesh/cidmesh/sync/wire"
)

// Reconciliation describes a divergence between the local channel set
// and a peer's announced summary.
type Reconciliation struct {
	Channel string

	LocalRoot  [32]byte
	LocalCount uint64

	PeerRoot  [32]byte
	PeerCount uint64

	// Prefixes is a coarse horizontal slice of the local tree, set when
	// the local count exceeds the prefix threshold.
	Prefixes [][]byte
}

// Decide compares a peer's announced summary against the channel's set.
// Returns nil if the roots match, meaning the sets are identical and no
// reconciliation is needed.
func (c *Channel) Decide(peerRoot []byte, peerCount uint64) (*Reconciliation, error) {
	if len(peerRoot) != wire.RootSize {
		return nil, fmt.Errorf(
			"peer root must be %d bytes, got %d", wire.RootSize, len(peerRoot),
		)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	root := c.tree.Root()
	count := uint64(c.tree.Count())

	var peer [32]byte
	copy(peer[:], peerRoot)

	if root == peer {
		return nil, nil
	}

	rec := &Reconciliation{
		Channel:    c.name,
		LocalRoot:  root,
		LocalCount: count,
		PeerRoot:   peer,
		PeerCount:  peerCount,
	}

	if count > wire.PrefixThreshold {
		height := c.tree.CoarseHeight()
		slice, err := c.tree.HorizontalSliceAt(height)
		if err != nil {
			return nil, fmt.Errorf("horizontal slice: %w", err)
		}
		prefixes := make([][]byte, len(slice))
		for i, digest := range slice {
			if digest != nil {
				prefixes[i] = append([]byte(nil), digest[:]...)
			}
		}
		rec.Prefixes = prefixes
	}

	return rec, nil
}
