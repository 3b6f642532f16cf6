package sync

import (
	"encoding/binary"
	"fmt"
	"sort"
	gosync "sync"

	"github.com/zeebo/blake3"
	"go.uber.org/atomic"

	"github.com/cidmesh/cidmesh/smt"
)

// ChannelID returns the compact 32-bit identifier of a channel name,
// taken from the leading bytes of the name's BLAKE3 digest.
func ChannelID(name string) uint32 {
	sum := blake3.Sum256([]byte(name))
	return binary.BigEndian.Uint32(sum[:4])
}

// Channel is the per-channel sync state: the committed CID set and the
// timers driving its convergence.
type Channel struct {
	name string
	id   uint32

	// mu guards tree and quiet. It is only held across single tree
	// calls and pointer accesses, never across transport publishes or
	// timer waits.
	mu   gosync.Mutex
	tree *smt.Tree

	// quiet is the keepalive timer, set when the channel is opened. It
	// is read from the receive loops so access goes through
	// quietTimer and setQuietTimer.
	quiet *QuietTimer

	parity *parityTracker

	// reconciling guards against overlapping reconciliation attempts
	// on the channel.
	reconciling atomic.Bool

	// difOpen records whether the channel's '.dif' topic subscription
	// is open.
	difOpen atomic.Bool
}

func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) ID() uint32 {
	return c.id
}

// Insert adds a CID to the channel's set. Returns true if the CID was
// not already present.
func (c *Channel) Insert(cid []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Insert(cid)
}

// Summary returns the channel's current root digest and document count.
func (c *Channel) Summary() ([32]byte, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Root(), uint64(c.tree.Count())
}

// quietTimer returns the channel's keepalive timer, or nil if the
// channel has not been opened.
func (c *Channel) quietTimer() *QuietTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quiet
}

// setQuietTimer assigns the channel's keepalive timer. Returns false
// if a timer is already set.
func (c *Channel) setQuietTimer(quiet *QuietTimer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quiet != nil {
		return false
	}
	c.quiet = quiet
	return true
}

// Registry holds the open channels, keyed by channel ID.
type Registry struct {
	mu       gosync.Mutex
	channels map[uint32]*Channel
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[uint32]*Channel),
	}
}

// Get returns the channel with the given name, creating it on first
// use. Returns an error if the name's compact ID collides with a
// different open channel.
func (r *Registry) Get(name string) (*Channel, error) {
	if name == "" {
		return nil, fmt.Errorf("empty channel name")
	}
	id := ChannelID(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[id]; ok {
		if ch.name != name {
			return nil, fmt.Errorf(
				"channel id collision: %q and %q share id %d", ch.name, name, id,
			)
		}
		return ch, nil
	}

	ch := &Channel{
		name:   name,
		id:     id,
		tree:   smt.New(),
		parity: newParityTracker(),
	}
	r.channels[id] = ch
	return ch, nil
}

// Lookup returns the channel with the given name if it is open.
func (r *Registry) Lookup(name string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[ChannelID(name)]
	if !ok || ch.name != name {
		return nil, false
	}
	return ch, true
}

// List returns the open channels ordered by name.
func (r *Registry) List() []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].name < channels[j].name
	})
	return channels
}
