// Package smt contains a sparse merkle tree over a set of content IDs.
//
// The tree maps each CID to a fixed 256-bit key (the BLAKE3 digest of the
// CID bytes) and arranges the keys in a binary trie keyed by digest bits.
// Subtrees containing a single key are compressed to that key's leaf, so
// the root digest depends only on the set of keys, never on insertion
// order. Two trees have equal roots if and only if they hold equal sets.
package smt

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"
)

const (
	// KeyBits is the depth of the key space.
	KeyBits = 256

	// MaxSliceHeight bounds HorizontalSliceAt so a slice never exceeds
	// 2^14 entries.
	MaxSliceHeight = 14

	// sliceBucketTarget is the rough number of keys per coarse bucket
	// used when choosing a slice height.
	sliceBucketTarget = 16
)

// emptyDigest is the digest of the empty set.
var emptyDigest = blake3.Sum256(nil)

// EmptyDigest returns the root digest of an empty tree.
func EmptyDigest() [32]byte {
	return emptyDigest
}

type node struct {
	// key is set on leaf nodes only and is both the position of the leaf
	// and its digest.
	key [32]byte

	left  *node
	right *node

	leaf bool
}

// Tree is a set of CIDs committed to by a single root digest.
//
// Tree is not safe for concurrent use.
type Tree struct {
	root  *node
	count int

	// cachedRoot is the memoised root digest, invalidated on insert.
	cachedRoot *[32]byte
}

func New() *Tree {
	return &Tree{}
}

// Insert adds the given CID to the set. Inserting a CID already in the set
// leaves the tree unchanged.
//
// Returns true if the CID was not already present.
func (t *Tree) Insert(cid []byte) (bool, error) {
	if len(cid) == 0 {
		return false, fmt.Errorf("empty cid")
	}

	key := blake3.Sum256(cid)
	root, added := insertKey(t.root, key, 0)
	t.root = root
	if added {
		t.count++
		t.cachedRoot = nil
	}
	return added, nil
}

// Count returns the number of CIDs in the set.
func (t *Tree) Count() int {
	return t.count
}

// Root returns the digest committing to the full set.
func (t *Tree) Root() [32]byte {
	if t.cachedRoot != nil {
		return *t.cachedRoot
	}
	d := digest(t.root)
	t.cachedRoot = &d
	return d
}

// CoarseHeight returns the height to slice the tree at when summarising
// the set for reconciliation, chosen so each bucket covers roughly
// sliceBucketTarget keys.
func (t *Tree) CoarseHeight() uint8 {
	h := uint8(1)
	for h < MaxSliceHeight && (1<<h)*sliceBucketTarget < t.count {
		h++
	}
	return h
}

// HorizontalSliceAt returns the digests of every subtree rooted at the
// given height, left to right. Empty subtrees are nil. The slice has
// 2^height entries.
func (t *Tree) HorizontalSliceAt(height uint8) ([]*[32]byte, error) {
	if height == 0 || height > MaxSliceHeight {
		return nil, fmt.Errorf("slice height out of range: %d", height)
	}

	entries := make([]*[32]byte, 1<<height)
	fillSlice(entries, t.root, 0, height, 0)
	return entries, nil
}

func insertKey(n *node, key [32]byte, depth int) (*node, bool) {
	if n == nil {
		return &node{key: key, leaf: true}, true
	}

	if n.leaf {
		if n.key == key {
			return n, false
		}
		// Split the compressed leaf at the first depth where the two
		// keys diverge.
		branch := &node{}
		if keyBit(n.key, depth) == 0 {
			branch.left = n
		} else {
			branch.right = n
		}
		root, _ := insertKey(branch, key, depth)
		return root, true
	}

	var added bool
	if keyBit(key, depth) == 0 {
		n.left, added = insertKey(n.left, key, depth+1)
	} else {
		n.right, added = insertKey(n.right, key, depth+1)
	}
	return n, added
}

func digest(n *node) [32]byte {
	if n == nil {
		return emptyDigest
	}
	if n.leaf {
		return n.key
	}

	left := digest(n.left)
	right := digest(n.right)

	h := blake3.New()
	_, _ = h.Write(left[:])
	_, _ = h.Write(right[:])

	var d [32]byte
	copy(d[:], h.Sum(nil))
	return d
}

// fillSlice walks the trie down to the slice height, placing each
// subtree digest at its bucket index. Compressed leaves above the slice
// height belong to the bucket addressed by their key's leading bits.
func fillSlice(entries []*[32]byte, n *node, depth int, height uint8, idx int) {
	if n == nil {
		return
	}

	if n.leaf {
		d := n.key
		entries[keyPrefix(n.key, height)] = &d
		return
	}

	if depth == int(height) {
		d := digest(n)
		entries[idx] = &d
		return
	}

	fillSlice(entries, n.left, depth+1, height, idx*2)
	fillSlice(entries, n.right, depth+1, height, idx*2+1)
}

// keyBit returns bit i of the key, most significant first.
func keyBit(key [32]byte, i int) byte {
	return (key[i/8] >> (7 - i%8)) & 1
}

// keyPrefix returns the first h bits of the key as a bucket index.
func keyPrefix(key [32]byte, h uint8) int {
	v := binary.BigEndian.Uint16(key[:2])
	return int(v >> (16 - uint16(h)))
}
