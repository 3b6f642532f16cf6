package wire

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomRoot(t *testing.T) []byte {
	t.Helper()
	root := make([]byte, RootSize)
	_, err := rand.Read(root)
	require.NoError(t, err)
	return root
}

func TestAnnounce(t *testing.T) {
	t.Run("docs round trip", func(t *testing.T) {
		announce := &Announce{
			Root:  randomRoot(t),
			Count: 3,
			Docs:  [][]byte{[]byte("cid-1"), []byte("cid-2")},
		}

		b, err := announce.Encode()
		require.NoError(t, err)

		decoded, err := DecodeAnnounce(b, true)
		require.NoError(t, err)
		assert.Equal(t, announce.Root, decoded.Root)
		assert.Equal(t, announce.Count, decoded.Count)
		assert.Equal(t, announce.Docs, decoded.Docs)
		assert.False(t, decoded.Keepalive())
	})

	t.Run("keepalive", func(t *testing.T) {
		announce := &Announce{
			Root:  randomRoot(t),
			Count: 17,
		}

		b, err := announce.Encode()
		require.NoError(t, err)

		decoded, err := DecodeAnnounce(b, true)
		require.NoError(t, err)
		assert.True(t, decoded.Keepalive())
		assert.Empty(t, decoded.Docs)
	})

	t.Run("in_reply_to rejected on new", func(t *testing.T) {
		announce := &Announce{
			Root:      randomRoot(t),
			Count:     1,
			Docs:      [][]byte{[]byte("cid-1")},
			InReplyTo: []byte("req-1"),
		}

		b, err := announce.Encode()
		require.NoError(t, err)

		_, err = DecodeAnnounce(b, true)
		assert.Error(t, err)

		// The same payload is valid on '.dif'.
		decoded, err := DecodeAnnounce(b, false)
		require.NoError(t, err)
		assert.Equal(t, announce.InReplyTo, decoded.InReplyTo)
	})

	t.Run("bad root size", func(t *testing.T) {
		announce := &Announce{
			Root:  []byte("short"),
			Count: 1,
		}
		_, err := announce.Encode()
		assert.Error(t, err)
	})

	t.Run("docs and manifest exclusive", func(t *testing.T) {
		announce := &Announce{
			Root:     randomRoot(t),
			Count:    1,
			Docs:     [][]byte{[]byte("cid-1")},
			Manifest: []byte("manifest-cid"),
		}
		_, err := announce.Encode()
		assert.Error(t, err)
	})

	t.Run("docs size cap", func(t *testing.T) {
		doc := bytes.Repeat([]byte{0xab}, 4096)
		docs := make([][]byte, 300)
		for i := range docs {
			docs[i] = doc
		}
		announce := &Announce{
			Root:  randomRoot(t),
			Count: uint64(len(docs)),
			Docs:  docs,
		}
		_, err := announce.Encode()
		assert.Error(t, err)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		b, err := cbor.Marshal(map[int]interface{}{
			1:  bytes.Repeat([]byte{0x01}, RootSize),
			2:  1,
			99: "unknown",
		})
		require.NoError(t, err)

		_, err = DecodeAnnounce(b, true)
		assert.Error(t, err)
	})
}

func TestSyn(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		syn := &Syn{
			Root:      randomRoot(t),
			Count:     2,
			To:        randomRoot(t),
			PeerRoot:  randomRoot(t),
			PeerCount: 3,
		}

		b, err := syn.Encode()
		require.NoError(t, err)

		decoded, err := DecodeSyn(b)
		require.NoError(t, err)
		assert.Equal(t, syn, decoded)
	})

	t.Run("prefixes round trip", func(t *testing.T) {
		prefixes := make([][]byte, 8)
		prefixes[0] = randomRoot(t)
		prefixes[5] = randomRoot(t)

		syn := &Syn{
			Root:      randomRoot(t),
			Count:     100,
			Prefixes:  prefixes,
			PeerRoot:  randomRoot(t),
			PeerCount: 120,
		}

		b, err := syn.Encode()
		require.NoError(t, err)

		decoded, err := DecodeSyn(b)
		require.NoError(t, err)
		require.Len(t, decoded.Prefixes, 8)
		assert.Equal(t, prefixes[0], decoded.Prefixes[0])
		assert.Equal(t, prefixes[5], decoded.Prefixes[5])
		assert.Nil(t, decoded.Prefixes[1])
	})

	t.Run("prefixes below threshold rejected", func(t *testing.T) {
		syn := &Syn{
			Root:      randomRoot(t),
			Count:     10,
			Prefixes:  make([][]byte, 8),
			PeerRoot:  randomRoot(t),
			PeerCount: 12,
		}
		_, err := syn.Encode()
		assert.Error(t, err)
	})

	t.Run("prefix length must be power of two", func(t *testing.T) {
		syn := &Syn{
			Root:      randomRoot(t),
			Count:     100,
			Prefixes:  make([][]byte, 6),
			PeerRoot:  randomRoot(t),
			PeerCount: 120,
		}
		_, err := syn.Encode()
		assert.Error(t, err)
	})

	t.Run("prefix length cap", func(t *testing.T) {
		syn := &Syn{
			Root:      randomRoot(t),
			Count:     1 << 20,
			Prefixes:  make([][]byte, MaxPrefixes*2),
			PeerRoot:  randomRoot(t),
			PeerCount: 1 << 20,
		}
		_, err := syn.Encode()
		assert.Error(t, err)
	})

	t.Run("bad to size", func(t *testing.T) {
		syn := &Syn{
			Root:      randomRoot(t),
			Count:     1,
			To:        []byte("short"),
			PeerRoot:  randomRoot(t),
			PeerCount: 1,
		}
		_, err := syn.Encode()
		assert.Error(t, err)
	})

	t.Run("missing peer root", func(t *testing.T) {
		syn := &Syn{
			Root:  randomRoot(t),
			Count: 1,
		}
		_, err := syn.Encode()
		assert.Error(t, err)
	})
}
