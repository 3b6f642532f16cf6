package sync

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelID(t *testing.T) {
	// IDs are derived from the name, so stable across nodes.
	assert.Equal(t, ChannelID("docs"), ChannelID("docs"))
	assert.NotEqual(t, ChannelID("docs"), ChannelID("media"))
}

func TestRegistry_Get(t *testing.T) {
	t.Run("creates on first use", func(t *testing.T) {
		registry := NewRegistry()

		ch, err := registry.Get("docs")
		require.NoError(t, err)
		assert.Equal(t, "docs", ch.Name())
		assert.Equal(t, ChannelID("docs"), ch.ID())

		_, count := ch.Summary()
		assert.Equal(t, uint64(0), count)
	})

	t.Run("returns existing", func(t *testing.T) {
		registry := NewRegistry()

		ch1, err := registry.Get("docs")
		require.NoError(t, err)

		_, err = ch1.Insert([]byte("cid-1"))
		require.NoError(t, err)

		ch2, err := registry.Get("docs")
		require.NoError(t, err)
		assert.Same(t, ch1, ch2)

		_, count := ch2.Summary()
		assert.Equal(t, uint64(1), count)
	})

	t.Run("empty name", func(t *testing.T) {
		registry := NewRegistry()
		_, err := registry.Get("")
		assert.Error(t, err)
	})
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry()

	_, ok := registry.Lookup("docs")
	assert.False(t, ok)

	ch, err := registry.Get("docs")
	require.NoError(t, err)

	found, ok := registry.Lookup("docs")
	assert.True(t, ok)
	assert.Same(t, ch, found)
}

func TestRegistry_List(t *testing.T) {
	registry := NewRegistry()

	for _, name := range []string{"media", "docs", "archive"} {
		_, err := registry.Get(name)
		require.NoError(t, err)
	}

	channels := registry.List()
	require.Len(t, channels, 3)
	assert.Equal(t, "archive", channels[0].Name())
	assert.Equal(t, "docs", channels[1].Name())
	assert.Equal(t, "media", channels[2].Name())
}

func TestChannel_Insert(t *testing.T) {
	registry := NewRegistry()
	ch, err := registry.Get("docs")
	require.NoError(t, err)

	added, err := ch.Insert([]byte("cid-1"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = ch.Insert([]byte("cid-1"))
	require.NoError(t, err)
	assert.False(t, added)

	root1, count := ch.Summary()
	assert.Equal(t, uint64(1), count)

	// The root commits to the set.
	for i := 0; i < 10; i++ {
		_, err = ch.Insert([]byte(fmt.Sprintf("cid-%d", i)))
		require.NoError(t, err)
	}
	root2, count := ch.Summary()
	assert.Equal(t, uint64(10), count)
	assert.NotEqual(t, root1, root2)
}
