package consistent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicate/cacheplayer/pkg/consistent"
)

func TestKeyIsStable(t *testing.T) {
	a, err := consistent.Key("https://example.com/a.mp4", map[string]string{"A": "1", "B": "2"})
	require.NoError(t, err)
	b, err := consistent.Key("https://example.com/a.mp4", map[string]string{"B": "2", "A": "1"})
	require.NoError(t, err)
	assert.Equal(t, a, b, "header order does not matter")

	c, err := consistent.Key("https://example.com/a.mp4", map[string]string{"A": "1"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestNoHeadersMatchesEmptyHeaders(t *testing.T) {
	a, err := consistent.Key("https://example.com/a.mp4", nil)
	require.NoError(t, err)
	b, err := consistent.Key("https://example.com/a.mp4", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestShardRejectsBadCount(t *testing.T) {
	_, err := consistent.Shard(42, 0)
	assert.Error(t, err)
}

func FuzzShardInRangeAndStableWhenGrowing(f *testing.F) {
	f.Add("https://test.example.com/clip.mp4", 5)
	f.Add("https://test.example.com/clip.mp4", 1)
	f.Fuzz(func(t *testing.T, url string, shards int) {
		if shards <= 0 || shards > 1<<20 {
			t.Skip("invalid value")
		}
		key, err := consistent.Key(url, nil)
		require.NoError(t, err)

		shard, err := consistent.Shard(key, shards)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, shard, 0)
		assert.Less(t, shard, shards)

		// with one more shard a key either stays or moves to the new shard
		grown, err := consistent.Shard(key, shards+1)
		require.NoError(t, err)
		if grown != shard {
			assert.Equal(t, shards, grown)
		}
	})
}
