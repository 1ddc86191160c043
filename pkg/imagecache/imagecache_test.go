package imagecache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/ridgeline/pkg/imagecache"
)

func TestRecordAndLookup(t *testing.T) {
	cache, err := imagecache.Open(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	_, found, err := cache.Lookup("nginx:latest")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, cache.Record("nginx:latest", "sha256:abc", 1024))

	entry, found, err := cache.Lookup("nginx:latest")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "sha256:abc", entry.Digest)
	require.Equal(t, 1, entry.PullCount)

	require.NoError(t, cache.Record("nginx:latest", "sha256:abc", 1024))
	entry, _, err = cache.Lookup("nginx:latest")
	require.NoError(t, err)
	require.Equal(t, 2, entry.PullCount)
}

func TestForget(t *testing.T) {
	cache, err := imagecache.Open(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Record("redis:7", "sha256:def", 512))
	require.NoError(t, cache.Forget("redis:7"))

	_, found, err := cache.Lookup("redis:7")
	require.NoError(t, err)
	require.False(t, found)
}

func TestList(t *testing.T) {
	cache, err := imagecache.Open(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Record("a:1", "sha256:1", 1))
	require.NoError(t, cache.Record("b:1", "sha256:2", 2))

	entries, err := cache.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
