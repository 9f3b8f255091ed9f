package ctcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := Open(filepath.Join(t.TempDir(), "ct.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestCache_PutGet(t *testing.T) {
	cache := openTestCache(t)
	now := time.Now()

	require.NoError(t, cache.Put("example.com", []string{"www.example.com", "api.example.com"}, now))

	subs, ok, err := cache.Get("example.com", time.Hour, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"www.example.com", "api.example.com"}, subs)
}

func TestCache_MissOnUnknownDomain(t *testing.T) {
	cache := openTestCache(t)

	_, ok, err := cache.Get("unknown.com", time.Hour, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	cache := openTestCache(t)
	fetched := time.Now()

	require.NoError(t, cache.Put("example.com", []string{"www.example.com"}, fetched))

	_, ok, err := cache.Get("example.com", time.Hour, fetched.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Overwrite(t *testing.T) {
	cache := openTestCache(t)
	now := time.Now()

	require.NoError(t, cache.Put("example.com", []string{"old.example.com"}, now))
	require.NoError(t, cache.Put("example.com", []string{"new.example.com"}, now))

	subs, ok, err := cache.Get("example.com", time.Hour, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"new.example.com"}, subs)
}
